package git

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLog(t *testing.T) {
	out := "aaaa\x1fChange cart\n\nwith a body\n\x1e\nbbbb\x1fDeploy\n\n[skip ci]\n\x1e\n"
	commits := splitLog(out)
	require.Len(t, commits, 2)
	assert.Equal(t, Commit{Revision: "aaaa", Message: "Change cart\n\nwith a body"}, commits[0])
	assert.Equal(t, Commit{Revision: "bbbb", Message: "Deploy\n\n[skip ci]"}, commits[1])

	assert.Empty(t, splitLog(""))
}

func TestSplitPaths(t *testing.T) {
	assert.Equal(t, []string{}, splitPaths(""))
	assert.Equal(t, []string{"src/cart/main.go", "src/ui/index.js"}, splitPaths("src/cart/main.go\x00src/ui/index.js\x00"))
	// spaces and non-ASCII bytes are part of the path
	assert.Equal(t, []string{" space.txt", "src/cart/café.go"}, splitPaths(" space.txt\x00src/cart/café.go\x00"))
}

func TestDiagnostic(t *testing.T) {
	for _, example := range []struct {
		output   string
		expected string
	}{
		{"remote: Counting objects\nfatal: repository 'x' not found\n", "fatal: repository 'x' not found"},
		{"error: failed to push some refs to 'x'\n", "failed to push some refs to 'x'"},
		{"ERROR fatal: bad thing\n", "ERROR fatal: bad thing"},
		{"everything is fine\n", ""},
	} {
		assert.Equal(t, example.expected, diagnostic(strings.NewReader(example.output)))
	}
}

func TestCmdErrorUnwraps(t *testing.T) {
	dir, err := ioutil.TempDir("", "git-ops")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	err = gitIn(dir).run(context.Background(), "rev-parse", "HEAD")
	require.Error(t, err)
	var exitErr *exec.ExitError
	assert.True(t, errors.As(err, &exitErr))
	assert.Contains(t, err.Error(), "fatal:")
}

func TestPushErrorClassification(t *testing.T) {
	rejected := errors.New("!\tHEAD:refs/heads/master\t[rejected] (fetch first)")
	assert.True(t, IsNonFastForward(rejected))
	assert.False(t, IsAuthError(rejected))
	assert.True(t, newPushError("https://github.com/x/y", rejected).Rejected)

	denied := errors.New("remote: Permission to x/y.git denied to github-actions[bot].\nfatal: unable to access 'https://github.com/x/y/': The requested URL returned error: 403")
	assert.True(t, IsAuthError(denied))
	assert.False(t, IsNonFastForward(denied))
	assert.False(t, newPushError("https://github.com/x/y", denied).Rejected)
}

func TestGitOutput(t *testing.T) {
	dir, err := ioutil.TempDir("", "git-ops")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, gitIn(dir).run(ctx, "init"))
	out, err := gitIn(dir).output(ctx, "status", "--porcelain")
	require.NoError(t, err)
	assert.Equal(t, "", out)

	ok, err := refExists(ctx, dir, "no-such-branch")
	require.NoError(t, err)
	assert.False(t, ok)
}
