package trigger

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	before = "1111111111111111111111111111111111111111"
	after  = "2222222222222222222222222222222222222222"
)

func TestParsePush(t *testing.T) {
	payload := `{"ref":"refs/heads/main","before":"` + before + `","after":"` + after + `"}`
	ev, err := ParseGitHubEvent("push", []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, Event{Kind: Push, Base: before, Head: after, Branch: "main"}, ev)
	assert.Equal(t, "push 1111111..2222222 on main", ev.String())
}

func TestParsePushNewBranch(t *testing.T) {
	payload := `{"ref":"refs/heads/feature","before":"` + zeroSHA + `","after":"` + after + `"}`
	ev, err := ParseGitHubEvent("push", []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, after+"~1", ev.Base)
}

func TestParsePullRequest(t *testing.T) {
	payload := `{"action":"synchronize","pull_request":{"base":{"ref":"main","sha":"` + before + `"},"head":{"ref":"feature","sha":"` + after + `"}}}`
	ev, err := ParseGitHubEvent("pull_request", []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, Event{Kind: PullRequest, Base: before, Head: after, Branch: "main"}, ev)
}

func TestParseWorkflowDispatch(t *testing.T) {
	payload := `{"ref":"refs/heads/main","inputs":{"operation":"Apply"}}`
	ev, err := ParseGitHubEvent("workflow_dispatch", []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, Event{Kind: Manual, Branch: "main", Operation: Apply}, ev)

	_, err = ParseGitHubEvent("workflow_dispatch", []byte(`{"ref":"refs/heads/main","inputs":{"operation":"rollback"}}`))
	assert.Error(t, err)
	_, err = ParseGitHubEvent("workflow_dispatch", []byte(`{"ref":"refs/heads/main"}`))
	assert.Error(t, err)
}

func TestParseUnsupported(t *testing.T) {
	_, err := ParseGitHubEvent("issues", []byte(`{"action":"opened"}`))
	assert.Error(t, err)

	_, err = ParseGitHubEvent("push", []byte(`{"ref":"refs/heads/main","before":"`+before+`"}`))
	assert.Error(t, err, "push without a head revision")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Event{Kind: Push, Base: "a", Head: "b", Branch: "main"}.Validate())
	assert.Error(t, Event{Kind: Push, Head: "b", Branch: "main"}.Validate())
	assert.Error(t, Event{Kind: PullRequest, Base: "a", Head: "b"}.Validate())
	assert.Error(t, Event{Kind: Manual, Operation: "scale"}.Validate())
	assert.Error(t, Event{Kind: "tag"}.Validate())
}

func TestFromGitHubEvent(t *testing.T) {
	dir, err := ioutil.TempDir("", "trigger")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	p := filepath.Join(dir, "event.json")
	require.NoError(t, ioutil.WriteFile(p, []byte(`{"ref":"refs/heads/main","before":"`+before+`","after":"`+after+`"}`), 0644))

	ev, err := FromGitHubEvent("push", p)
	require.NoError(t, err)
	assert.Equal(t, after, ev.Head)

	_, err = FromGitHubEvent("push", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
