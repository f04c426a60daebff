package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// inheritedEnv lists the variables a git subprocess may see. Proxy
// settings follow curl, which ignores HTTP_PROXY; the rest locate
// credential helpers, ssh config and the agent socket.
var inheritedEnv = []string{
	"http_proxy", "https_proxy", "no_proxy", "HTTPS_PROXY", "NO_PROXY", "GIT_PROXY_COMMAND",
	"HOME", "PATH", "SSH_AUTH_SOCK", "GIT_SSH_COMMAND", "GIT_ASKPASS",
}

// gitIn runs git commands in one directory.
type gitIn string

// run runs git and discards its output unless the command fails.
func (dir gitIn) run(ctx context.Context, args ...string) error {
	return dir.runTo(ctx, nil, args...)
}

// output runs git and returns its trimmed stdout.
func (dir gitIn) output(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	if err := dir.runTo(ctx, &out, args...); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

func (dir gitIn) runTo(ctx context.Context, stdout io.Writer, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = string(dir)
	cmd.Env = gitEnv()

	combined := &syncBuffer{}
	cmd.Stdout, cmd.Stderr = combined, combined
	if stdout != nil {
		cmd.Stdout = io.MultiWriter(combined, stdout)
	}

	err := cmd.Run()
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return errors.Wrapf(ctx.Err(), "git %s timed out", strings.Join(args, " "))
	case context.Canceled:
		return errors.Wrapf(ctx.Err(), "git %s cancelled", strings.Join(args, " "))
	}
	if err != nil && combined.Len() > 0 {
		return &cmdError{exit: err, output: combined.String()}
	}
	return err
}

func gitEnv() []string {
	env := []string{"GIT_TERMINAL_PROMPT=0"}
	for _, k := range inheritedEnv {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	return env
}

// syncBuffer collects stdout and stderr, which exec writes from
// separate goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// cmdError reports git's own diagnostic, and unwraps to the
// *exec.ExitError so callers can look at the exit status.
type cmdError struct {
	exit   error
	output string
}

func (e *cmdError) Error() string {
	if msg := diagnostic(strings.NewReader(e.output)); msg != "" {
		return fmt.Sprintf("%s, full output:\n %s", msg, e.output)
	}
	return e.output
}

func (e *cmdError) Unwrap() error {
	return e.exit
}

// diagnostic picks the line of git's output that says what went
// wrong.
func diagnostic(output io.Reader) string {
	sc := bufio.NewScanner(output)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "fatal: "), strings.HasPrefix(line, "ERROR fatal: "):
			return line
		case strings.HasPrefix(line, "error: "):
			return strings.TrimPrefix(line, "error: ")
		}
	}
	return ""
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Working clone operations

func clone(ctx context.Context, dir, repoURL, branch string) (string, error) {
	args := []string{"clone", "--no-tags"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	if err := gitIn(dir).run(ctx, append(args, repoURL, dir)...); err != nil {
		return "", errors.Wrap(err, "git clone")
	}
	return dir, nil
}

func config(ctx context.Context, dir, user, email string) error {
	for _, kv := range [][2]string{{"user.name", user}, {"user.email", email}} {
		if err := gitIn(dir).run(ctx, "config", kv[0], kv[1]); err != nil {
			return errors.Wrapf(err, "setting %s", kv[0])
		}
	}
	return nil
}

func add(ctx context.Context, dir string, paths ...string) error {
	return gitIn(dir).run(ctx, append([]string{"add", "--"}, paths...)...)
}

// staged reports whether the index differs from HEAD.
func staged(ctx context.Context, dir string) bool {
	return gitIn(dir).run(ctx, "diff", "--cached", "--quiet", "--") != nil
}

func commit(ctx context.Context, dir string, action CommitAction) error {
	args := []string{"commit", "--no-verify", "-m", action.Message}
	if action.Author != "" {
		args = append(args, "--author", action.Author)
	}
	if err := gitIn(dir).run(ctx, append(args, "--")...); err != nil {
		return errors.Wrap(err, "git commit")
	}
	return nil
}

func push(ctx context.Context, dir, upstream string, refs []string) error {
	return gitIn(dir).run(ctx, append([]string{"push", "--porcelain", upstream}, refs...)...)
}

func fetch(ctx context.Context, dir, upstream string, refspec ...string) error {
	if err := gitIn(dir).run(ctx, append([]string{"fetch", "--no-tags", upstream}, refspec...)...); err != nil {
		return errors.Wrapf(err, "git fetch %v", refspec)
	}
	return nil
}

func resetHard(ctx context.Context, dir, ref string) error {
	return errors.Wrap(gitIn(dir).run(ctx, "reset", "--hard", ref, "--"), "git reset --hard "+ref)
}

// Queries

// refExists is false, without an error, for refs git doesn't know.
func refExists(ctx context.Context, dir, ref string) (bool, error) {
	err := gitIn(dir).run(ctx, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err == nil {
		return true, nil
	}
	var cmdErr *cmdError
	if ctx.Err() != nil || errors.As(err, &cmdErr) {
		// --quiet prints nothing for an unknown ref, so output means
		// something else is wrong
		return false, err
	}
	return false, nil
}

func refRevision(ctx context.Context, dir, ref string) (string, error) {
	return gitIn(dir).output(ctx, "rev-list", "--max-count", "1", ref, "--")
}

func mergeBase(ctx context.Context, dir, a, b string) (string, error) {
	rev, err := gitIn(dir).output(ctx, "merge-base", a, b)
	return rev, errors.Wrapf(err, "git merge-base %s %s", a, b)
}

// isAncestor reports whether ancestor is reachable from rev.
func isAncestor(ctx context.Context, dir, ancestor, rev string) (bool, error) {
	err := gitIn(dir).run(ctx, "merge-base", "--is-ancestor", ancestor, rev)
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() == nil && exitCode(err) == 1:
		return false, nil
	}
	return false, err
}

// changed lists every path touched between the two refs. Deletions
// are included, and renames count as a delete plus an add. -z keeps
// git from quoting paths with unusual characters.
func changed(ctx context.Context, dir, from, to string) ([]string, error) {
	var out bytes.Buffer
	if err := gitIn(dir).runTo(ctx, &out, "diff", "--name-only", "-z", "--no-renames", from, to, "--"); err != nil {
		return nil, err
	}
	return splitPaths(out.String()), nil
}

func remoteURL(ctx context.Context, dir, name string) (string, error) {
	url, err := gitIn(dir).output(ctx, "remote", "get-url", name)
	return url, errors.Wrapf(err, "getting URL of remote %s", name)
}

func commitMessage(ctx context.Context, dir, rev string) (string, error) {
	return gitIn(dir).output(ctx, "log", "--max-count", "1", "--format=%B", rev, "--")
}

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// commitsTouching returns the commits in the range that touch any of
// the paths, newest first.
func commitsTouching(ctx context.Context, dir, revRange string, paths []string) ([]Commit, error) {
	var out bytes.Buffer
	args := append([]string{"log", "--format=%H" + "%x1f" + "%B" + "%x1e", revRange, "--"}, paths...)
	if err := gitIn(dir).runTo(ctx, &out, args...); err != nil {
		return nil, err
	}
	return splitLog(out.String()), nil
}

func splitLog(s string) []Commit {
	var commits []Commit
	for _, record := range strings.Split(s, recordSep) {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}
		rev, msg, _ := strings.Cut(record, fieldSep)
		commits = append(commits, Commit{Revision: rev, Message: strings.TrimSpace(msg)})
	}
	return commits
}

// splitPaths splits NUL-terminated -z output. Paths are taken as
// they are, spaces and newlines included.
func splitPaths(s string) []string {
	paths := []string{}
	for _, p := range strings.Split(s, "\x00") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
