package git

import (
	"context"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
)

const upstreamName = "origin"

// Config holds some values we use when working in the working clone of
// a repo.
type Config struct {
	Branch      string // branch we're committing to
	UserName    string
	UserEmail   string
	SkipMessage string // appended to every commit message
}

// Checkout is a local working clone of the remote repo. It is
// intended to be used for one-off "transactions", e.g,. committing
// changes then pushing upstream. It has no locking.
type Checkout struct {
	dir      string
	config   Config
	upstream Remote
}

type Commit struct {
	Revision string
	Message  string
}

// CommitAction is a struct holding commit information
type CommitAction struct {
	Author  string
	Message string
}

// Clone returns a local working clone of the branch given in the
// config, in a fresh temporary directory.
func Clone(ctx context.Context, upstream Remote, conf Config) (*Checkout, error) {
	if conf.Branch == "" {
		return nil, errors.New("no branch given for working clone")
	}
	workingDir, err := ioutil.TempDir(os.TempDir(), "pipeline-working")
	if err != nil {
		return nil, err
	}
	repoDir, err := clone(ctx, workingDir, upstream.URL, conf.Branch)
	if err != nil {
		os.RemoveAll(workingDir)
		return nil, CloningError(upstream.SafeURL(), upstream.scrub(err))
	}
	if err := config(ctx, repoDir, conf.UserName, conf.UserEmail); err != nil {
		os.RemoveAll(workingDir)
		return nil, err
	}
	return &Checkout{
		dir:      repoDir,
		config:   conf,
		upstream: upstream,
	}, nil
}

// Dir returns the path to the working clone.
func (c *Checkout) Dir() string {
	return c.dir
}

// Clean removes the working clone.
func (c *Checkout) Clean() {
	if c.dir != "" {
		os.RemoveAll(c.dir)
	}
}

// Add stages the repo-relative paths given.
func (c *Checkout) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	return add(ctx, c.dir, paths...)
}

// HasChanges reports whether anything is staged for commit.
func (c *Checkout) HasChanges(ctx context.Context) bool {
	return staged(ctx, c.dir)
}

// CommitAndPush commits the staged changes, with the skip message
// appended, and pushes the branch to the upstream. A push failure is
// returned as a *PushError.
func (c *Checkout) CommitAndPush(ctx context.Context, commitAction CommitAction) error {
	if !staged(ctx, c.dir) {
		return ErrNoChanges
	}

	commitAction.Message += c.config.SkipMessage
	if err := commit(ctx, c.dir, commitAction); err != nil {
		return err
	}

	refs := []string{"HEAD:refs/heads/" + c.config.Branch}
	if err := push(ctx, c.dir, c.upstream.URL, refs); err != nil {
		return newPushError(c.upstream.SafeURL(), c.upstream.scrub(err))
	}
	return nil
}

// Fetch updates the remote-tracking ref of the branch.
func (c *Checkout) Fetch(ctx context.Context) error {
	refspec := "+refs/heads/" + c.config.Branch + ":" + c.upstreamRef()
	if err := fetch(ctx, c.dir, c.upstream.URL, refspec); err != nil {
		return errors.Wrapf(c.upstream.scrub(err), "fetching from %s", c.upstream.SafeURL())
	}
	return nil
}

// ResetToUpstream fetches the branch and throws away any local
// commits and changes, leaving the clone at the upstream tip.
func (c *Checkout) ResetToUpstream(ctx context.Context) error {
	if err := c.Fetch(ctx); err != nil {
		return err
	}
	return resetHard(ctx, c.dir, c.upstreamRef())
}

func (c *Checkout) HeadRevision(ctx context.Context) (string, error) {
	return refRevision(ctx, c.dir, "HEAD")
}

func (c *Checkout) UpstreamRevision(ctx context.Context) (string, error) {
	return refRevision(ctx, c.dir, c.upstreamRef())
}

// IsAncestor reports whether the revision is reachable from rev. A
// revision the clone does not know about is not an ancestor.
func (c *Checkout) IsAncestor(ctx context.Context, ancestor, rev string) (bool, error) {
	ok, err := refExists(ctx, c.dir, ancestor)
	if err != nil || !ok {
		return false, err
	}
	return isAncestor(ctx, c.dir, ancestor, rev)
}

// CommitsTouching returns the commits in (from, to] that change any of
// the paths given, newest first.
func (c *Checkout) CommitsTouching(ctx context.Context, from, to string, paths []string) ([]Commit, error) {
	if len(paths) == 0 {
		return nil, errors.New("no paths given")
	}
	return commitsTouching(ctx, c.dir, from+".."+to, paths)
}

func (c *Checkout) upstreamRef() string {
	return "refs/remotes/" + upstreamName + "/" + c.config.Branch
}
