package git

import (
	"context"
	"time"
)

const (
	defaultTimeout = 20 * time.Second
)

// Repo is an existing local clone of the repository, e.g., the
// workspace a CI job checked out. It is only ever read from.
type Repo struct {
	dir     string
	timeout time.Duration
}

type Option interface {
	apply(*Repo)
}

type Timeout time.Duration

func (t Timeout) apply(r *Repo) {
	r.timeout = time.Duration(t)
}

// NewRepo returns a Repo for the working directory given.
func NewRepo(dir string, opts ...Option) *Repo {
	r := &Repo{
		dir:     dir,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt.apply(r)
	}
	return r
}

// Dir returns the local directory of the repo.
func (r *Repo) Dir() string {
	return r.dir
}

func (r *Repo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// Revision returns the revision (SHA1) of the ref passed in
func (r *Repo) Revision(ctx context.Context, ref string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return refRevision(ctx, r.dir, ref)
}

// RefExists reports whether the ref names a commit in the repo.
func (r *Repo) RefExists(ctx context.Context, ref string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return refExists(ctx, r.dir, ref)
}

func (r *Repo) MergeBase(ctx context.Context, a, b string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return mergeBase(ctx, r.dir, a, b)
}

// ChangedFiles returns the repo-relative paths of files that differ
// between the two revisions.
func (r *Repo) ChangedFiles(ctx context.Context, base, head string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return changed(ctx, r.dir, base, head)
}

func (r *Repo) CommitMessage(ctx context.Context, rev string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return commitMessage(ctx, r.dir, rev)
}

// RemoteURL returns the URL of the named remote, e.g., "origin".
func (r *Repo) RemoteURL(ctx context.Context, name string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return remoteURL(ctx, r.dir, name)
}
