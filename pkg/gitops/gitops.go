// Package gitops records published images in the deployment
// manifests, as a single commit per pipeline run pushed to the
// configuration branch. This is the one place where runs can collide
// with each other, so it refuses to overwrite newer work.
package gitops

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/git"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/manifest"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/trigger"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/unit"
)

const DefaultAttempts = 3

// ErrStale is returned when the branch has moved on in a way that
// makes this run's images out of date.
var ErrStale = errors.New("revision is stale")

type Committer struct {
	Remote   git.Remote
	Config   git.Config
	Filter   trigger.Filter
	Attempts int
	Logger   log.Logger

	// called before each push; tests use it to race the committer
	beforePush func(attempt int)
}

type Request struct {
	// Revision is the commit the images were built from.
	Revision string
	// Branch overrides the configured branch, if given.
	Branch  string
	Patches []manifest.Patch
	Units   unit.Set
}

type Result struct {
	Revision string // the pushed commit
	Attempts int
	NoOp     bool
}

func (c *Committer) attempts() int {
	if c.Attempts <= 0 {
		return DefaultAttempts
	}
	return c.Attempts
}

// Commit applies the patches to a fresh clone of the branch, then
// commits and pushes the result. When the push loses a race with
// another writer, it starts again from the new tip of the branch.
func (c *Committer) Commit(ctx context.Context, req Request) (Result, error) {
	if len(req.Patches) == 0 {
		return Result{NoOp: true}, nil
	}
	conf := c.Config
	if req.Branch != "" {
		conf.Branch = req.Branch
	}
	if conf.SkipMessage == "" {
		conf.SkipMessage = c.Filter.Suffix()
	}
	logger := log.With(c.Logger, "branch", conf.Branch, "revision", req.Revision)

	sources, err := sourcePaths(req)
	if err != nil {
		return Result{}, err
	}

	checkout, err := git.Clone(ctx, c.Remote, conf)
	if err != nil {
		return Result{}, err
	}
	defer checkout.Clean()

	message := commitMessage(req)
	for attempt := 1; ; attempt++ {
		if err := c.checkStale(ctx, checkout, req.Revision, sources); err != nil {
			return Result{Attempts: attempt}, err
		}
		changed, err := applyPatches(checkout.Dir(), req.Patches)
		if err != nil {
			return Result{Attempts: attempt}, err
		}
		if len(changed) == 0 {
			logger.Log("info", "manifests already up to date")
			return Result{Attempts: attempt, NoOp: true}, nil
		}
		if err := checkout.Add(ctx, changed...); err != nil {
			return Result{Attempts: attempt}, errors.Wrap(err, "staging manifests")
		}

		if c.beforePush != nil {
			c.beforePush(attempt)
		}
		err = checkout.CommitAndPush(ctx, git.CommitAction{Message: message})
		switch {
		case err == nil:
			rev, err := checkout.HeadRevision(ctx)
			if err != nil {
				return Result{Attempts: attempt}, err
			}
			logger.Log("info", "pushed manifest commit", "commit", rev, "attempts", attempt)
			return Result{Revision: rev, Attempts: attempt}, nil
		case errors.Is(err, git.ErrNoChanges):
			return Result{Attempts: attempt, NoOp: true}, nil
		case git.IsAuthError(err):
			return Result{Attempts: attempt}, git.AccessError(c.Remote.SafeURL(), err)
		case !git.IsNonFastForward(err):
			return Result{Attempts: attempt}, err
		case attempt >= c.attempts():
			return Result{Attempts: attempt}, git.ManualMergeError(c.Remote.SafeURL(), conf.Branch, attempt, err)
		}

		logger.Log("warning", "push rejected, retrying from the new tip", "attempt", attempt, "err", err)
		if err := checkout.ResetToUpstream(ctx); err != nil {
			return Result{Attempts: attempt}, errors.Wrap(err, "resetting to upstream")
		}
	}
}

// checkStale makes sure that the revision is in the history of the
// clone's HEAD, and that nothing since then, other than commits the
// pipeline itself made, has changed the source of the units being
// updated.
func (c *Committer) checkStale(ctx context.Context, checkout *git.Checkout, revision string, sources []string) error {
	head, err := checkout.HeadRevision(ctx)
	if err != nil {
		return err
	}
	if head == revision {
		return nil
	}
	ok, err := checkout.IsAncestor(ctx, revision, head)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(ErrStale, "%s is not in the history of %s", revision, head)
	}
	commits, err := checkout.CommitsTouching(ctx, revision, head, sources)
	if err != nil {
		return err
	}
	for _, commit := range commits {
		if !c.Filter.Skip(commit.Message) {
			return errors.Wrapf(ErrStale, "%s has since changed the source of units being updated", commit.Revision)
		}
	}
	return nil
}

func sourcePaths(req Request) ([]string, error) {
	seen := map[string]bool{}
	var paths []string
	for _, p := range req.Patches {
		u, ok := req.Units.Get(p.Unit)
		if !ok {
			return nil, fmt.Errorf("patch for unknown unit %q", p.Unit)
		}
		if !seen[u.SourcePath] {
			seen[u.SourcePath] = true
			paths = append(paths, u.SourcePath)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// applyPatches applies every patch, and returns the paths of the files
// that changed. It stops at the first failure, leaving it to the
// caller to throw the working clone away.
func applyPatches(root string, patches []manifest.Patch) ([]string, error) {
	var changed []string
	for _, p := range patches {
		ok, err := manifest.Apply(root, p)
		if err != nil {
			return nil, err
		}
		if ok {
			changed = append(changed, p.Path)
		}
	}
	return changed, nil
}

func commitMessage(req Request) string {
	var names []string
	for _, p := range req.Patches {
		names = append(names, p.Unit)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Update %s to %s\n", strings.Join(names, ", "), shortRevision(req.Revision))
	fmt.Fprintf(&b, "\nBuilt from %s.\n", req.Revision)
	for _, p := range sortedPatches(req.Patches) {
		fmt.Fprintf(&b, "\n%s:", p.Path)
		for _, f := range p.Fields {
			fmt.Fprintf(&b, "\n  %s: %s", f.Path, f.Value)
		}
	}
	return b.String()
}

func sortedPatches(patches []manifest.Patch) []manifest.Patch {
	res := append([]manifest.Patch(nil), patches...)
	sort.Slice(res, func(i, j int) bool { return res[i].Unit < res[j].Unit })
	return res
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
