// Package detect works out which units a change to the repository
// touches.
package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	pipelineerr "github.com/Sagar7777521/retail-store-sample-app/pkg/errors"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/trigger"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/unit"
)

// Repo is what the detector needs from the local checkout.
type Repo interface {
	RefExists(ctx context.Context, ref string) (bool, error)
	Revision(ctx context.Context, ref string) (string, error)
	MergeBase(ctx context.Context, a, b string) (string, error)
	ChangedFiles(ctx context.Context, base, head string) ([]string, error)
	CommitMessage(ctx context.Context, rev string) (string, error)
}

// ChangeSet is the result of detection. It is not changed once
// made.
type ChangeSet struct {
	Base    string
	Head    string
	Skipped bool
	units   []string
}

// Units returns the names of the changed units, sorted.
func (cs ChangeSet) Units() []string {
	return append([]string(nil), cs.units...)
}

func (cs ChangeSet) Empty() bool {
	return len(cs.units) == 0
}

func (cs ChangeSet) Contains(name string) bool {
	i := sort.SearchStrings(cs.units, name)
	return i < len(cs.units) && cs.units[i] == name
}

type Detector struct {
	Repo   Repo
	Units  unit.Set
	Filter trigger.Filter
	Logger log.Logger
}

// ShouldSkip reports whether the head of the event was marked as not
// to be built, e.g., because the pipeline committed it.
func (d *Detector) ShouldSkip(ctx context.Context, ev trigger.Event) (bool, error) {
	msg, err := d.Repo.CommitMessage(ctx, ev.Head)
	if err != nil {
		return false, errors.Wrapf(err, "reading commit message of %s", ev.Head)
	}
	return d.Filter.Skip(msg), nil
}

// Detect returns the set of units with at least one changed file
// between the revisions of the event.
func (d *Detector) Detect(ctx context.Context, ev trigger.Event) (ChangeSet, error) {
	if ev.Kind != trigger.Push && ev.Kind != trigger.PullRequest {
		return ChangeSet{}, fmt.Errorf("cannot detect changes for a %s event", ev.Kind)
	}
	for _, ref := range []string{ev.Base, ev.Head} {
		ok, err := d.Repo.RefExists(ctx, ref)
		if err != nil {
			return ChangeSet{}, errors.Wrapf(err, "looking up revision %s", ref)
		}
		if !ok {
			return ChangeSet{}, missingRevision(ref)
		}
	}

	head, err := d.Repo.Revision(ctx, ev.Head)
	if err != nil {
		return ChangeSet{}, err
	}
	cs := ChangeSet{Head: head}

	skip, err := d.ShouldSkip(ctx, ev)
	if err != nil {
		return ChangeSet{}, err
	}
	if skip {
		d.Logger.Log("info", "head commit is marked to be skipped", "revision", head)
		cs.Skipped = true
		return cs, nil
	}

	base := ev.Base
	if ev.Kind == trigger.PullRequest {
		if base, err = d.Repo.MergeBase(ctx, ev.Base, head); err != nil {
			return ChangeSet{}, err
		}
	} else if base, err = d.Repo.Revision(ctx, base); err != nil {
		return ChangeSet{}, err
	}
	cs.Base = base

	files, err := d.Repo.ChangedFiles(ctx, base, head)
	if err != nil {
		return ChangeSet{}, errors.Wrap(err, "listing changed files")
	}
	cs.units = d.match(files)
	d.Logger.Log("info", "changes detected", "base", base, "head", head, "files", len(files), "units", fmt.Sprintf("%v", cs.units))
	return cs, nil
}

func (d *Detector) match(files []string) []string {
	seen := map[string]bool{}
	for _, u := range d.Units.Units() {
		for _, f := range files {
			if u.Owns(f) {
				seen[u.Name] = true
				break
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func missingRevision(ref string) error {
	return &pipelineerr.Error{
		Type: pipelineerr.Missing,
		Err:  fmt.Errorf("revision %s not found", ref),
		Help: `A revision to compare is not in the repository history.

The revision

    ` + ref + `

could not be found in the local checkout. Make sure the job checks out
the full history (e.g., "fetch-depth: 0"), and that the revision has not
been removed by a force push.
`,
	}
}
