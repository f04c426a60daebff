// Package trigger describes what caused a pipeline invocation: the
// kind of event, the pair of revisions to compare, the branch, and
// for manual infrastructure runs the operation to perform.
package trigger

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/google/go-github/v68/github"
	"github.com/pkg/errors"
)

type Kind string

const (
	Push        Kind = "push"
	PullRequest Kind = "pull-request"
	Manual      Kind = "manual"
)

// Operation selects what a manual infrastructure run does.
type Operation string

const (
	Plan    Operation = "plan"
	Apply   Operation = "apply"
	Destroy Operation = "destroy"
)

var operations = map[Operation]bool{Plan: true, Apply: true, Destroy: true}

// ParseOperation returns the operation named, or an error if it is
// not one we know.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	if !operations[op] {
		return "", fmt.Errorf("unknown operation %q, expected one of plan, apply, destroy", s)
	}
	return op, nil
}

const zeroSHA = "0000000000000000000000000000000000000000"

// Event is one invocation of the pipeline.
type Event struct {
	Kind Kind `json:"kind"`
	// Base is the revision to compare against: the preceding
	// revision of a push, or the target branch tip of a pull request.
	Base string `json:"base,omitempty"`
	Head string `json:"head,omitempty"`
	// Branch is the branch pushed to, or the target branch of a pull
	// request.
	Branch    string    `json:"branch,omitempty"`
	Operation Operation `json:"operation,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case Manual:
		return fmt.Sprintf("manual %s", e.Operation)
	default:
		return fmt.Sprintf("%s %s..%s on %s", e.Kind, short(e.Base), short(e.Head), e.Branch)
	}
}

// Validate checks the event has what its kind needs.
func (e Event) Validate() error {
	switch e.Kind {
	case Push, PullRequest:
		if e.Base == "" || e.Head == "" {
			return fmt.Errorf("%s event needs both a base and a head revision", e.Kind)
		}
		if e.Branch == "" {
			return fmt.Errorf("%s event needs a branch", e.Kind)
		}
	case Manual:
		if !operations[e.Operation] {
			return fmt.Errorf("manual event with unknown operation %q", e.Operation)
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// FromGitHubEvent reads the webhook payload GitHub Actions provides
// for the named event and turns it into an Event.
func FromGitHubEvent(eventName, payloadPath string) (Event, error) {
	payload, err := ioutil.ReadFile(payloadPath)
	if err != nil {
		return Event{}, errors.Wrap(err, "reading event payload")
	}
	return ParseGitHubEvent(eventName, payload)
}

type dispatchInputs struct {
	Operation string `json:"operation"`
}

func ParseGitHubEvent(eventName string, payload []byte) (Event, error) {
	parsed, err := github.ParseWebHook(eventName, payload)
	if err != nil {
		return Event{}, errors.Wrapf(err, "parsing %s payload", eventName)
	}

	var ev Event
	switch p := parsed.(type) {
	case *github.PushEvent:
		ev = Event{
			Kind:   Push,
			Base:   p.GetBefore(),
			Head:   p.GetAfter(),
			Branch: strings.TrimPrefix(p.GetRef(), "refs/heads/"),
		}
		// a newly created branch has no before; compare with the
		// parent of the head instead
		if ev.Base == zeroSHA || ev.Base == "" {
			ev.Base = ev.Head + "~1"
		}
	case *github.PullRequestEvent:
		pr := p.GetPullRequest()
		ev = Event{
			Kind:   PullRequest,
			Base:   pr.GetBase().GetSHA(),
			Head:   pr.GetHead().GetSHA(),
			Branch: pr.GetBase().GetRef(),
		}
	case *github.WorkflowDispatchEvent:
		var inputs dispatchInputs
		if len(p.Inputs) > 0 {
			if err := json.Unmarshal(p.Inputs, &inputs); err != nil {
				return Event{}, errors.Wrap(err, "parsing workflow_dispatch inputs")
			}
		}
		op, err := ParseOperation(inputs.Operation)
		if err != nil {
			return Event{}, err
		}
		ev = Event{
			Kind:      Manual,
			Branch:    strings.TrimPrefix(p.GetRef(), "refs/heads/"),
			Operation: op,
		}
	default:
		return Event{}, fmt.Errorf("unsupported event %q", eventName)
	}
	return ev, ev.Validate()
}

func short(rev string) string {
	if len(rev) > 7 && !strings.Contains(rev, "~") {
		return rev[:7]
	}
	return rev
}
