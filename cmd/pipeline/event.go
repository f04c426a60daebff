package main

import (
	"os"

	"github.com/spf13/pflag"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/trigger"
)

// eventOpts says where the event comes from: the GitHub Actions
// payload, or flags for running by hand.
type eventOpts struct {
	name string
	path string
	kind string
	base string
	head string
	ref  string
}

func (opts *eventOpts) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&opts.name, "event-name", os.Getenv("GITHUB_EVENT_NAME"), "name of the GitHub event")
	fs.StringVar(&opts.path, "event-path", os.Getenv("GITHUB_EVENT_PATH"), "path of the GitHub event payload")
	fs.StringVar(&opts.kind, "kind", string(trigger.Push), "kind of event, when giving revisions by hand (push or pull-request)")
	fs.StringVar(&opts.base, "base", "", "revision to compare against; with --head, instead of an event payload")
	fs.StringVar(&opts.head, "head", "", "revision to build")
	fs.StringVar(&opts.ref, "branch", "", "branch the revisions are on")
}

func (opts *eventOpts) event() (trigger.Event, error) {
	var ev trigger.Event
	if opts.head != "" {
		ev = trigger.Event{
			Kind:   trigger.Kind(opts.kind),
			Base:   opts.base,
			Head:   opts.head,
			Branch: opts.ref,
		}
	} else {
		if opts.name == "" || opts.path == "" {
			return trigger.Event{}, newUsageError("no event: run in GitHub Actions, or give --event-name and --event-path, or --base and --head")
		}
		var err error
		if ev, err = trigger.FromGitHubEvent(opts.name, opts.path); err != nil {
			return trigger.Event{}, err
		}
	}
	return ev, ev.Validate()
}
