package pipeline

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/trigger"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/unit"
)

type Status string

const (
	StatusSkipped         Status = "skipped"
	StatusBuilt           Status = "built"
	StatusBuildFailed     Status = "build-failed"
	StatusPublished       Status = "published"
	StatusPublishFailed   Status = "publish-failed"
	StatusManifestUpdated Status = "manifest-updated"
	StatusManifestFailed  Status = "manifest-failed"
)

func (s Status) Failed() bool {
	switch s {
	case StatusBuildFailed, StatusPublishFailed, StatusManifestFailed:
		return true
	}
	return false
}

// UnitResult is what happened to one unit in a run.
type UnitResult struct {
	Status Status
	Digest string `json:",omitempty"`
	// Image is where the artifact was published
	Image  string `json:",omitempty"`
	LogRef string `json:",omitempty"`
	Error  string `json:",omitempty"`
}

// Summary is the outcome of a run: a status for every unit, and
// whether the run as a whole succeeded.
type Summary struct {
	RunID  string
	Event  trigger.Event
	Base   string `json:",omitempty"`
	Head   string `json:",omitempty"`
	Units  map[string]UnitResult
	Commit string `json:",omitempty"`
	OK     bool
	// Err is a failure of the run as a whole, rather than of a unit.
	Err error `json:"-"`
}

func newSummary(runID string, ev trigger.Event, units unit.Set) *Summary {
	s := &Summary{
		RunID: runID,
		Event: ev,
		Units: make(map[string]UnitResult, units.Len()),
	}
	for _, name := range units.Names() {
		s.Units[name] = UnitResult{Status: StatusSkipped}
	}
	return s
}

func (s *Summary) finish() {
	s.OK = s.Err == nil && len(s.Failed()) == 0
}

// Failed returns the names of the units that failed, sorted.
func (s *Summary) Failed() []string {
	var names []string
	for name, r := range s.Units {
		if r.Status.Failed() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Error returns the failure of the run, if any.
func (s *Summary) Error() string {
	failed := s.Failed()
	var msg string
	switch {
	case len(failed) == 0:
	case len(failed) == 1:
		msg = fmt.Sprintf("%s failed: %s", failed[0], s.Units[failed[0]].Error)
	default:
		msg = fmt.Sprintf("multiple units failed: %s", strings.Join(failed, ", "))
	}
	if s.Err != nil {
		if msg != "" {
			return s.Err.Error() + "; " + msg
		}
		return s.Err.Error()
	}
	return msg
}

const tableHeading = "UNIT \tSTATUS \tDETAIL"

// PrintSummary writes a table of unit statuses.
func PrintSummary(out io.Writer, s *Summary) error {
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, tableHeading)
	names := make([]string, 0, len(s.Units))
	for name := range s.Units {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := s.Units[name]
		detail := r.Image
		if r.Error != "" {
			detail = firstLine(r.Error)
		}
		fmt.Fprintf(tw, "%s \t%s \t%s\n", name, r.Status, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if s.Commit != "" {
		fmt.Fprintf(out, "\nmanifest commit: %s\n", s.Commit)
	}
	if s.OK {
		fmt.Fprintln(out, "\nrun succeeded")
	} else {
		fmt.Fprintf(out, "\nrun failed: %s\n", s.Error())
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
