package trigger

import (
	"strings"
)

const DefaultSkipMarker = "[skip ci]"

// Filter decides whether a commit should trigger the pipeline. The
// pipeline marks its own manifest commits so that they don't trigger
// another run; a marked commit carries the marker on a line of its
// own.
type Filter struct {
	Marker string
}

// Skip reports whether the commit message carries the marker.
func (f Filter) Skip(message string) bool {
	marker := f.marker()
	for _, line := range strings.Split(message, "\n") {
		if strings.TrimSpace(line) == marker {
			return true
		}
	}
	return false
}

// Suffix is what to append to a commit message to mark it.
func (f Filter) Suffix() string {
	return "\n\n" + f.marker()
}

func (f Filter) marker() string {
	if f.Marker == "" {
		return DefaultSkipMarker
	}
	return f.Marker
}
