// Package build turns the source of changed units into container
// images. Builds of different units run in parallel and fail
// independently of each other; they are never retried.
package build

import (
	"context"
	"fmt"
	"io"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/unit"
)

type Builder interface {
	Build(ctx context.Context, req Request) (Artifact, error)
}

type Request struct {
	Unit unit.Unit
	// SourceDir is the root of the checked out repository; the unit's
	// paths are relative to it.
	SourceDir string
	Revision  string
	// LogWriter receives the diagnostic output of the build.
	LogWriter io.Writer
}

// Artifact is a built image. It is only usable for as long as the
// builder's working directory is kept.
type Artifact struct {
	Image  v1.Image
	Digest v1.Hash
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

type Result struct {
	Unit     string
	Status   Status
	Artifact Artifact
	LogRef   string
	Err      error
}

// Error is a failed build of a unit.
type Error struct {
	Unit string
	// the last lines the build tool printed
	Diagnostic string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("building %s: %s", e.Unit, e.Err)
	if e.Diagnostic != "" {
		msg += "\n" + e.Diagnostic
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

const diagnosticLines = 20

func tail(output string, n int) string {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
