package git

import (
	"strings"

	pipelineerr "github.com/Sagar7777521/retail-store-sample-app/pkg/errors"
	"github.com/pkg/errors"
)

var ErrNoChanges = errors.New("no changes made in repo")

func CloningError(url string, actual error) error {
	return &pipelineerr.Error{
		Type: pipelineerr.User,
		Err:  actual,
		Help: `Could not clone the upstream git repository

There was a problem cloning the git repository,

    ` + url + `

This may be because the pipeline token does not grant read access, or
because the repository has been moved, deleted, or never existed.
`,
	}
}

// PushError is returned when pushing to the upstream failed. Rejected
// is set when the upstream refused the push because it was not a
// fast-forward, i.e., someone else pushed first.
type PushError struct {
	URL      string
	Rejected bool
	Err      error
}

func (e *PushError) Error() string {
	return "git push " + e.URL + ": " + e.Err.Error()
}

func (e *PushError) Unwrap() error {
	return e.Err
}

func newPushError(url string, err error) *PushError {
	return &PushError{
		URL:      url,
		Rejected: IsNonFastForward(err),
		Err:      err,
	}
}

var nonFastForwardMessages = []string{
	"[rejected]",
	"non-fast-forward",
	"fetch first",
	"stale info",
	"cannot lock ref",
}

var authMessages = []string{
	"authentication failed",
	"permission denied",
	"could not read username",
	"access denied",
	"not authorized",
	"returned error: 403",
	"the requested url returned error: 401",
	"protected branch",
}

// IsNonFastForward reports whether the error is git refusing a push
// because the upstream has moved on.
func IsNonFastForward(err error) bool {
	return errorContainsAny(err, nonFastForwardMessages)
}

// IsAuthError reports whether the error is git being refused access
// to the upstream.
func IsAuthError(err error) bool {
	return errorContainsAny(err, authMessages)
}

func errorContainsAny(err error, needles []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}

// ManualMergeError is what's left after the pipeline has given up
// pushing its manifest commit.
func ManualMergeError(url, branch string, attempts int, actual error) error {
	return &pipelineerr.Error{
		Type: pipelineerr.User,
		Err:  errors.Wrapf(actual, "giving up after %d push attempts", attempts),
		Help: `Problem committing and pushing manifest changes.

The branch

    ` + branch + `

of

    ` + url + `

kept moving while the pipeline tried to push its manifest commit. The
images were published; only the manifest commit is missing.

Re-run the workflow, or update the image repository and tag fields of
the affected manifests by hand and push the result.
`,
	}
}

// AccessError is returned when the upstream refuses the pipeline's
// credentials; there's no point retrying.
func AccessError(url string, actual error) error {
	return &pipelineerr.Error{
		Type: pipelineerr.User,
		Err:  actual,
		Help: `Could not write to upstream repository

The pipeline could not push to

    ` + url + `

Check that the workflow token has write ("contents: write") permission,
and that branch protection allows the pipeline to push.
`,
	}
}
