package git

import (
	"net/url"
	"path"
	"strings"

	giturls "github.com/whilp/git-urls"
)

// Remote is the repository the pipeline clones and pushes manifest
// commits to. The URL may carry a token; use SafeURL anywhere it
// ends up in a log or an error.
type Remote struct {
	URL string `json:"url"`
}

// SafeURL is the URL with any password or token removed.
func (r Remote) SafeURL() string {
	u, err := giturls.Parse(r.URL)
	if err != nil {
		return "<unparseable remote>"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.String()
}

// Slug is "host/owner/name" for the remote, whatever the transport,
// or "" if the URL can't be parsed.
func (r Remote) Slug() string {
	u, err := giturls.Parse(r.URL)
	if err != nil || u.Host == "" {
		return ""
	}
	p := strings.TrimSuffix(path.Clean("/"+u.Path), ".git")
	return strings.ToLower(u.Hostname()) + p
}

// SameRepo reports whether the other URL names the same repository,
// so an SSH and an HTTPS remote for one repo compare equal.
func (r Remote) SameRepo(other string) bool {
	slug := r.Slug()
	return slug != "" && slug == (Remote{URL: other}).Slug()
}

// scrub hides the remote's credentials in err's message. git echoes
// the URL it was given in some diagnostics.
func (r Remote) scrub(err error) error {
	if err == nil {
		return nil
	}
	return &scrubbedError{remote: r, err: err}
}

func (r Remote) redact(s string) string {
	u, err := giturls.Parse(r.URL)
	if err != nil || u.User == nil {
		return s
	}
	s = strings.ReplaceAll(s, r.URL, r.SafeURL())
	if password, ok := u.User.Password(); ok && password != "" {
		s = strings.ReplaceAll(s, password, "redacted")
	}
	return s
}

type scrubbedError struct {
	remote Remote
	err    error
}

func (e *scrubbedError) Error() string {
	return e.remote.redact(e.err.Error())
}

func (e *scrubbedError) Unwrap() error {
	return e.err
}
