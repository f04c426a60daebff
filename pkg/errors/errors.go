// Package errors classifies run-level failures by who has to act on
// them, and carries a message meant for the person reading the
// workflow log.
package errors

import (
	"errors"
	"fmt"
)

type Type string

const (
	// Server means a collaborator misbehaved; running again may help.
	Server Type = "server"
	// Missing means a revision, file or unit named by the run does not
	// exist.
	Missing Type = "missing"
	// User means nothing will change until somebody acts, e.g. fixes
	// credentials or merges by hand.
	User Type = "user"
)

// Error is a classified failure. Err is for logs; Help is for people.
type Error struct {
	Type Type
	Help string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Type) + " error"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func classify(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// TypeOf reports the type of the first *Error in the chain, and
// Server for anything unclassified.
func TypeOf(err error) Type {
	if e, ok := classify(err); ok {
		return e.Type
	}
	return Server
}

func IsMissing(err error) bool {
	e, ok := classify(err)
	return ok && e.Type == Missing
}

func IsUser(err error) bool {
	e, ok := classify(err)
	return ok && e.Type == User
}

// HelpText returns the help text of the first *Error in the chain,
// or the empty string.
func HelpText(err error) string {
	if e, ok := classify(err); ok {
		return e.Help
	}
	return ""
}

// Describe renders err for a workflow log: the message, then the
// help text. Unclassified errors get a generic pointer to where to
// report them.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	help := HelpText(err)
	if help == "" {
		help = `There is no specific advice for the error above. If running
the workflow again does not help, open an issue quoting the message
and the run it appeared in.`
	}
	return fmt.Sprintf("%s\n\n%s", err, help)
}
