package main

import (
	"errors"

	pipelineerr "github.com/Sagar7777521/retail-store-sample-app/pkg/errors"
)

type usageError struct {
	error
}

func newUsageError(msg string) usageError {
	return usageError{error: errors.New(msg)}
}

var errorWantedNoArgs = newUsageError("expected no (non-flag) arguments")

// runFailedError means the run finished, and reported its failure.
type runFailedError struct {
	error
}

// withHelp adds the help text of a classified error to its message.
// Unclassified errors are left alone; cobra prints those as they are.
func withHelp(err error) error {
	if pipelineerr.HelpText(err) == "" {
		return err
	}
	return errors.New(pipelineerr.Describe(err))
}
