package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

const (
	exitRuntime    = 1
	exitValidation = 2
)

// ExitError carries the process exit code for an error returned from RunE.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return exitRuntime
}
