// Package cli provides shared configuration and utilities for the flowscope CLI.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/pthm/flowscope/pkg/flow"
)

// Process exit codes.
const (
	ExitSuccess   = 0
	ExitGeneral   = 1
	ExitConfig    = 2
	ExitMalformed = 3
	ExitDBConnect = 4
	ExitNotFound  = 5
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitGeneral
}

// ExitWithError prints the error and exits with the appropriate code.
func ExitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(ExitCode(err))
}

// ConfigError creates an ExitError with ExitConfig code.
func ConfigError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Err: err}
}

// MalformedError creates an ExitError with ExitMalformed code.
func MalformedError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitMalformed, Message: msg, Err: err}
}

// DBConnectError creates an ExitError with ExitDBConnect code.
func DBConnectError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitDBConnect, Message: msg, Err: err}
}

// NotFoundError creates an ExitError with ExitNotFound code.
func NotFoundError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitNotFound, Message: msg, Err: err}
}

// GeneralError creates an ExitError with ExitGeneral code.
func GeneralError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitGeneral, Message: msg, Err: err}
}

// AnalysisError classifies an analysis failure by the flow sentinel it
// wraps.
func AnalysisError(msg string, err error) *ExitError {
	switch {
	case flow.IsNotFoundErr(err):
		return NotFoundError(msg, err)
	case flow.IsMalformedInputErr(err):
		return MalformedError(msg, err)
	default:
		return GeneralError(msg, err)
	}
}
