// Package output provides structured output and error handling for the briefship CLI.
package output

import "errors"

// Exit codes:
// 0 = Success
// 1 = User error (bad args, missing config, record not found)
// 2 = System error (git, AWS API, I/O)
// 3 = Conflict (dirty tree, instance not deployable, rejected push)
// 4 = Remote failure (the remote command finished without success)
const (
	ExitSuccess       = 0
	ExitUserError     = 1
	ExitSystemError   = 2
	ExitConflict      = 3
	ExitRemoteFailure = 4
)

// ExitError is an error that carries an exit code for the CLI.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/errors.As support.
func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewUserError creates an error for user-caused issues (exit code 1).
func NewUserError(message string) *ExitError {
	return &ExitError{Code: ExitUserError, Message: message}
}

// NewUserErrorWithCause creates a user error wrapping an underlying cause.
func NewUserErrorWithCause(message string, cause error) *ExitError {
	return &ExitError{Code: ExitUserError, Message: message, Cause: cause}
}

// NewSystemError creates an error for system failures (exit code 2).
func NewSystemError(message string) *ExitError {
	return &ExitError{Code: ExitSystemError, Message: message}
}

// NewSystemErrorWithCause creates a system error wrapping an underlying cause.
func NewSystemErrorWithCause(message string, cause error) *ExitError {
	return &ExitError{Code: ExitSystemError, Message: message, Cause: cause}
}

// NewConflictError creates an error for state mismatches (exit code 3).
// Use for: uncommitted changes, stopped instances, non-fast-forward pushes.
func NewConflictError(message string) *ExitError {
	return &ExitError{Code: ExitConflict, Message: message}
}

// NewRemoteError creates an error for a remote command that ran to a
// terminal state other than Success (exit code 4).
func NewRemoteError(message string) *ExitError {
	return &ExitError{Code: ExitRemoteFailure, Message: message}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil, ExitUserError for non-ExitError errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return ExitUserError
}

// IsCode reports whether err carries the given exit code.
func IsCode(err error, code int) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Code == code
}
