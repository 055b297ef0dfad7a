package cli

import (
	"errors"
	"fmt"
)

// ExitError represents a command failure with a specific exit code.
//
// RunE functions return NewExitError(code) instead of calling os.Exit, so the
// code propagates up to [RunWithConfig] where [IsExitError] extracts it for
// [ExecuteResult]. Tests can assert on exit codes without terminating the
// process; only [Execute] calls os.Exit.
type ExitError struct {
	// Code is the exit code to return to the shell.
	// Convention: 0 = success, 1 = failed target or configuration error.
	Code int
}

// Error returns "exit status N", matching the os/exec format.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError creates an [ExitError] with the given exit code.
//
//	if code := res.ExitCode(); code != 0 {
//	    return NewExitError(code)
//	}
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError reports whether err wraps an [ExitError] and returns its code.
// Returns (0, false) for nil or any other error.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
