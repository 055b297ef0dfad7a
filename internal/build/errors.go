package build

import (
	"errors"
	"fmt"

	"atom/internal/report"
)

// Configuration errors. They are detected before any target executes and
// always abort the run.
var (
	// ErrDuplicateTarget is returned when a target name is registered twice.
	ErrDuplicateTarget = errors.New("duplicate target")

	// ErrUnknownTarget is returned when a requested target does not exist.
	ErrUnknownTarget = errors.New("unknown target")

	// ErrMissingDependency is returned when a declared dependency does not exist.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrCyclicDependency is returned when the dependency relation has a cycle.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrMissingParam is returned when a required parameter has no value.
	ErrMissingParam = errors.New("missing required parameter")

	// ErrUndeclaredOutput is returned when a target consumes an artifact or
	// variable its producer does not declare.
	ErrUndeclaredOutput = errors.New("consumed output not declared by producer")

	// ErrDuplicateProducer is returned when two targets produce the same
	// artifact or variable.
	ErrDuplicateProducer = errors.New("output produced by more than one target")
)

// StepFailedError is raised by a task to fail its target deliberately.
// Report, when set, is added to the run report.
type StepFailedError struct {
	Message string
	Report  report.Data
	Err     error
}

// NewStepFailedError creates a StepFailedError with message.
func NewStepFailedError(message string) *StepFailedError {
	return &StepFailedError{Message: message}
}

// Error implements the error interface.
func (e *StepFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *StepFailedError) Unwrap() error {
	return e.Err
}

// CheckFailedError is raised by a task when a verification (tests, lint,
// policy) does not pass. It behaves like [StepFailedError] but is reported
// as a failed check rather than a failed step.
type CheckFailedError struct {
	Message string
	Report  report.Data
}

// NewCheckFailedError creates a CheckFailedError with message and optional report data.
func NewCheckFailedError(message string, data report.Data) *CheckFailedError {
	return &CheckFailedError{Message: message, Report: data}
}

// Error implements the error interface.
func (e *CheckFailedError) Error() string {
	return e.Message
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// reportData extracts structured report data from expected failures.
// The second result is false for unexpected errors.
func reportData(err error) (report.Data, bool) {
	var step *StepFailedError
	if errors.As(err, &step) {
		return step.Report, true
	}
	var check *CheckFailedError
	if errors.As(err, &check) {
		return check.Report, true
	}
	return nil, false
}
