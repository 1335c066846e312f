package reconciliation

import (
	"errors"
	"fmt"
)

// Common reconciliation errors
var (
	// ErrNotFound is returned when a referenced match, payment or invoice
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a match status change violates
	// the review state machine.
	ErrInvalidTransition = errors.New("invalid match status transition")

	// ErrInvalidState is returned when an action does not apply to the
	// current state of an invoice or match.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSyncInProgress is returned when a cycle for the tenant is already running.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Error carries the failed operation and a human readable reason.
type Error struct {
	// Op is the operation that failed (e.g., "UpdateMatch", "Sync").
	Op string

	// Err is the underlying error.
	Err error

	// Details explains the failure to the operator.
	Details string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("reconciliation: %s failed: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("reconciliation: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// ErrorDetails returns the operator facing details of err, if any.
func ErrorDetails(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return ""
}
