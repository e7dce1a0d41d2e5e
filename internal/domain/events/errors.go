package events

import "errors"

var (
	// ErrNotFound is returned by Get lookups for missing events.
	ErrNotFound = errors.New("event not found")

	// ErrDuplicate is returned by admin create paths when the duplicate
	// index finds an exact match. Carries the existing id via DuplicateError.
	ErrDuplicate = errors.New("duplicate event")

	// ErrQuotaExceeded is returned by the quota governor. The merge engine
	// downgrades it to a skip, never an error.
	ErrQuotaExceeded = errors.New("venue quota exceeded")

	// ErrValidation is the base for bad candidate input.
	ErrValidation = errors.New("invalid event input")
)

// DuplicateError wraps ErrDuplicate with the id of the existing event so
// API callers can surface it.
type DuplicateError struct {
	ExistingID int64
}

func (e *DuplicateError) Error() string { return "duplicate event" }

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }
