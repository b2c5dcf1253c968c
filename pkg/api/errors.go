package api

import "errors"

var (
	// ErrNotFound is returned when a record does not exist or belongs to another household.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStateTransition is returned when an occurrence cannot move to the requested state.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflictDuplicate is returned when an insert collides with an existing record.
	ErrConflictDuplicate = errors.New("duplicate record")
	// ErrPartialRun is returned by batch jobs that failed after delivering
	// some of their side effects. Re-running the whole batch would repeat them.
	ErrPartialRun = errors.New("batch partially completed")
)

// IsDomainError reports whether err is one of the sentinel errors above.
// Anything else is treated as an infrastructure failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflictDuplicate)
}
