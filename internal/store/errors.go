package store

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every backend. Callers branch with errors.Is.
var (
	// ErrNotFound is returned when a fingerprint, commit, branch, candidate,
	// trail, or session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBranchConflict is returned when a head compare-and-swap matched zero
	// rows because another writer advanced the branch first. The engine
	// retries these with a fresh parent; everything else propagates.
	ErrBranchConflict = errors.New("branch head moved")

	// ErrEmptyBranch is returned when a branch exists but has no commits yet.
	ErrEmptyBranch = errors.New("branch has no commits")

	// ErrCapacityExceeded is returned when the candidate buffer is full.
	ErrCapacityExceeded = errors.New("candidate buffer full")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
