package types

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the store, engine and API layers.
var (
	// ErrNotFound - a lookup by id/key matched nothing, or a guarded
	// update's predicate no longer held at commit time.
	ErrNotFound = errors.New("not found")

	// ErrConflict - an insert lost the identity-key race to a
	// concurrent writer.
	ErrConflict = errors.New("already exists")

	// ErrRetryExhausted - the dedup/correlate/create decision raced
	// with concurrent writers past the retry budget.
	ErrRetryExhausted = errors.New("too many concurrent updates, retry budget exhausted")

	// ErrSuppressed - the alert was accepted but fell inside an active
	// blackout window. A recognized outcome, not a failure.
	ErrSuppressed = errors.New("suppressed by blackout period")

	// ErrRateLimited - the origin exceeded its receive rate. Also a
	// recognized outcome rather than a hard failure.
	ErrRateLimited = errors.New("rate limited")
)

// ValidationError describes a malformed field in an incoming payload.
// It is raised before any store access.
type ValidationError struct {
	Field string
	Value string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Msg)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, value, msg string) error {
	return &ValidationError{Field: field, Value: value, Msg: msg}
}
