package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no order exists under the given id.
	ErrNotFound = errors.New("order not found")
	// ErrUnauthorized is returned when the caller is neither permitted
	// as creator (cancel) nor as controller (status update).
	ErrUnauthorized = errors.New("caller not authorized")
	// ErrInvalidTransition is returned when a status change is not in
	// the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicateID is returned when an insert would collide with an
	// existing fingerprint. Unreachable under normal operation because
	// the creation counter is part of the hashed tuple.
	ErrDuplicateID = errors.New("duplicate order id")
)

// ValidationError reports a rejected creation parameter. Each precondition
// in CreateParams.Validate produces a distinct Field/Reason pair.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
