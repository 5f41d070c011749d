package clipboard

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for absent and expired items.
	ErrNotFound = errors.New("clipboard item not found")
	// ErrDuplicatePin is returned when a live item already holds the PIN.
	ErrDuplicatePin = errors.New("pin already held by a live item")
	// ErrAllocationExhausted is returned when no free PIN was found within
	// the allocator's attempt budget.
	ErrAllocationExhausted = errors.New("pin allocation exhausted")
	// ErrAttachmentFailed wraps any failure to store an attachment.
	ErrAttachmentFailed = errors.New("attachment failed")
)

// ValidationError reports malformed caller input. It never reaches the
// store.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
