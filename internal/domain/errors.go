package domain

import (
	"errors"
	"fmt"
)

// Construction errors. A *FieldError returned by NewTimeEntry wraps one of these.
var (
	ErrRequired                     = errors.New("field is required")
	ErrFutureDate                   = errors.New("date must not be in the future")
	ErrNonPositiveDuration          = errors.New("duration must be positive")
	ErrDescriptionTooShort          = fmt.Errorf("description must be at least %d characters", MinDescriptionLength)
	ErrAdditionalDescriptionTooLong = fmt.Errorf("additional description must not exceed %d characters", MaxAdditionalDescriptionLength)
)

// ErrRecordNotFound is returned by repositories for unknown entry IDs.
var ErrRecordNotFound = errors.New("time entry record not found")

// FieldError names the TimeEntry field that violated an invariant.
type FieldError struct {
	Field string
	cause error
}

func newFieldError(field string, cause error) *FieldError {
	return &FieldError{Field: field, cause: cause}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.cause)
}

func (e *FieldError) Unwrap() error { return e.cause }
