package domain

import (
	"errors"
	"fmt"
)

// ErrSchemaMismatch is matched by every record validation failure.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Sentinel errors for validation failures.
var (
	ErrMissingField     = errors.New("missing field")
	ErrWrongType        = errors.New("wrong type")
	ErrOutOfRange       = errors.New("value out of range")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrNewWithDistance  = errors.New("new vehicles must have 0 kilometres")
	ErrBlankCategorical = errors.New("blank categorical value")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// Is reports every ValidationError as a schema mismatch.
func (e *ValidationError) Is(target error) bool { return target == ErrSchemaMismatch }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
