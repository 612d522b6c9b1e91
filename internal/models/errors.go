package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks caller errors rejected before any I/O.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks persistence conflicts on unique keys.
	ErrConflict = errors.New("conflict")
	// ErrAllSourcesFailed is returned when every selected source failed.
	ErrAllSourcesFailed = errors.New("all sources failed")
)

// ValidationError describes an invalid field. It matches ErrInvalidInput via errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// ConflictError reports a unique-key violation on Field. It matches ErrConflict.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s %q already exists", e.Field, e.Value)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
