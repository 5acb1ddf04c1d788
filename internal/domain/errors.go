package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// It is usually wrapped by a ValidationError naming the field.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or missing.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidEmail is returned when an email address is malformed.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrInvalidStatus is returned for a status outside the task lattice.
	ErrInvalidStatus = errors.New("invalid task status")

	// ErrInvalidTransition is returned when a status change is not an edge
	// of the task lattice.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMissingIP is returned when neither an IPv4 nor an IPv6 address is given.
	ErrMissingIP = errors.New("at least one of ipv4 or ipv6 is required")
)

// ValidationError reports which field failed validation and why.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError wrapping err.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrValidation
	}
	return e.Err
}
