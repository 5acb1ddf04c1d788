package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation or
	// violates a constraint on write.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUpdateFailed is returned when an update could not be applied.
	ErrUpdateFailed = errors.New("update failed")

	// ErrTransactionFailed is returned when a transaction cannot commit.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrAdmissionDenied is returned by CreateAdmitted when the owner already
	// has the maximum number of tasks inside the window.
	ErrAdmissionDenied = errors.New("admission denied")

	// Entity-specific "not found" errors

	ErrTaskNotFound          = fmt.Errorf("%w: task", ErrNotFound)
	ErrMemberNotFound        = fmt.Errorf("%w: member", ErrNotFound)
	ErrVerificationNotFound  = fmt.Errorf("%w: verification", ErrNotFound)
	ErrAccessLogNotFound     = fmt.Errorf("%w: access log", ErrNotFound)
	ErrDownloadTokenNotFound = fmt.Errorf("%w: download token", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrMemberExists indicates a member with the same name already exists.
	ErrMemberExists = fmt.Errorf("%w: member", ErrDuplicate)
)

// IsNotFoundError reports whether err is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError reports whether err is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "task", "member")
	Operation string // The operation that failed (e.g., "create", "transition")
	Message   string
	Err       error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
