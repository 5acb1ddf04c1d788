package service

import (
	"errors"
	"fmt"

	"github.com/vietguard/vietguard-api/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// Callers check them with errors.Is; the API layer maps them to HTTP status codes.
var (
	// ErrRateLimited indicates the member already created the maximum number
	// of tasks inside the rate window. API layer should map this to 429.
	ErrRateLimited = errors.New("task rate limit exceeded")

	// ErrMemberNotFound indicates no member is registered for the email.
	ErrMemberNotFound = errors.New("member not found")

	// ErrTaskNotFound indicates the task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidOTP indicates no unverified attempt matches the code.
	ErrInvalidOTP = errors.New("invalid otp code")

	// ErrOTPExpired indicates the code matched an attempt that has expired.
	ErrOTPExpired = errors.New("otp code has expired")

	// ErrNotVerified indicates the member has no verified OTP attempt.
	// API layer should map this to 403.
	ErrNotVerified = errors.New("member email is not verified")

	// ErrNotificationFailed indicates an email could not be handed to the relay.
	ErrNotificationFailed = errors.New("failed to send notification")

	// ErrSubmissionFailed indicates the scanner rejected or never received a file.
	ErrSubmissionFailed = errors.New("failed to submit file for scanning")

	// ErrDownloadNotFound indicates the download link is unknown or malformed.
	ErrDownloadNotFound = errors.New("download link not found")

	// ErrDownloadExpired indicates the download link is past its expiry.
	ErrDownloadExpired = errors.New("download link has expired")

	// ErrReportNotReady indicates the task has no result to download yet.
	ErrReportNotReady = errors.New("scan report is not ready")
)

// ServiceError wraps unexpected errors from a service operation with context.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "send_otp", "create_task")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError wraps err for operation. Store "not found" errors are
// translated to the service sentinels and returned unwrapped.
func NewServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, store.ErrMemberNotFound):
		return ErrMemberNotFound
	case errors.Is(err, store.ErrTaskNotFound):
		return ErrTaskNotFound
	case errors.Is(err, store.ErrDownloadTokenNotFound):
		return ErrDownloadNotFound
	}

	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
