package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/vietguard/vietguard-api/internal/api/shared"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/platform/scanapi"
	"github.com/vietguard/vietguard-api/internal/service"
	"github.com/vietguard/vietguard-api/internal/store"
)

// RateLimitedMessage is shown to members who submit too many scans.
const RateLimitedMessage = "Scan quá nhiều, hãy thử lại sau hoặc liên hệ với chúng tôi."

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var apiErr *scanapi.APIError
	var validationErr *domain.ValidationError

	switch {
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests

	case errors.Is(err, service.ErrNotVerified):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, service.ErrMemberNotFound),
		errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrDownloadNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrDownloadExpired):
		return http.StatusGone

	case errors.Is(err, service.ErrReportNotReady):
		return http.StatusConflict

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, service.ErrInvalidOTP),
		errors.Is(err, service.ErrOTPExpired),
		errors.As(err, &validationErr),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrMissingIP),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, scanapi.ErrMissingFile),
		errors.Is(err, scanapi.ErrMissingID):
		return http.StatusBadRequest

	// Upstream failures
	case errors.Is(err, service.ErrSubmissionFailed),
		errors.Is(err, service.ErrNotificationFailed),
		errors.Is(err, scanapi.ErrInvalidResponse),
		errors.Is(err, scanapi.ErrResponseTooLarge),
		errors.As(err, &apiErr):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErr *domain.ValidationError

	switch {
	case errors.Is(err, service.ErrRateLimited):
		return RateLimitedMessage

	case errors.Is(err, service.ErrNotVerified):
		return "Email has not been verified. Please verify OTP and submit user info first."

	case errors.Is(err, service.ErrMemberNotFound),
		errors.Is(err, store.ErrMemberNotFound):
		return "Member not found"

	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, service.ErrDownloadNotFound):
		return "Download link not found"

	case errors.Is(err, service.ErrDownloadExpired):
		return "Download link has expired"

	case errors.Is(err, service.ErrReportNotReady):
		return "Scan report is not ready yet"

	case errors.Is(err, service.ErrInvalidOTP):
		return "Invalid OTP"

	case errors.Is(err, service.ErrOTPExpired):
		return "OTP expired"

	case errors.Is(err, domain.ErrMissingIP):
		return "At least one of ipv4 or ipv6 is required"

	case errors.As(err, &validationErr):
		return fmt.Sprintf("Invalid %s: %s", validationErr.Field, validationErr.Message)

	case errors.Is(err, store.ErrDuplicate):
		return "Entity already exists"

	case errors.Is(err, scanapi.ErrMissingFile):
		return "File is required"

	case errors.Is(err, service.ErrSubmissionFailed):
		return "Failed to create task in external system"

	case errors.Is(err, service.ErrNotificationFailed):
		return "Failed to send email"

	case MapErrorToStatusCode(err) == http.StatusBadGateway:
		return "Scanning service is unavailable"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the status and safe message for err. defaultMsg
// replaces the generic message for errors that map to 500.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		message = defaultMsg
	}

	var opts []shared.ResponseOption
	if status == http.StatusForbidden {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
	}
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required", "required_without":
		return "required field"
	case "email":
		return "invalid email format"
	case "len":
		return "wrong length"
	case "numeric":
		return "must be numeric"
	case "ip":
		return "invalid IP address"
	case "ipv4":
		return "invalid IPv4 address"
	case "ipv6":
		return "invalid IPv6 address"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "datetime":
		return "invalid timestamp"
	default:
		return "validation failed"
	}
}
