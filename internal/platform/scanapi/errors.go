package scanapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error definitions for the scanapi package.
var (
	// ErrInvalidConfig is returned when the client configuration is unusable.
	ErrInvalidConfig = errors.New("invalid scan api configuration")

	// ErrInvalidResponse is returned when a 2xx body cannot be interpreted.
	ErrInvalidResponse = errors.New("invalid response from scan api")

	// ErrResponseTooLarge is returned when a body exceeds the configured cap.
	ErrResponseTooLarge = errors.New("scan api response exceeds size limit")

	// ErrMissingID is returned when an operation needs an external task id.
	ErrMissingID = errors.New("external task id is required")

	// ErrMissingFile is returned when a submission has no file.
	ErrMissingFile = errors.New("file is required")
)

// APIError is a non-2xx response from the scan API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("scan api returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("scan api returned %d: %s", e.StatusCode, e.Message)
}

// IsTransient reports whether err is worth trying again on a later tick:
// network failures, timeouts, throttling and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
