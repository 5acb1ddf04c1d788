package shared

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Key type for context values
type ContextKey string

const (
	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// RequestIDHeader carries a caller-supplied trace ID.
	RequestIDHeader = "X-Request-ID"

	// maxTraceIDLength bounds caller-supplied IDs.
	maxTraceIDLength = 64
)

// SetTraceID adds a freshly generated trace ID to the context.
func SetTraceID(ctx context.Context) context.Context {
	return WithTraceID(ctx, "")
}

// WithTraceID adds id to the context, generating one when id is empty or
// unusable.
func WithTraceID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxTraceIDLength || strings.ContainsAny(id, " \t\r\n") {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, TraceIDKey, id)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}
