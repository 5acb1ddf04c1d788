// Package middleware holds the HTTP middleware shared by every route.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/vietguard/vietguard-api/internal/api/shared"
	"github.com/vietguard/vietguard-api/internal/platform/logger"
)

// NewTraceMiddleware adds a trace ID and a request-scoped logger to the
// request context. A valid X-Request-ID from the caller is reused as the
// trace ID and echoed back.
func NewTraceMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.WithTraceID(r.Context(), r.Header.Get(shared.RequestIDHeader))
			traceID := shared.GetTraceID(ctx)

			reqLog := log.With(slog.String("trace_id", traceID))
			ctx = logger.WithLogger(ctx, reqLog)

			reqLog.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			w.Header().Set(shared.RequestIDHeader, traceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
