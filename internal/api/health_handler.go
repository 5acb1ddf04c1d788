package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietguard/vietguard-api/internal/api/shared"
)

// Pinger checks a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HealthHandler reports process and database liveness.
type HealthHandler struct {
	db      Pinger
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. db may be nil when the process
// runs without a database.
func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{db: db, timeout: 2 * time.Second, logger: logger}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Database: "disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		h.logger.WarnContext(r.Context(), "health check failed", "error", err)
		shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Database: "down"})
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Database: "up"})
}
