package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/api/shared"
	"github.com/vietguard/vietguard-api/internal/domain"
)

// AccessLogs records and lists visitor addresses.
type AccessLogs interface {
	RecordAccess(ctx context.Context, addr domain.ClientAddress) (*domain.AccessLog, error)
	List(ctx context.Context, q domain.AccessLogQuery) (domain.AccessLogPage, error)
	Count(ctx context.Context) (int, error)
}

// RecordAccessRequest is the body of POST /access-logs/record.
type RecordAccessRequest struct {
	IPv4 string `json:"ipv4" validate:"omitempty,max=45"`
	IPv6 string `json:"ipv6" validate:"omitempty,max=45"`
}

// RecordAccessData identifies the updated access log.
type RecordAccessData struct {
	ID          uuid.UUID `json:"id"`
	AccessCount int       `json:"access_count"`
}

// RecordAccessResponse is returned after an access is recorded.
type RecordAccessResponse struct {
	Message string           `json:"message"`
	Data    RecordAccessData `json:"data"`
}

// CountResponse carries the number of distinct visitors.
type CountResponse struct {
	Total int `json:"total"`
}

// AccessLogHandler serves the visitor counter.
type AccessLogHandler struct {
	logs      AccessLogs
	validator *validator.Validate
	logger    *slog.Logger
}

// NewAccessLogHandler creates a new AccessLogHandler.
func NewAccessLogHandler(logs AccessLogs, logger *slog.Logger) *AccessLogHandler {
	if logs == nil {
		panic("api: access log handler requires an access log service")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessLogHandler{
		logs:      logs,
		validator: newValidator(),
		logger:    logger.With(slog.String("component", "access_log_handler")),
	}
}

// Record handles POST /access-logs/record.
func (h *AccessLogHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req RecordAccessRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	entry, err := h.logs.RecordAccess(r.Context(), domain.ClientAddress{IPv4: req.IPv4, IPv6: req.IPv6})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to record access")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, RecordAccessResponse{
		Message: "Access recorded successfully",
		Data:    RecordAccessData{ID: entry.ID, AccessCount: entry.AccessCount},
	})
}

// List handles GET /access-logs. Malformed paging values fall back to the
// defaults.
func (h *AccessLogHandler) List(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	q := domain.AccessLogQuery{
		SortBy:    values.Get("sortBy"),
		SortOrder: values.Get("sortOrder"),
		Search:    values.Get("search"),
	}
	q.Page, _ = strconv.Atoi(values.Get("page"))
	q.Limit, _ = strconv.Atoi(values.Get("limit"))

	page, err := h.logs.List(r.Context(), q)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list access logs")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, page)
}

// Count handles GET /access-logs/count.
func (h *AccessLogHandler) Count(w http.ResponseWriter, r *http.Request) {
	total, err := h.logs.Count(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to count visitors")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CountResponse{Total: total})
}
