package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/api/shared"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/platform/scanapi"
	"github.com/vietguard/vietguard-api/internal/service"
)

// ScanProxy is the part of the scanning API the gateway relays directly.
type ScanProxy interface {
	GetStatusResponse(ctx context.Context, id string) (json.RawMessage, error)
	GetArtifact(ctx context.Context, id string) (*scanapi.Artifact, error)
	GetHistory(ctx context.Context, startTime, endTime string) (json.RawMessage, error)
	CreateMember(ctx context.Context, r scanapi.CreateMemberRequest) (json.RawMessage, error)
	ListMembers(ctx context.Context, query url.Values) (json.RawMessage, error)
	AssignServices(ctx context.Context, r scanapi.AssignServicesRequest) (json.RawMessage, error)
	ExportServiceUsageLogs(ctx context.Context) ([]byte, error)
}

// Downloads redeems signed report links.
type Downloads interface {
	Redeem(ctx context.Context, token string) (*scanapi.Artifact, error)
}

// TaskHistory lists the recorded transitions of a task.
type TaskHistory interface {
	List(ctx context.Context, taskID uuid.UUID) ([]domain.TaskHistory, error)
}

// HistoryQuery filters the scanner's task history.
type HistoryQuery struct {
	StartTime string `json:"startTime" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	EndTime   string `json:"endTime"   validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// ServiceHandler serves the scan submission and result endpoints.
type ServiceHandler struct {
	scanner        ScanProxy
	tasks          service.TaskService
	downloads      Downloads
	history        TaskHistory
	validator      *validator.Validate
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewServiceHandler creates a new ServiceHandler.
func NewServiceHandler(
	scanner ScanProxy,
	tasks service.TaskService,
	downloads Downloads,
	history TaskHistory,
	maxUploadBytes int64,
	logger *slog.Logger,
) *ServiceHandler {
	if scanner == nil || tasks == nil || downloads == nil || history == nil {
		panic("api: service handler requires scanner, tasks, downloads and history")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceHandler{
		scanner:        scanner,
		tasks:          tasks,
		downloads:      downloads,
		history:        history,
		validator:      newValidator(),
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "service_handler")),
	}
}

// SubmitAppTotalGo handles POST /api/service/app-total-go. The scanner's
// response is relayed unchanged.
func (h *ServiceHandler) SubmitAppTotalGo(w http.ResponseWriter, r *http.Request) {
	upload, err := parseUpload(w, r, h.maxUploadBytes)
	if err != nil {
		handleUploadError(w, r, err)
		return
	}
	defer upload.Close()

	if upload.MemberName == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "memberName is required")
		return
	}

	res, err := h.tasks.SubmitDirect(r.Context(), upload.MemberName, upload.Upload)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit file")
		return
	}
	h.logger.InfoContext(r.Context(), "file submitted", "external_id", res.ID)
	shared.RespondWithRawJSON(w, r, http.StatusCreated, res.Raw)
}

// GetStatus handles GET /api/service/app-total-go/status/{id}.
func (h *ServiceHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := getPathParam(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	body, err := h.scanner.GetStatusResponse(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task status")
		return
	}
	shared.RespondWithRawJSON(w, r, http.StatusOK, body)
}

// GetFiles handles GET /api/service/app-total-go/files/{id}.
func (h *ServiceHandler) GetFiles(w http.ResponseWriter, r *http.Request) {
	id, err := getPathParam(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	artifact, err := h.scanner.GetArtifact(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to download analysis result")
		return
	}
	shared.RespondWithFile(w, r, artifact.ContentType, artifact.FileName, artifact.Data)
}

// GetHistory handles GET /api/service/app-total-go/history.
func (h *ServiceHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := HistoryQuery{
		StartTime: r.URL.Query().Get("startTime"),
		EndTime:   r.URL.Query().Get("endTime"),
	}
	if err := h.validator.Struct(q); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	body, err := h.scanner.GetHistory(r.Context(), q.StartTime, q.EndTime)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get history")
		return
	}
	shared.RespondWithRawJSON(w, r, http.StatusOK, body)
}

// Download handles GET /api/service/app-total-go/download/{token}, the link
// sent in completion emails.
func (h *ServiceHandler) Download(w http.ResponseWriter, r *http.Request) {
	token, err := getPathParam(r, "token")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	artifact, err := h.downloads.Redeem(r.Context(), token)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to download report")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	shared.RespondWithFile(w, r, artifact.ContentType, artifact.FileName, artifact.Data)
}

// TaskHistoryResponse lists a task's transitions.
type TaskHistoryResponse struct {
	TaskID  uuid.UUID            `json:"task_id"`
	Status  domain.TaskStatus    `json:"status"`
	History []domain.TaskHistory `json:"history"`
}

// GetTaskHistory handles GET /api/service/tasks/{id}/history.
func (h *ServiceHandler) GetTaskHistory(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.tasks.GetTask(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load task")
		return
	}
	entries, err := h.history.List(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load task history")
		return
	}
	if entries == nil {
		entries = []domain.TaskHistory{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskHistoryResponse{
		TaskID:  task.ID,
		Status:  task.Status,
		History: entries,
	})
}
