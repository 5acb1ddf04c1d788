package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/events"
	"github.com/vietguard/vietguard-api/internal/store"
)

// HistoryRecorder persists task transitions and serves the trail back.
type HistoryRecorder struct {
	history store.TaskHistoryStore
	tasks   store.TaskStore
	logger  *slog.Logger
}

var _ events.EventHandler = (*HistoryRecorder)(nil)

// NewHistoryRecorder creates a HistoryRecorder.
func NewHistoryRecorder(history store.TaskHistoryStore, tasks store.TaskStore, logger *slog.Logger) *HistoryRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryRecorder{
		history: history,
		tasks:   tasks,
		logger:  logger.With("component", "history_recorder"),
	}
}

// HandleEvent implements events.EventHandler.
func (h *HistoryRecorder) HandleEvent(ctx context.Context, event *events.TaskTransitionEvent) error {
	if err := h.history.Append(ctx, event.History()); err != nil {
		return NewServiceError("record_history", "failed to append history", err)
	}
	h.logger.DebugContext(ctx, "recorded task transition",
		"task_id", event.TaskID, "from", event.From, "to", event.To)
	return nil
}

// List returns the transitions of taskID, oldest first.
func (h *HistoryRecorder) List(ctx context.Context, taskID uuid.UUID) ([]domain.TaskHistory, error) {
	if _, err := h.tasks.GetByID(ctx, taskID); err != nil {
		return nil, NewServiceError("list_history", "failed to load task", err)
	}
	entries, err := h.history.ListByTask(ctx, taskID)
	if err != nil {
		return nil, NewServiceError("list_history", "failed to load history", err)
	}
	return orEmpty(entries), nil
}
