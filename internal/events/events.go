package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
)

// TaskTransitionEvent describes a status transition that has been applied
// to a scan task.
type TaskTransitionEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	TaskID uuid.UUID         `json:"task_id"`
	From   domain.TaskStatus `json:"from"`
	To     domain.TaskStatus `json:"to"`

	// RemoteStatus is the scanner status that caused the change, if any.
	RemoteStatus string `json:"remote_status,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewTaskTransitionEvent creates an event for an applied transition.
func NewTaskTransitionEvent(taskID uuid.UUID, from, to domain.TaskStatus, remoteStatus string) *TaskTransitionEvent {
	return &TaskTransitionEvent{
		ID:           uuid.New(),
		TaskID:       taskID,
		From:         from,
		To:           to,
		RemoteStatus: remoteStatus,
		OccurredAt:   time.Now().UTC(),
	}
}

// History converts the event into a persisted history entry.
func (e *TaskTransitionEvent) History() *domain.TaskHistory {
	return &domain.TaskHistory{
		ID:           e.ID,
		TaskID:       e.TaskID,
		FromStatus:   e.From,
		ToStatus:     e.To,
		RemoteStatus: e.RemoteStatus,
		OccurredAt:   e.OccurredAt,
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *TaskTransitionEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskTransitionEvent) error
}

// NopEmitter discards every event.
type NopEmitter struct{}

// EmitEvent implements EventEmitter.
func (NopEmitter) EmitEvent(context.Context, *TaskTransitionEvent) error { return nil }
