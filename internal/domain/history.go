package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskHistory records one status transition of a task.
type TaskHistory struct {
	ID           uuid.UUID  `json:"id"`
	TaskID       uuid.UUID  `json:"task_id"`
	FromStatus   TaskStatus `json:"from_status"`
	ToStatus     TaskStatus `json:"to_status"`
	RemoteStatus string     `json:"remote_status,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}
