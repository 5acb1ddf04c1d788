package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
)

// DownloadTokenStore persists issued download tokens.
type DownloadTokenStore interface {
	Create(ctx context.Context, token *domain.DownloadToken) error
	// Get returns ErrDownloadTokenNotFound for unknown ids.
	Get(ctx context.Context, id uuid.UUID) (*domain.DownloadToken, error)
	MarkUsed(ctx context.Context, id uuid.UUID) error
}

// TaskHistoryStore persists the transition trail of tasks.
type TaskHistoryStore interface {
	Append(ctx context.Context, entry *domain.TaskHistory) error
	// ListByTask returns entries oldest first.
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]domain.TaskHistory, error)
}
