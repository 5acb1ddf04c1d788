package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/store"
)

// PostgresTaskHistoryStore implements store.TaskHistoryStore.
type PostgresTaskHistoryStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskHistoryStore creates a task history store over db.
func NewPostgresTaskHistoryStore(db store.DBTX, logger *slog.Logger) *PostgresTaskHistoryStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskHistoryStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_history_store")),
	}
}

var _ store.TaskHistoryStore = (*PostgresTaskHistoryStore)(nil)

// Append implements store.TaskHistoryStore.
func (s *PostgresTaskHistoryStore) Append(ctx context.Context, e *domain.TaskHistory) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_history (id, task_id, from_status, to_status, remote_status, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.TaskID, string(e.FromStatus), string(e.ToStatus), e.RemoteStatus, e.OccurredAt,
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to append task history",
			slog.String("task_id", e.TaskID.String()),
			slog.String("error", err.Error()))
		return MapError(err, nil)
	}
	return nil
}

// ListByTask implements store.TaskHistoryStore.
func (s *PostgresTaskHistoryStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]domain.TaskHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, from_status, to_status, remote_status, occurred_at
		FROM task_history
		WHERE task_id = $1
		ORDER BY occurred_at, id`,
		taskID,
	)
	if err != nil {
		return nil, MapError(err, nil)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.TaskHistory
	for rows.Next() {
		var (
			e        domain.TaskHistory
			from, to string
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &from, &to, &e.RemoteStatus, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan task history row: %w", err)
		}
		e.FromStatus = domain.TaskStatus(from)
		e.ToStatus = domain.TaskStatus(to)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task history rows: %w", err)
	}
	return out, nil
}
