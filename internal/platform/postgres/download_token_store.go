package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/store"
)

// PostgresDownloadTokenStore implements store.DownloadTokenStore.
type PostgresDownloadTokenStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresDownloadTokenStore creates a download token store over db.
func NewPostgresDownloadTokenStore(db store.DBTX, logger *slog.Logger) *PostgresDownloadTokenStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDownloadTokenStore{
		db:     db,
		logger: logger.With(slog.String("component", "download_token_store")),
	}
}

var _ store.DownloadTokenStore = (*PostgresDownloadTokenStore)(nil)

// Create implements store.DownloadTokenStore.
func (s *PostgresDownloadTokenStore) Create(ctx context.Context, t *domain.DownloadToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO download_tokens (id, task_id, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.TaskID, t.ExpiresAt, t.Used, t.CreatedAt,
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create download token",
			slog.String("task_id", t.TaskID.String()),
			slog.String("error", err.Error()))
		return MapError(err, nil)
	}
	return nil
}

// Get implements store.DownloadTokenStore.
func (s *PostgresDownloadTokenStore) Get(ctx context.Context, id uuid.UUID) (*domain.DownloadToken, error) {
	var t domain.DownloadToken
	err := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, expires_at, used, created_at FROM download_tokens WHERE id = $1`, id,
	).Scan(&t.ID, &t.TaskID, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if err != nil {
		return nil, MapError(err, store.ErrDownloadTokenNotFound)
	}
	return &t, nil
}

// MarkUsed implements store.DownloadTokenStore.
func (s *PostgresDownloadTokenStore) MarkUsed(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `UPDATE download_tokens SET used = true WHERE id = $1`, id)
	if err != nil {
		return MapError(err, nil)
	}
	return CheckRowsAffected(result, store.ErrDownloadTokenNotFound)
}
