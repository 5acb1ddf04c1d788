package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/platform/logger"
	"github.com/vietguard/vietguard-api/internal/store"
)

const taskColumns = `id, member_id, external_id, file_name, client_ip, status, remote_status,
	artifact_name, artifact_type, poll_failures, created_at, updated_at`

// PostgresTaskStore implements store.TaskStore.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a task store over db. A nil logger selects
// slog.Default().
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.ScanTask, error) {
	var (
		t          domain.ScanTask
		externalID sql.NullString
		status     string
	)
	err := row.Scan(
		&t.ID,
		&t.MemberID,
		&externalID,
		&t.FileName,
		&t.ClientIP,
		&status,
		&t.RemoteStatus,
		&t.ArtifactName,
		&t.ArtifactType,
		&t.PollFailures,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.ExternalID = externalID.String
	t.Status = domain.TaskStatus(status)
	return &t, nil
}

func insertTask(ctx context.Context, q store.DBTX, t *domain.ScanTask) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO scan_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID,
		t.MemberID,
		nullString(t.ExternalID),
		t.FileName,
		t.ClientIP,
		string(t.Status),
		t.RemoteStatus,
		t.ArtifactName,
		t.ArtifactType,
		t.PollFailures,
		t.CreatedAt,
		t.UpdatedAt,
	)
	return err
}

// Create implements store.TaskStore.
func (s *PostgresTaskStore) Create(ctx context.Context, t *domain.ScanTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	if err := insertTask(ctx, s.db, t); err != nil {
		log.Error("failed to create task",
			slog.String("task_id", t.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err, nil)
	}
	return nil
}

// CreateAdmitted implements store.TaskStore. The member's advisory lock is
// held for the rest of the transaction, so concurrent admissions for the
// same member are serialized between count and insert.
func (s *PostgresTaskStore) CreateAdmitted(
	ctx context.Context,
	t *domain.ScanTask,
	limit int,
	since time.Time,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	return store.WithTx(ctx, s.db, func(q store.DBTX) error {
		if _, err := q.ExecContext(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			"scan_tasks:"+t.MemberID.String(),
		); err != nil {
			return fmt.Errorf("failed to acquire admission lock: %w", err)
		}

		count, err := countCreatedSince(ctx, q, t.MemberID, since)
		if err != nil {
			return err
		}
		if count >= limit {
			log.Info("task admission denied",
				slog.String("member_id", t.MemberID.String()),
				slog.Int("count", count),
				slog.Int("limit", limit))
			return fmt.Errorf("%w: %d of %d tasks used", store.ErrAdmissionDenied, count, limit)
		}

		if err := insertTask(ctx, q, t); err != nil {
			log.Error("failed to insert admitted task",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()))
			return MapError(err, nil)
		}
		return nil
	})
}

// GetByID implements store.TaskStore.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScanTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scan_tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, MapError(err, store.ErrTaskNotFound)
	}
	return t, nil
}

// GetByExternalID implements store.TaskStore.
func (s *PostgresTaskStore) GetByExternalID(ctx context.Context, externalID string) (*domain.ScanTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM scan_tasks WHERE external_id = $1`, externalID)
	t, err := scanTask(row)
	if err != nil {
		return nil, MapError(err, store.ErrTaskNotFound)
	}
	return t, nil
}

// ListByMember implements store.TaskStore.
func (s *PostgresTaskStore) ListByMember(ctx context.Context, memberID uuid.UUID) ([]domain.ScanTask, error) {
	return s.list(ctx,
		`SELECT `+taskColumns+` FROM scan_tasks WHERE member_id = $1 ORDER BY created_at DESC`,
		memberID)
}

// ListPollable implements store.TaskStore.
func (s *PostgresTaskStore) ListPollable(ctx context.Context) ([]domain.ScanTask, error) {
	return s.list(ctx, `
		SELECT `+taskColumns+`
		FROM scan_tasks
		WHERE status = $1 AND external_id IS NOT NULL AND external_id <> ''
		ORDER BY created_at ASC`,
		string(domain.TaskStatusInProgress))
}

func (s *PostgresTaskStore) list(ctx context.Context, query string, args ...any) ([]domain.ScanTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", slog.String("error", err.Error()))
		return nil, MapError(err, nil)
	}
	defer func() { _ = rows.Close() }()

	var tasks []domain.ScanTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

func countCreatedSince(ctx context.Context, q store.DBTX, memberID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scan_tasks WHERE member_id = $1 AND created_at >= $2`,
		memberID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// CountCreatedSince implements store.TaskStore.
func (s *PostgresTaskStore) CountCreatedSince(ctx context.Context, memberID uuid.UUID, since time.Time) (int, error) {
	return countCreatedSince(ctx, s.db, memberID, since)
}

// Transition implements store.TaskStore.
func (s *PostgresTaskStore) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.TaskStatus,
	update store.TaskUpdate,
) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE scan_tasks
		SET status = $3,
			external_id = COALESCE(NULLIF($4, ''), external_id),
			remote_status = COALESCE(NULLIF($5, ''), remote_status),
			poll_failures = 0,
			updated_at = $6
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), update.ExternalID, update.RemoteStatus, time.Now().UTC(),
	)
	if err != nil {
		log.Error("failed to transition task",
			slog.String("task_id", id.String()),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
			slog.String("error", err.Error()))
		return false, MapError(err, nil)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		log.Debug("task transition not applied",
			slog.String("task_id", id.String()),
			slog.String("from", string(from)),
			slog.String("to", string(to)))
	}
	return n == 1, nil
}

// RecordPoll implements store.TaskStore.
func (s *PostgresTaskStore) RecordPoll(ctx context.Context, id uuid.UUID, remoteStatus string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_tasks
		SET remote_status = $2, poll_failures = 0, updated_at = $3
		WHERE id = $1 AND status = $4`,
		id, remoteStatus, time.Now().UTC(), string(domain.TaskStatusInProgress),
	)
	return MapError(err, nil)
}

// RecordPollFailure implements store.TaskStore. A task that already left
// in_progress reports zero failures.
func (s *PostgresTaskStore) RecordPollFailure(ctx context.Context, id uuid.UUID) (int, error) {
	var failures int
	err := s.db.QueryRowContext(ctx, `
		UPDATE scan_tasks
		SET poll_failures = poll_failures + 1, updated_at = $2
		WHERE id = $1 AND status = $3
		RETURNING poll_failures`,
		id, time.Now().UTC(), string(domain.TaskStatusInProgress),
	).Scan(&failures)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, MapError(err, nil)
	}
	return failures, nil
}

// SetArtifact implements store.TaskStore.
func (s *PostgresTaskStore) SetArtifact(ctx context.Context, id uuid.UUID, name, contentType string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scan_tasks SET artifact_name = $2, artifact_type = $3, updated_at = $4
		WHERE id = $1`,
		id, name, contentType, time.Now().UTC(),
	)
	if err != nil {
		return MapError(err, nil)
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// ResolveOwnerContact implements store.TaskStore.
func (s *PostgresTaskStore) ResolveOwnerContact(ctx context.Context, taskID uuid.UUID) (store.OwnerContact, error) {
	var c store.OwnerContact
	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.name, m.email
		FROM scan_tasks t
		JOIN members m ON m.id = t.member_id
		WHERE t.id = $1`,
		taskID,
	).Scan(&c.MemberID, &c.Name, &c.Email)
	if err != nil {
		return store.OwnerContact{}, MapError(err, store.ErrTaskNotFound)
	}
	if c.Email == "" {
		c.Email = c.Name
	}
	return c, nil
}
