package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/platform/logger"
	"github.com/vietguard/vietguard-api/internal/store"
)

// PostgresAccessLogStore implements store.AccessLogStore.
type PostgresAccessLogStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAccessLogStore creates an access log store over db.
func NewPostgresAccessLogStore(db store.DBTX, logger *slog.Logger) *PostgresAccessLogStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAccessLogStore{
		db:     db,
		logger: logger.With(slog.String("component", "access_log_store")),
	}
}

var _ store.AccessLogStore = (*PostgresAccessLogStore)(nil)

const accessLogColumns = `id, ipv4, ipv6, email, access_count, last_access_time, created_at, updated_at`

func scanAccessLog(row rowScanner) (*domain.AccessLog, error) {
	var (
		l                 domain.AccessLog
		ipv4, ipv6, email sql.NullString
	)
	err := row.Scan(&l.ID, &ipv4, &ipv6, &email, &l.AccessCount, &l.LastAccessAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.IPv4 = ipv4.String
	l.IPv6 = ipv6.String
	l.Email = email.String
	return &l, nil
}

// primaryColumn returns the column and value a client address is keyed by.
func primaryColumn(addr domain.ClientAddress) (string, string, error) {
	ip, isV6, err := addr.Primary()
	if err != nil {
		return "", "", err
	}
	if isV6 {
		return "ipv6", ip, nil
	}
	return "ipv4", ip, nil
}

// Record implements store.AccessLogStore. Visits from the same primary
// address are serialized with an advisory lock so the first visit creates
// exactly one row.
func (s *PostgresAccessLogStore) Record(
	ctx context.Context,
	addr domain.ClientAddress,
	at time.Time,
) (*domain.AccessLog, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	column, ip, err := primaryColumn(addr)
	if err != nil {
		return nil, err
	}
	ipv4 := strings.TrimSpace(addr.IPv4)
	ipv6 := strings.TrimSpace(addr.IPv6)

	var out *domain.AccessLog
	err = store.WithTx(ctx, s.db, func(q store.DBTX) error {
		if _, err := q.ExecContext(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			"access_logs:"+ip,
		); err != nil {
			return fmt.Errorf("failed to acquire access log lock: %w", err)
		}

		existing, err := scanAccessLog(q.QueryRowContext(ctx,
			`SELECT `+accessLogColumns+` FROM access_logs WHERE `+column+` = $1
			ORDER BY created_at LIMIT 1 FOR UPDATE`, ip))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			l := &domain.AccessLog{
				ID:           uuid.New(),
				IPv4:         ipv4,
				IPv6:         ipv6,
				AccessCount:  1,
				LastAccessAt: at,
				CreatedAt:    at,
				UpdatedAt:    at,
			}
			_, err := q.ExecContext(ctx, `
				INSERT INTO access_logs (`+accessLogColumns+`)
				VALUES ($1, $2, $3, NULL, $4, $5, $6, $7)`,
				l.ID, nullString(l.IPv4), nullString(l.IPv6), l.AccessCount,
				l.LastAccessAt, l.CreatedAt, l.UpdatedAt,
			)
			if err != nil {
				return MapError(err, nil)
			}
			out = l
			return nil
		case err != nil:
			return MapError(err, nil)
		}

		updated, err := scanAccessLog(q.QueryRowContext(ctx, `
			UPDATE access_logs
			SET access_count = access_count + 1,
				last_access_time = $2,
				updated_at = $2,
				ipv4 = COALESCE(ipv4, $3),
				ipv6 = COALESCE(ipv6, $4)
			WHERE id = $1
			RETURNING `+accessLogColumns,
			existing.ID, at, nullString(ipv4), nullString(ipv6),
		))
		if err != nil {
			return MapError(err, store.ErrAccessLogNotFound)
		}
		out = updated
		return nil
	})
	if err != nil {
		log.Error("failed to record access",
			slog.String("ip_column", column),
			slog.String("error", err.Error()))
		return nil, err
	}
	return out, nil
}

// SetEmailIfEmpty implements store.AccessLogStore.
func (s *PostgresAccessLogStore) SetEmailIfEmpty(
	ctx context.Context,
	addr domain.ClientAddress,
	email string,
) (bool, error) {
	column, ip, err := primaryColumn(addr)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE access_logs
		SET email = $2, updated_at = $3
		WHERE id = (
			SELECT id FROM access_logs WHERE `+column+` = $1 ORDER BY created_at LIMIT 1
		) AND (email IS NULL OR email = '')`,
		ip, email, time.Now().UTC(),
	)
	if err != nil {
		return false, MapError(err, nil)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// List implements store.AccessLogStore. The query is normalized first, so
// the sort column and direction interpolated below are always whitelisted.
func (s *PostgresAccessLogStore) List(
	ctx context.Context,
	q domain.AccessLogQuery,
) ([]domain.AccessLog, int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	q = q.Normalize()

	where := ""
	args := []any{}
	if q.Search != "" {
		where = `WHERE ipv4 ILIKE $1 OR ipv6 ILIKE $1 OR email ILIKE $1`
		args = append(args, "%"+q.Search+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_logs `+where, args...).Scan(&total); err != nil {
		log.Error("failed to count access logs", slog.String("error", err.Error()))
		return nil, 0, MapError(err, nil)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM access_logs %s ORDER BY %s %s, id LIMIT $%d OFFSET $%d`,
		accessLogColumns, where, q.SortBy, q.SortOrder, n+1, n+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, q.Limit, q.Offset())...)
	if err != nil {
		log.Error("failed to list access logs", slog.String("error", err.Error()))
		return nil, 0, MapError(err, nil)
	}
	defer func() { _ = rows.Close() }()

	var logs []domain.AccessLog
	for rows.Next() {
		l, err := scanAccessLog(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan access log row: %w", err)
		}
		logs = append(logs, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating access log rows: %w", err)
	}
	return logs, total, nil
}

// Count implements store.AccessLogStore.
func (s *PostgresAccessLogStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_logs`).Scan(&n); err != nil {
		return 0, MapError(err, nil)
	}
	return n, nil
}
