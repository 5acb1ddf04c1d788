package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/platform/logger"
	"github.com/vietguard/vietguard-api/internal/store"
)

// PostgresMemberStore implements store.MemberStore.
type PostgresMemberStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresMemberStore creates a member store over db.
func NewPostgresMemberStore(db store.DBTX, logger *slog.Logger) *PostgresMemberStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresMemberStore{
		db:     db,
		logger: logger.With(slog.String("component", "member_store")),
	}
}

var _ store.MemberStore = (*PostgresMemberStore)(nil)

const memberColumns = `id, name, email, external_id, created_at, updated_at`

func scanMember(row rowScanner) (*domain.Member, error) {
	var (
		m          domain.Member
		externalID sql.NullString
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &externalID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.ExternalID = externalID.String
	return &m, nil
}

// Create implements store.MemberStore.
func (s *PostgresMemberStore) Create(ctx context.Context, m *domain.Member) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (`+memberColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.Name, m.Email, nullString(m.ExternalID), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("member already exists", slog.String("member_id", m.ID.String()))
			return store.ErrMemberExists
		}
		log.Error("failed to create member",
			slog.String("member_id", m.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err, nil)
	}
	return nil
}

// GetByID implements store.MemberStore.
func (s *PostgresMemberStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	m, err := scanMember(row)
	if err != nil {
		return nil, MapError(err, store.ErrMemberNotFound)
	}
	return m, nil
}

// GetByName implements store.MemberStore.
func (s *PostgresMemberStore) GetByName(ctx context.Context, name string) (*domain.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE name = $1`, name)
	m, err := scanMember(row)
	if err != nil {
		return nil, MapError(err, store.ErrMemberNotFound)
	}
	return m, nil
}

// SetExternalID implements store.MemberStore.
func (s *PostgresMemberStore) SetExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE members SET external_id = $2, updated_at = $3 WHERE id = $1`,
		id, nullString(externalID), time.Now().UTC(),
	)
	if err != nil {
		return MapError(err, nil)
	}
	return CheckRowsAffected(result, store.ErrMemberNotFound)
}

// AddServices implements store.MemberStore. All assignments are written in
// one transaction.
func (s *PostgresMemberStore) AddServices(ctx context.Context, services []domain.MemberService) error {
	if len(services) == 0 {
		return nil
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	return store.WithTx(ctx, s.db, func(q store.DBTX) error {
		for _, svc := range services {
			var limit sql.NullInt64
			if svc.UsageLimit != nil {
				limit = sql.NullInt64{Int64: int64(*svc.UsageLimit), Valid: true}
			}
			assigned := svc.AssignedAt
			if assigned.IsZero() {
				assigned = time.Now().UTC()
			}
			_, err := q.ExecContext(ctx, `
				INSERT INTO member_services (member_id, service_type, usage_limit, assigned_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (member_id, service_type)
				DO UPDATE SET usage_limit = EXCLUDED.usage_limit, assigned_at = EXCLUDED.assigned_at`,
				svc.MemberID, int(svc.ServiceType), limit, assigned,
			)
			if err != nil {
				log.Error("failed to assign service",
					slog.String("member_id", svc.MemberID.String()),
					slog.Int("service_type", int(svc.ServiceType)),
					slog.String("error", err.Error()))
				return MapError(err, nil)
			}
		}
		return nil
	})
}

// ListServices implements store.MemberStore.
func (s *PostgresMemberStore) ListServices(ctx context.Context, memberID uuid.UUID) ([]domain.MemberService, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT member_id, service_type, usage_limit, assigned_at
		FROM member_services
		WHERE member_id = $1
		ORDER BY service_type`,
		memberID,
	)
	if err != nil {
		return nil, MapError(err, nil)
	}
	defer func() { _ = rows.Close() }()

	var services []domain.MemberService
	for rows.Next() {
		var (
			svc   domain.MemberService
			typ   int
			limit sql.NullInt64
		)
		if err := rows.Scan(&svc.MemberID, &typ, &limit, &svc.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member service row: %w", err)
		}
		svc.ServiceType = domain.ServiceType(typ)
		if limit.Valid {
			n := int(limit.Int64)
			svc.UsageLimit = &n
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member service rows: %w", err)
	}
	return services, nil
}
