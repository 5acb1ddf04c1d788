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

// PostgresVerificationStore implements store.VerificationStore.
type PostgresVerificationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresVerificationStore creates a verification store over db.
func NewPostgresVerificationStore(db store.DBTX, logger *slog.Logger) *PostgresVerificationStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresVerificationStore{
		db:     db,
		logger: logger.With(slog.String("component", "verification_store")),
	}
}

var _ store.VerificationStore = (*PostgresVerificationStore)(nil)

const verificationColumns = `v.id, v.member_id, v.code_hash, v.verified, v.expires_at, v.verified_at,
	v.full_name, v.company_name, v.phone, v.note, v.file_name, v.file_size, v.created_at`

func verificationDest(v *domain.Verification, verifiedAt *sql.NullTime) []any {
	return []any{
		&v.ID, &v.MemberID, &v.CodeHash, &v.Verified, &v.ExpiresAt, verifiedAt,
		&v.FullName, &v.CompanyName, &v.Phone, &v.Note, &v.FileName, &v.FileSize, &v.CreatedAt,
	}
}

func applyVerifiedAt(v *domain.Verification, at sql.NullTime) {
	if at.Valid {
		t := at.Time
		v.VerifiedAt = &t
	}
}

// Create implements store.VerificationStore.
func (s *PostgresVerificationStore) Create(ctx context.Context, v *domain.Verification) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var verifiedAt sql.NullTime
	if v.VerifiedAt != nil {
		verifiedAt = sql.NullTime{Time: *v.VerifiedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO member_verifications
			(id, member_id, code_hash, verified, expires_at, verified_at,
			 full_name, company_name, phone, note, file_name, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		v.ID, v.MemberID, v.CodeHash, v.Verified, v.ExpiresAt, verifiedAt,
		v.FullName, v.CompanyName, v.Phone, v.Note, v.FileName, v.FileSize, v.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create verification",
			slog.String("member_id", v.MemberID.String()),
			slog.String("error", err.Error()))
		return MapError(err, nil)
	}
	return nil
}

// ListByMember implements store.VerificationStore.
func (s *PostgresVerificationStore) ListByMember(
	ctx context.Context,
	memberID uuid.UUID,
	verified *bool,
) ([]domain.Verification, error) {
	var flag sql.NullBool
	if verified != nil {
		flag = sql.NullBool{Bool: *verified, Valid: true}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+verificationColumns+`
		FROM member_verifications v
		WHERE v.member_id = $1 AND ($2::boolean IS NULL OR v.verified = $2)
		ORDER BY v.created_at DESC`,
		memberID, flag,
	)
	if err != nil {
		return nil, MapError(err, nil)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Verification
	for rows.Next() {
		var (
			v  domain.Verification
			at sql.NullTime
		)
		if err := rows.Scan(verificationDest(&v, &at)...); err != nil {
			return nil, fmt.Errorf("failed to scan verification row: %w", err)
		}
		applyVerifiedAt(&v, at)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verification rows: %w", err)
	}
	return out, nil
}

// MarkVerified implements store.VerificationStore.
func (s *PostgresVerificationStore) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE member_verifications
		SET verified = true, verified_at = $2
		WHERE id = $1 AND verified = false`,
		id, at,
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

// UpdateUserInfo implements store.VerificationStore.
func (s *PostgresVerificationStore) UpdateUserInfo(ctx context.Context, id uuid.UUID, info domain.UserInfo) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE member_verifications
		SET full_name = $2, company_name = $3, phone = $4, note = $5, file_name = $6, file_size = $7
		WHERE id = $1`,
		id, info.FullName, info.CompanyName, info.Phone, info.Note, info.FileName, info.FileSize,
	)
	if err != nil {
		return MapError(err, nil)
	}
	return CheckRowsAffected(result, store.ErrVerificationNotFound)
}

// ListAll implements store.VerificationStore.
func (s *PostgresVerificationStore) ListAll(ctx context.Context) ([]domain.VerificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+verificationColumns+`, m.email
		FROM member_verifications v
		JOIN members m ON m.id = v.member_id
		ORDER BY v.created_at DESC`)
	if err != nil {
		return nil, MapError(err, nil)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.VerificationRecord
	for rows.Next() {
		var (
			rec domain.VerificationRecord
			at  sql.NullTime
		)
		dest := append(verificationDest(&rec.Verification, &at), &rec.Email)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan verification row: %w", err)
		}
		applyVerifiedAt(&rec.Verification, at)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verification rows: %w", err)
	}
	return out, nil
}
