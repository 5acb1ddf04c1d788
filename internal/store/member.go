package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
)

// MemberStore persists members and their service assignments.
type MemberStore interface {
	// Create returns ErrMemberExists when the name is taken.
	Create(ctx context.Context, member *domain.Member) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error)
	// GetByName returns ErrMemberNotFound when no member has name.
	GetByName(ctx context.Context, name string) (*domain.Member, error)
	SetExternalID(ctx context.Context, id uuid.UUID, externalID string) error
	// AddServices upserts assignments keyed by member and service type.
	AddServices(ctx context.Context, services []domain.MemberService) error
	ListServices(ctx context.Context, memberID uuid.UUID) ([]domain.MemberService, error)
}

// VerificationStore persists OTP attempts.
type VerificationStore interface {
	Create(ctx context.Context, v *domain.Verification) error
	// ListByMember returns attempts newest first, optionally only those
	// with the given verified flag.
	ListByMember(ctx context.Context, memberID uuid.UUID, verified *bool) ([]domain.Verification, error)
	// MarkVerified flips an unverified attempt to verified. It reports
	// false when the attempt was already verified or does not exist.
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	UpdateUserInfo(ctx context.Context, id uuid.UUID, info domain.UserInfo) error
	// ListAll returns every attempt with its member's email, newest first.
	ListAll(ctx context.Context) ([]domain.VerificationRecord, error)
}
