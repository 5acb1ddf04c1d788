package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserInfo is the profile a member submits after verifying an OTP.
type UserInfo struct {
	FullName    string `json:"full_name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Note        string `json:"note,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
}

// Verification is one OTP attempt. Every send creates a new attempt; the
// code itself is only kept as a bcrypt hash.
type Verification struct {
	ID         uuid.UUID  `json:"id"`
	MemberID   uuid.UUID  `json:"member_id"`
	CodeHash   string     `json:"-"`
	Verified   bool       `json:"verified"`
	ExpiresAt  time.Time  `json:"expires_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	UserInfo
	CreatedAt time.Time `json:"created_at"`
}

// NewVerification creates an unverified attempt for memberID.
func NewVerification(memberID uuid.UUID, codeHash string, ttl time.Duration) (*Verification, error) {
	if memberID == uuid.Nil {
		return nil, NewValidationError("member_id", "is required", ErrInvalidID)
	}
	if codeHash == "" {
		return nil, NewValidationError("code_hash", "is required", ErrValidation)
	}
	now := time.Now().UTC()
	return &Verification{
		ID:        uuid.New(),
		MemberID:  memberID,
		CodeHash:  codeHash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, nil
}

// Expired reports whether the attempt can no longer be verified at now.
func (v *Verification) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// VerificationRecord pairs an attempt with the member's email for listings.
type VerificationRecord struct {
	Verification
	Email string `json:"email"`
}
