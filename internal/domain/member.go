package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ServiceType identifies a scanning product a member can be entitled to.
type ServiceType int

// ServiceAppTotalGo is the mobile application scanning product.
const ServiceAppTotalGo ServiceType = 4

// Member is a person onboarded through email OTP. Name holds the email the
// member signed up with and is unique.
type Member struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	// ExternalID is the member's id in the scanning system, once created there.
	ExternalID string    `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NormalizeEmail trims and lower-cases an address and checks its format.
func NormalizeEmail(email string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return "", NewValidationError("email", "is required", ErrInvalidEmail)
	}
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return "", NewValidationError("email", "has invalid format", ErrInvalidEmail)
	}
	return e, nil
}

// NewMember creates a member identified by email.
func NewMember(email string) (*Member, error) {
	e, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Member{
		ID:        uuid.New(),
		Name:      e,
		Email:     e,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ExternalName is the name the member is registered under in the scanning
// system. Emails never leave the gateway.
func (m *Member) ExternalName() string {
	return "Guest" + strings.ReplaceAll(m.ID.String(), "-", "")
}

// ContactEmail returns the address notifications go to.
func (m *Member) ContactEmail() string {
	if m.Email != "" {
		return m.Email
	}
	return m.Name
}

// MemberService records a product assignment for a member.
type MemberService struct {
	MemberID    uuid.UUID   `json:"member_id"`
	ServiceType ServiceType `json:"service_type"`
	// UsageLimit is nil for unlimited use.
	UsageLimit *int      `json:"usage_limit,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}
