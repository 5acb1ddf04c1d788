package domain

import (
	"time"

	"github.com/google/uuid"
)

// DownloadToken is the persisted half of a signed report download link.
// ID matches the jti claim of the signed token.
type DownloadToken struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t *DownloadToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
