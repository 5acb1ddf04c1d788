package store

import (
	"context"
	"time"

	"github.com/vietguard/vietguard-api/internal/domain"
)

// AccessLogStore persists per-address visit counters.
type AccessLogStore interface {
	// Record increments the counter of the log matching the primary
	// address, creating it on first visit.
	Record(ctx context.Context, addr domain.ClientAddress, at time.Time) (*domain.AccessLog, error)
	// SetEmailIfEmpty attaches email to the log matching the primary
	// address unless it already has one. It reports whether a row changed.
	SetEmailIfEmpty(ctx context.Context, addr domain.ClientAddress, email string) (bool, error)
	// List returns one page and the total number of matching logs.
	List(ctx context.Context, q domain.AccessLogQuery) ([]domain.AccessLog, int, error)
	Count(ctx context.Context) (int, error)
}
