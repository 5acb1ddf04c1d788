package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/store"
)

// AccessLogStore implements store.AccessLogStore.
type AccessLogStore struct{ s *Store }

var _ store.AccessLogStore = (*AccessLogStore)(nil)

// findLocked returns the oldest log matching the primary address.
func (as *AccessLogStore) findLocked(addr domain.ClientAddress) (domain.AccessLog, bool, error) {
	ip, isV6, err := addr.Primary()
	if err != nil {
		return domain.AccessLog{}, false, err
	}
	var (
		found domain.AccessLog
		ok    bool
	)
	for _, l := range as.s.accessLogs {
		match := (isV6 && l.IPv6 == ip) || (!isV6 && l.IPv4 == ip)
		if match && (!ok || l.CreatedAt.Before(found.CreatedAt)) {
			found, ok = l, true
		}
	}
	return found, ok, nil
}

// Record implements store.AccessLogStore.
func (as *AccessLogStore) Record(_ context.Context, addr domain.ClientAddress, at time.Time) (*domain.AccessLog, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	l, ok, err := as.findLocked(addr)
	if err != nil {
		return nil, err
	}
	ipv4 := strings.TrimSpace(addr.IPv4)
	ipv6 := strings.TrimSpace(addr.IPv6)
	if !ok {
		l = domain.AccessLog{
			ID:           uuid.New(),
			IPv4:         ipv4,
			IPv6:         ipv6,
			AccessCount:  1,
			LastAccessAt: at,
			CreatedAt:    at,
			UpdatedAt:    at,
		}
	} else {
		l.AccessCount++
		l.LastAccessAt = at
		l.UpdatedAt = at
		if l.IPv4 == "" {
			l.IPv4 = ipv4
		}
		if l.IPv6 == "" {
			l.IPv6 = ipv6
		}
	}
	as.s.accessLogs[l.ID] = l
	return &l, nil
}

// SetEmailIfEmpty implements store.AccessLogStore.
func (as *AccessLogStore) SetEmailIfEmpty(_ context.Context, addr domain.ClientAddress, email string) (bool, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	l, ok, err := as.findLocked(addr)
	if err != nil || !ok || l.Email != "" {
		return false, err
	}
	l.Email = email
	l.UpdatedAt = time.Now().UTC()
	as.s.accessLogs[l.ID] = l
	return true, nil
}

func compareAccessLogs(a, b domain.AccessLog, field string) int {
	switch field {
	case "id":
		return strings.Compare(a.ID.String(), b.ID.String())
	case "ipv4":
		return strings.Compare(a.IPv4, b.IPv4)
	case "ipv6":
		return strings.Compare(a.IPv6, b.IPv6)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "access_count":
		return a.AccessCount - b.AccessCount
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	default:
		return a.LastAccessAt.Compare(b.LastAccessAt)
	}
}

// List implements store.AccessLogStore.
func (as *AccessLogStore) List(_ context.Context, q domain.AccessLogQuery) ([]domain.AccessLog, int, error) {
	q = q.Normalize()

	as.s.mu.RLock()
	defer as.s.mu.RUnlock()

	needle := strings.ToLower(q.Search)
	var matched []domain.AccessLog
	for _, l := range as.s.accessLogs {
		if needle != "" &&
			!strings.Contains(strings.ToLower(l.IPv4), needle) &&
			!strings.Contains(strings.ToLower(l.IPv6), needle) &&
			!strings.Contains(strings.ToLower(l.Email), needle) {
			continue
		}
		matched = append(matched, l)
	}

	desc := q.SortOrder == "DESC"
	sort.Slice(matched, func(i, j int) bool {
		c := compareAccessLogs(matched[i], matched[j], q.SortBy)
		if c == 0 {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		if desc {
			return c > 0
		}
		return c < 0
	})

	total := len(matched)
	start := q.Offset()
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// Count implements store.AccessLogStore.
func (as *AccessLogStore) Count(_ context.Context) (int, error) {
	as.s.mu.RLock()
	defer as.s.mu.RUnlock()
	return len(as.s.accessLogs), nil
}

// DownloadTokenStore implements store.DownloadTokenStore.
type DownloadTokenStore struct{ s *Store }

var _ store.DownloadTokenStore = (*DownloadTokenStore)(nil)

// Create implements store.DownloadTokenStore.
func (ds *DownloadTokenStore) Create(_ context.Context, t *domain.DownloadToken) error {
	ds.s.mu.Lock()
	defer ds.s.mu.Unlock()

	if _, ok := ds.s.tasks[t.TaskID]; !ok {
		return store.ErrTaskNotFound
	}
	ds.s.tokens[t.ID] = *t
	return nil
}

// Get implements store.DownloadTokenStore.
func (ds *DownloadTokenStore) Get(_ context.Context, id uuid.UUID) (*domain.DownloadToken, error) {
	ds.s.mu.RLock()
	defer ds.s.mu.RUnlock()

	t, ok := ds.s.tokens[id]
	if !ok {
		return nil, store.ErrDownloadTokenNotFound
	}
	return &t, nil
}

// MarkUsed implements store.DownloadTokenStore.
func (ds *DownloadTokenStore) MarkUsed(_ context.Context, id uuid.UUID) error {
	ds.s.mu.Lock()
	defer ds.s.mu.Unlock()

	t, ok := ds.s.tokens[id]
	if !ok {
		return store.ErrDownloadTokenNotFound
	}
	t.Used = true
	ds.s.tokens[id] = t
	return nil
}

// TaskHistoryStore implements store.TaskHistoryStore.
type TaskHistoryStore struct{ s *Store }

var _ store.TaskHistoryStore = (*TaskHistoryStore)(nil)

// Append implements store.TaskHistoryStore.
func (hs *TaskHistoryStore) Append(_ context.Context, e *domain.TaskHistory) error {
	hs.s.mu.Lock()
	defer hs.s.mu.Unlock()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	hs.s.history[e.TaskID] = append(hs.s.history[e.TaskID], *e)
	return nil
}

// ListByTask implements store.TaskHistoryStore.
func (hs *TaskHistoryStore) ListByTask(_ context.Context, taskID uuid.UUID) ([]domain.TaskHistory, error) {
	hs.s.mu.RLock()
	defer hs.s.mu.RUnlock()

	out := append([]domain.TaskHistory(nil), hs.s.history[taskID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}
