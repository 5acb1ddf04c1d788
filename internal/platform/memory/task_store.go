package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/store"
)

// TaskStore implements store.TaskStore.
type TaskStore struct{ s *Store }

var _ store.TaskStore = (*TaskStore)(nil)

func (ts *TaskStore) insertLocked(t *domain.ScanTask) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	if _, ok := ts.s.members[t.MemberID]; !ok {
		return fmt.Errorf("%w: unknown member", store.ErrInvalidEntity)
	}
	if _, ok := ts.s.tasks[t.ID]; ok {
		return store.ErrDuplicate
	}
	if t.ExternalID != "" {
		for _, other := range ts.s.tasks {
			if other.ExternalID == t.ExternalID {
				return store.ErrDuplicate
			}
		}
	}
	ts.s.tasks[t.ID] = *t
	return nil
}

func (ts *TaskStore) countLocked(memberID uuid.UUID, since time.Time) int {
	n := 0
	for _, t := range ts.s.tasks {
		if t.MemberID == memberID && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n
}

// Create implements store.TaskStore.
func (ts *TaskStore) Create(_ context.Context, t *domain.ScanTask) error {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()
	return ts.insertLocked(t)
}

// CreateAdmitted implements store.TaskStore.
func (ts *TaskStore) CreateAdmitted(_ context.Context, t *domain.ScanTask, limit int, since time.Time) error {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	if count := ts.countLocked(t.MemberID, since); count >= limit {
		return fmt.Errorf("%w: %d of %d tasks used", store.ErrAdmissionDenied, count, limit)
	}
	return ts.insertLocked(t)
}

// GetByID implements store.TaskStore.
func (ts *TaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.ScanTask, error) {
	ts.s.mu.RLock()
	defer ts.s.mu.RUnlock()

	t, ok := ts.s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return &t, nil
}

// GetByExternalID implements store.TaskStore.
func (ts *TaskStore) GetByExternalID(_ context.Context, externalID string) (*domain.ScanTask, error) {
	ts.s.mu.RLock()
	defer ts.s.mu.RUnlock()

	for _, t := range ts.s.tasks {
		if externalID != "" && t.ExternalID == externalID {
			return &t, nil
		}
	}
	return nil, store.ErrTaskNotFound
}

func (ts *TaskStore) filter(keep func(domain.ScanTask) bool, newestFirst bool) []domain.ScanTask {
	ts.s.mu.RLock()
	defer ts.s.mu.RUnlock()

	var out []domain.ScanTask
	for _, t := range ts.s.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ListByMember implements store.TaskStore.
func (ts *TaskStore) ListByMember(_ context.Context, memberID uuid.UUID) ([]domain.ScanTask, error) {
	return ts.filter(func(t domain.ScanTask) bool { return t.MemberID == memberID }, true), nil
}

// ListPollable implements store.TaskStore.
func (ts *TaskStore) ListPollable(_ context.Context) ([]domain.ScanTask, error) {
	return ts.filter(func(t domain.ScanTask) bool { return t.Pollable() }, false), nil
}

// CountCreatedSince implements store.TaskStore.
func (ts *TaskStore) CountCreatedSince(_ context.Context, memberID uuid.UUID, since time.Time) (int, error) {
	ts.s.mu.RLock()
	defer ts.s.mu.RUnlock()
	return ts.countLocked(memberID, since), nil
}

// Transition implements store.TaskStore.
func (ts *TaskStore) Transition(
	_ context.Context,
	id uuid.UUID,
	from, to domain.TaskStatus,
	update store.TaskUpdate,
) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	t, ok := ts.s.tasks[id]
	if !ok || t.Status != from {
		return false, nil
	}
	if update.ExternalID != "" {
		t.ExternalID = update.ExternalID
	}
	if update.RemoteStatus != "" {
		t.RemoteStatus = update.RemoteStatus
	}
	t.Status = to
	t.PollFailures = 0
	t.UpdatedAt = time.Now().UTC()
	if err := t.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	ts.s.tasks[id] = t
	return true, nil
}

// RecordPoll implements store.TaskStore.
func (ts *TaskStore) RecordPoll(_ context.Context, id uuid.UUID, remoteStatus string) error {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	t, ok := ts.s.tasks[id]
	if !ok || t.Status != domain.TaskStatusInProgress {
		return nil
	}
	t.RemoteStatus = remoteStatus
	t.PollFailures = 0
	t.UpdatedAt = time.Now().UTC()
	ts.s.tasks[id] = t
	return nil
}

// RecordPollFailure implements store.TaskStore.
func (ts *TaskStore) RecordPollFailure(_ context.Context, id uuid.UUID) (int, error) {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	t, ok := ts.s.tasks[id]
	if !ok || t.Status != domain.TaskStatusInProgress {
		return 0, nil
	}
	t.PollFailures++
	t.UpdatedAt = time.Now().UTC()
	ts.s.tasks[id] = t
	return t.PollFailures, nil
}

// SetArtifact implements store.TaskStore.
func (ts *TaskStore) SetArtifact(_ context.Context, id uuid.UUID, name, contentType string) error {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	t, ok := ts.s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	t.ArtifactName = name
	t.ArtifactType = contentType
	t.UpdatedAt = time.Now().UTC()
	ts.s.tasks[id] = t
	return nil
}

// ResolveOwnerContact implements store.TaskStore.
func (ts *TaskStore) ResolveOwnerContact(_ context.Context, taskID uuid.UUID) (store.OwnerContact, error) {
	ts.s.mu.RLock()
	defer ts.s.mu.RUnlock()

	t, ok := ts.s.tasks[taskID]
	if !ok {
		return store.OwnerContact{}, store.ErrTaskNotFound
	}
	m, ok := ts.s.members[t.MemberID]
	if !ok {
		return store.OwnerContact{}, store.ErrTaskNotFound
	}
	return store.OwnerContact{MemberID: m.ID, Name: m.Name, Email: m.ContactEmail()}, nil
}
