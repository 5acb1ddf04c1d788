package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/store"
)

// MemberStore implements store.MemberStore.
type MemberStore struct{ s *Store }

var _ store.MemberStore = (*MemberStore)(nil)

// Create implements store.MemberStore.
func (ms *MemberStore) Create(_ context.Context, m *domain.Member) error {
	ms.s.mu.Lock()
	defer ms.s.mu.Unlock()

	for _, existing := range ms.s.members {
		if existing.Name == m.Name {
			return store.ErrMemberExists
		}
	}
	ms.s.members[m.ID] = *m
	return nil
}

// GetByID implements store.MemberStore.
func (ms *MemberStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Member, error) {
	ms.s.mu.RLock()
	defer ms.s.mu.RUnlock()

	m, ok := ms.s.members[id]
	if !ok {
		return nil, store.ErrMemberNotFound
	}
	return &m, nil
}

// GetByName implements store.MemberStore.
func (ms *MemberStore) GetByName(_ context.Context, name string) (*domain.Member, error) {
	ms.s.mu.RLock()
	defer ms.s.mu.RUnlock()

	for _, m := range ms.s.members {
		if m.Name == name {
			return &m, nil
		}
	}
	return nil, store.ErrMemberNotFound
}

// SetExternalID implements store.MemberStore.
func (ms *MemberStore) SetExternalID(_ context.Context, id uuid.UUID, externalID string) error {
	ms.s.mu.Lock()
	defer ms.s.mu.Unlock()

	m, ok := ms.s.members[id]
	if !ok {
		return store.ErrMemberNotFound
	}
	m.ExternalID = externalID
	m.UpdatedAt = time.Now().UTC()
	ms.s.members[id] = m
	return nil
}

// AddServices implements store.MemberStore.
func (ms *MemberStore) AddServices(_ context.Context, services []domain.MemberService) error {
	ms.s.mu.Lock()
	defer ms.s.mu.Unlock()

	for _, svc := range services {
		if _, ok := ms.s.members[svc.MemberID]; !ok {
			return store.ErrMemberNotFound
		}
	}
	for _, svc := range services {
		if svc.AssignedAt.IsZero() {
			svc.AssignedAt = time.Now().UTC()
		}
		byType, ok := ms.s.services[svc.MemberID]
		if !ok {
			byType = make(map[domain.ServiceType]domain.MemberService)
			ms.s.services[svc.MemberID] = byType
		}
		byType[svc.ServiceType] = svc
	}
	return nil
}

// ListServices implements store.MemberStore.
func (ms *MemberStore) ListServices(_ context.Context, memberID uuid.UUID) ([]domain.MemberService, error) {
	ms.s.mu.RLock()
	defer ms.s.mu.RUnlock()

	var out []domain.MemberService
	for _, svc := range ms.s.services[memberID] {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceType < out[j].ServiceType })
	return out, nil
}

// VerificationStore implements store.VerificationStore.
type VerificationStore struct{ s *Store }

var _ store.VerificationStore = (*VerificationStore)(nil)

// Create implements store.VerificationStore.
func (vs *VerificationStore) Create(_ context.Context, v *domain.Verification) error {
	vs.s.mu.Lock()
	defer vs.s.mu.Unlock()

	if _, ok := vs.s.members[v.MemberID]; !ok {
		return store.ErrMemberNotFound
	}
	vs.s.verifications[v.ID] = *v
	return nil
}

func newestFirst(list []domain.Verification) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
}

// ListByMember implements store.VerificationStore.
func (vs *VerificationStore) ListByMember(
	_ context.Context,
	memberID uuid.UUID,
	verified *bool,
) ([]domain.Verification, error) {
	vs.s.mu.RLock()
	defer vs.s.mu.RUnlock()

	var out []domain.Verification
	for _, v := range vs.s.verifications {
		if v.MemberID != memberID {
			continue
		}
		if verified != nil && v.Verified != *verified {
			continue
		}
		out = append(out, v)
	}
	newestFirst(out)
	return out, nil
}

// MarkVerified implements store.VerificationStore.
func (vs *VerificationStore) MarkVerified(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	vs.s.mu.Lock()
	defer vs.s.mu.Unlock()

	v, ok := vs.s.verifications[id]
	if !ok || v.Verified {
		return false, nil
	}
	v.Verified = true
	v.VerifiedAt = &at
	vs.s.verifications[id] = v
	return true, nil
}

// UpdateUserInfo implements store.VerificationStore.
func (vs *VerificationStore) UpdateUserInfo(_ context.Context, id uuid.UUID, info domain.UserInfo) error {
	vs.s.mu.Lock()
	defer vs.s.mu.Unlock()

	v, ok := vs.s.verifications[id]
	if !ok {
		return store.ErrVerificationNotFound
	}
	v.UserInfo = info
	vs.s.verifications[id] = v
	return nil
}

// ListAll implements store.VerificationStore.
func (vs *VerificationStore) ListAll(_ context.Context) ([]domain.VerificationRecord, error) {
	vs.s.mu.RLock()
	defer vs.s.mu.RUnlock()

	var list []domain.Verification
	for _, v := range vs.s.verifications {
		list = append(list, v)
	}
	newestFirst(list)

	out := make([]domain.VerificationRecord, 0, len(list))
	for _, v := range list {
		m := vs.s.members[v.MemberID]
		out = append(out, domain.VerificationRecord{Verification: v, Email: m.Email})
	}
	return out, nil
}
