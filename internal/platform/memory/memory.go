// Package memory provides in-process implementations of the store
// interfaces. All stores returned by one Store share a single lock, so
// cross-entity reads such as ResolveOwnerContact stay consistent. It backs
// unit tests and local runs without PostgreSQL.
package memory

import (
	"sync"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
)

// Store holds every entity in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	tasks         map[uuid.UUID]domain.ScanTask
	members       map[uuid.UUID]domain.Member
	services      map[uuid.UUID]map[domain.ServiceType]domain.MemberService
	verifications map[uuid.UUID]domain.Verification
	accessLogs    map[uuid.UUID]domain.AccessLog
	tokens        map[uuid.UUID]domain.DownloadToken
	history       map[uuid.UUID][]domain.TaskHistory
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		tasks:         make(map[uuid.UUID]domain.ScanTask),
		members:       make(map[uuid.UUID]domain.Member),
		services:      make(map[uuid.UUID]map[domain.ServiceType]domain.MemberService),
		verifications: make(map[uuid.UUID]domain.Verification),
		accessLogs:    make(map[uuid.UUID]domain.AccessLog),
		tokens:        make(map[uuid.UUID]domain.DownloadToken),
		history:       make(map[uuid.UUID][]domain.TaskHistory),
	}
}

// Tasks returns the task store view.
func (s *Store) Tasks() *TaskStore { return &TaskStore{s} }

// Members returns the member store view.
func (s *Store) Members() *MemberStore { return &MemberStore{s} }

// Verifications returns the verification store view.
func (s *Store) Verifications() *VerificationStore { return &VerificationStore{s} }

// AccessLogs returns the access log store view.
func (s *Store) AccessLogs() *AccessLogStore { return &AccessLogStore{s} }

// DownloadTokens returns the download token store view.
func (s *Store) DownloadTokens() *DownloadTokenStore { return &DownloadTokenStore{s} }

// History returns the task history store view.
func (s *Store) History() *TaskHistoryStore { return &TaskHistoryStore{s} }
