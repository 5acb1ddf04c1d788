package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
)

// TaskUpdate carries optional column changes applied together with a
// status transition. Empty fields are left untouched.
type TaskUpdate struct {
	ExternalID   string
	RemoteStatus string
}

// OwnerContact is where notifications about a task are sent.
type OwnerContact struct {
	MemberID uuid.UUID
	Name     string
	Email    string
}

// TaskStore persists scan tasks.
type TaskStore interface {
	// Create inserts a new task.
	Create(ctx context.Context, task *domain.ScanTask) error

	// CreateAdmitted inserts task only if its member has fewer than limit
	// tasks created at or after since. The count and the insert are atomic
	// per member. Returns ErrAdmissionDenied when the ceiling is reached.
	CreateAdmitted(ctx context.Context, task *domain.ScanTask, limit int, since time.Time) error

	// GetByID returns ErrTaskNotFound when no task has id.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ScanTask, error)

	// GetByExternalID looks a task up by the scanner's id.
	GetByExternalID(ctx context.Context, externalID string) (*domain.ScanTask, error)

	// ListByMember returns a member's tasks, newest first.
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]domain.ScanTask, error)

	// ListPollable returns in-progress tasks that have an external id.
	ListPollable(ctx context.Context) ([]domain.ScanTask, error)

	// CountCreatedSince counts a member's tasks created at or after since.
	CountCreatedSince(ctx context.Context, memberID uuid.UUID, since time.Time) (int, error)

	// Transition moves a task from one status to another only if it is
	// currently in from, resetting its poll failure counter. It reports
	// whether this call applied the change. Edges outside the status
	// lattice fail with domain.ErrInvalidTransition.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.TaskStatus, update TaskUpdate) (bool, error)

	// RecordPoll stores the latest remote status of an in-progress task and
	// resets its poll failure counter.
	RecordPoll(ctx context.Context, id uuid.UUID, remoteStatus string) error

	// RecordPollFailure increments the poll failure counter of an
	// in-progress task and returns the new value.
	RecordPollFailure(ctx context.Context, id uuid.UUID) (int, error)

	// SetArtifact records the name and media type of the fetched result.
	SetArtifact(ctx context.Context, id uuid.UUID, name, contentType string) error

	// ResolveOwnerContact returns the contact of the member owning a task.
	ResolveOwnerContact(ctx context.Context, taskID uuid.UUID) (OwnerContact, error)
}
