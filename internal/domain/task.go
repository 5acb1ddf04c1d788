package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the local lifecycle state of a scan task.
type TaskStatus string

// Task status values. Succeeded and failed are terminal.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusSucceeded  TaskStatus = "succeeded"
	TaskStatusFailed     TaskStatus = "failed"
)

// transitions lists the allowed edges of the status lattice.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusInProgress, TaskStatusFailed},
	TaskStatusInProgress: {TaskStatusInProgress, TaskStatusSucceeded, TaskStatusFailed},
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusSucceeded, TaskStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// CanTransitionTo reports whether s -> next is an edge of the lattice.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ScanTask is a unit of work submitted to the external scanning system on
// behalf of a member.
type ScanTask struct {
	ID       uuid.UUID `json:"id"`
	MemberID uuid.UUID `json:"member_id"`
	// ExternalID is empty until submission succeeds.
	ExternalID string     `json:"external_id,omitempty"`
	FileName   string     `json:"file_name"`
	ClientIP   string     `json:"client_ip,omitempty"`
	Status     TaskStatus `json:"status"`
	// RemoteStatus is the raw status string last reported by the scanner.
	RemoteStatus string `json:"remote_status,omitempty"`
	ArtifactName string `json:"artifact_name,omitempty"`
	ArtifactType string `json:"artifact_type,omitempty"`
	// PollFailures counts consecutive failed status polls.
	PollFailures int       `json:"poll_failures"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewScanTask creates a pending task for memberID.
func NewScanTask(memberID uuid.UUID, fileName, clientIP string) (*ScanTask, error) {
	now := time.Now().UTC()
	t := &ScanTask{
		ID:        uuid.New(),
		MemberID:  memberID,
		FileName:  fileName,
		ClientIP:  clientIP,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the invariants of a task.
func (t *ScanTask) Validate() error {
	if t.ID == uuid.Nil {
		return NewValidationError("id", "is required", ErrInvalidID)
	}
	if t.MemberID == uuid.Nil {
		return NewValidationError("member_id", "is required", ErrInvalidID)
	}
	if !t.Status.Valid() {
		return NewValidationError("status", "is not a known status", ErrInvalidStatus)
	}
	if t.Status == TaskStatusInProgress && t.ExternalID == "" {
		return NewValidationError("external_id", "is required once in progress", ErrValidation)
	}
	return nil
}

// Pollable reports whether the reconciler should ask the scanner about t.
// Tasks without an external id are never polled.
func (t *ScanTask) Pollable() bool {
	return t.Status == TaskStatusInProgress && t.ExternalID != ""
}

// RemoteOutcome classifies a status string reported by the scanner.
type RemoteOutcome int

const (
	// RemoteRunning covers every sub-state that is neither success nor failure.
	RemoteRunning RemoteOutcome = iota
	RemoteSucceeded
	RemoteFailed
)

func (o RemoteOutcome) String() string {
	switch o {
	case RemoteSucceeded:
		return "succeeded"
	case RemoteFailed:
		return "failed"
	default:
		return "running"
	}
}

var (
	remoteSuccess = map[string]bool{"success": true, "succeeded": true, "completed": true, "done": true}
	remoteFailure = map[string]bool{
		"failed": true, "failure": true, "fail": true, "error": true,
		"cancelled": true, "canceled": true,
	}
)

// ClassifyRemoteStatus maps a scanner status string to an outcome.
// Matching is case-insensitive and ignores surrounding whitespace.
func ClassifyRemoteStatus(status string) RemoteOutcome {
	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case remoteSuccess[s]:
		return RemoteSucceeded
	case remoteFailure[s]:
		return RemoteFailed
	default:
		return RemoteRunning
	}
}

// ToStatus returns the local status an outcome leads to.
func (o RemoteOutcome) ToStatus() TaskStatus {
	switch o {
	case RemoteSucceeded:
		return TaskStatusSucceeded
	case RemoteFailed:
		return TaskStatusFailed
	default:
		return TaskStatusInProgress
	}
}
