package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/config"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/events"
	"github.com/vietguard/vietguard-api/internal/platform/scanapi"
	"github.com/vietguard/vietguard-api/internal/redact"
	"github.com/vietguard/vietguard-api/internal/store"
)

// Submitter uploads files to the scanning system.
type Submitter interface {
	Submit(ctx context.Context, r scanapi.SubmitRequest) (*scanapi.SubmitResult, error)
}

// Upload is a file received from a client.
type Upload struct {
	FileName    string
	ContentType string
	ClientIP    string
	File        io.Reader
}

// Admission reports how much of the rate window a member has used.
type Admission struct {
	Allowed bool `json:"allowed"`
	Used    int  `json:"used"`
	Limit   int  `json:"limit"`
}

// TaskService creates scan tasks and hands them to the scanner.
type TaskService interface {
	// CreateTask admits a task for the member under the rate limit and
	// submits upload. It returns ErrRateLimited when the member is at the
	// ceiling and ErrSubmissionFailed when the scanner rejects the file.
	CreateTask(ctx context.Context, email string, upload Upload) (*domain.ScanTask, error)

	// SubmitDirect forwards upload without rate limiting. The task is
	// tracked locally only when memberName is a known member's email.
	SubmitDirect(ctx context.Context, memberName string, upload Upload) (*scanapi.SubmitResult, error)

	// CanScan reports whether CreateTask would currently admit a task.
	CanScan(ctx context.Context, email string) (*Admission, error)

	GetTask(ctx context.Context, id uuid.UUID) (*domain.ScanTask, error)
}

type taskServiceImpl struct {
	tasks     store.TaskStore
	members   store.MemberStore
	submitter Submitter
	emitter   events.EventEmitter
	limit     int
	window    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

var _ TaskService = (*taskServiceImpl)(nil)

// NewTaskService creates a TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	tasks store.TaskStore,
	members store.MemberStore,
	submitter Submitter,
	emitter events.EventEmitter,
	cfg config.RateLimitConfig,
	logger *slog.Logger,
) (TaskService, error) {
	switch {
	case tasks == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "tasks cannot be nil"}
	case members == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "members cannot be nil"}
	case submitter == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "submitter cannot be nil"}
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit, window := cfg.MaxTasks, cfg.Window
	if limit <= 0 {
		limit = 3
	}
	if window <= 0 {
		window = time.Hour
	}

	return &taskServiceImpl{
		tasks:     tasks,
		members:   members,
		submitter: submitter,
		emitter:   emitter,
		limit:     limit,
		window:    window,
		logger:    logger.With("component", "task_service"),
		now:       time.Now,
	}, nil
}

func (s *taskServiceImpl) memberByEmail(ctx context.Context, op, email string) (*domain.Member, error) {
	email, err := domain.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	m, err := s.members.GetByName(ctx, email)
	if err != nil {
		return nil, NewServiceError(op, "failed to load member", err)
	}
	return m, nil
}

// CreateTask implements TaskService.
func (s *taskServiceImpl) CreateTask(ctx context.Context, email string, upload Upload) (*domain.ScanTask, error) {
	const op = "create_task"
	if upload.File == nil {
		return nil, domain.NewValidationError("file", "is required", domain.ErrValidation)
	}
	m, err := s.memberByEmail(ctx, op, email)
	if err != nil {
		return nil, err
	}

	task, err := domain.NewScanTask(m.ID, upload.FileName, upload.ClientIP)
	if err != nil {
		return nil, err
	}
	since := s.now().UTC().Add(-s.window)
	if err := s.tasks.CreateAdmitted(ctx, task, s.limit, since); err != nil {
		if errors.Is(err, store.ErrAdmissionDenied) {
			s.logger.InfoContext(ctx, "task rejected by rate limit", "member_id", m.ID, "limit", s.limit)
			return nil, ErrRateLimited
		}
		return nil, NewServiceError(op, "failed to save task", err)
	}

	if _, err := s.submit(ctx, task, m.ExternalName(), upload); err != nil {
		return nil, err
	}
	return task, nil
}

// submit uploads the file for a pending task and moves the task to
// in_progress or failed. task is updated in place.
func (s *taskServiceImpl) submit(
	ctx context.Context,
	task *domain.ScanTask,
	memberName string,
	upload Upload,
) (*scanapi.SubmitResult, error) {
	res, err := s.submitter.Submit(ctx, scanapi.SubmitRequest{
		MemberName:  memberName,
		ClientIP:    upload.ClientIP,
		FileName:    upload.FileName,
		ContentType: upload.ContentType,
		File:        upload.File,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "scanner rejected submission",
			"task_id", task.ID,
			"error", redact.Error(err))
		s.transition(ctx, task, domain.TaskStatusFailed, store.TaskUpdate{})
		return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	s.transition(ctx, task, domain.TaskStatusInProgress, store.TaskUpdate{ExternalID: res.ID})
	task.ExternalID = res.ID
	s.logger.InfoContext(ctx, "task submitted", "task_id", task.ID, "external_id", res.ID)
	return res, nil
}

// transition moves a pending task and emits the event. The in-memory task
// reflects the change only when the store applied it.
func (s *taskServiceImpl) transition(ctx context.Context, task *domain.ScanTask, to domain.TaskStatus, update store.TaskUpdate) {
	applied, err := s.tasks.Transition(ctx, task.ID, domain.TaskStatusPending, to, update)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to update task status",
			"task_id", task.ID, "to", to, "error", redact.Error(err))
		return
	}
	if !applied {
		s.logger.WarnContext(ctx, "task was no longer pending", "task_id", task.ID, "to", to)
		return
	}
	task.Status = to

	if err := s.emitter.EmitEvent(ctx, events.NewTaskTransitionEvent(task.ID, domain.TaskStatusPending, to, "")); err != nil {
		s.logger.WarnContext(ctx, "failed to emit transition event", "task_id", task.ID, "error", redact.Error(err))
	}
}

// SubmitDirect implements TaskService.
func (s *taskServiceImpl) SubmitDirect(
	ctx context.Context,
	memberName string,
	upload Upload,
) (*scanapi.SubmitResult, error) {
	if upload.File == nil {
		return nil, domain.NewValidationError("file", "is required", domain.ErrValidation)
	}

	var member *domain.Member
	if email, err := domain.NormalizeEmail(memberName); err == nil {
		if m, err := s.members.GetByName(ctx, email); err == nil {
			member = m
		} else if !errors.Is(err, store.ErrMemberNotFound) {
			s.logger.WarnContext(ctx, "member lookup failed, submitting untracked", "error", redact.Error(err))
		}
	}

	if member == nil {
		res, err := s.submitter.Submit(ctx, scanapi.SubmitRequest{
			MemberName:  memberName,
			ClientIP:    upload.ClientIP,
			FileName:    upload.FileName,
			ContentType: upload.ContentType,
			File:        upload.File,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
		}
		return res, nil
	}

	task, err := domain.NewScanTask(member.ID, upload.FileName, upload.ClientIP)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, NewServiceError("submit_direct", "failed to save task", err)
	}

	return s.submit(ctx, task, member.ExternalName(), upload)
}

// CanScan implements TaskService.
func (s *taskServiceImpl) CanScan(ctx context.Context, email string) (*Admission, error) {
	m, err := s.memberByEmail(ctx, "can_scan", email)
	if err != nil {
		return nil, err
	}
	used, err := s.tasks.CountCreatedSince(ctx, m.ID, s.now().UTC().Add(-s.window))
	if err != nil {
		return nil, NewServiceError("can_scan", "failed to count tasks", err)
	}
	return &Admission{Allowed: used < s.limit, Used: used, Limit: s.limit}, nil
}

// GetTask implements TaskService.
func (s *taskServiceImpl) GetTask(ctx context.Context, id uuid.UUID) (*domain.ScanTask, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, NewServiceError("get_task", "failed to load task", err)
	}
	return task, nil
}
