package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/config"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/events"
	"github.com/vietguard/vietguard-api/internal/notify"
	"github.com/vietguard/vietguard-api/internal/platform/scanapi"
	"github.com/vietguard/vietguard-api/internal/redact"
	"github.com/vietguard/vietguard-api/internal/store"
	"golang.org/x/sync/errgroup"
)

// Scanner is the part of the scan API the reconciler needs.
type Scanner interface {
	GetStatus(ctx context.Context, externalID string) (string, error)
	GetArtifact(ctx context.Context, externalID string) (*scanapi.Artifact, error)
}

// LinkIssuer creates a signed download link for a task's artifact.
type LinkIssuer interface {
	IssueLink(ctx context.Context, taskID uuid.UUID) (string, time.Time, error)
}

// Summary counts what a single tick did.
type Summary struct {
	// Skipped is set when another tick was still running.
	Skipped   bool
	Polled    int
	Succeeded int
	Failed    int
	Errors    int
	Notified  int
}

type counters struct {
	polled, succeeded, failed, errors, notified atomic.Int64
}

func (c *counters) summary() Summary {
	return Summary{
		Polled:    int(c.polled.Load()),
		Succeeded: int(c.succeeded.Load()),
		Failed:    int(c.failed.Load()),
		Errors:    int(c.errors.Load()),
		Notified:  int(c.notified.Load()),
	}
}

// Reconciler polls in-progress tasks and applies the outcome.
type Reconciler struct {
	tasks   store.TaskStore
	scanner Scanner
	mailer  notify.Dispatcher
	links   LinkIssuer
	emitter events.EventEmitter
	cfg     config.ReconcileConfig
	logger  *slog.Logger

	running atomic.Bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLinkIssuer adds a download link to report emails.
func WithLinkIssuer(links LinkIssuer) Option {
	return func(r *Reconciler) { r.links = links }
}

// WithEmitter publishes a TaskTransitionEvent for every applied transition.
func WithEmitter(emitter events.EventEmitter) Option {
	return func(r *Reconciler) { r.emitter = emitter }
}

// NewReconciler creates a Reconciler.
func NewReconciler(
	tasks store.TaskStore,
	scanner Scanner,
	mailer notify.Dispatcher,
	cfg config.ReconcileConfig,
	logger *slog.Logger,
	opts ...Option,
) *Reconciler {
	if tasks == nil || scanner == nil || mailer == nil {
		panic("reconcile: task store, scanner and mailer are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = 30 * time.Second
	}

	r := &Reconciler{
		tasks:   tasks,
		scanner: scanner,
		mailer:  mailer,
		emitter: events.NopEmitter{},
		cfg:     cfg,
		logger:  logger.With("component", "reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tick runs one reconciliation pass. It returns immediately with
// Summary.Skipped set when a previous pass has not finished. Per-task
// failures are logged and counted, never returned; the only error is a
// failure to load the pollable tasks.
func (r *Reconciler) Tick(ctx context.Context) (Summary, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.WarnContext(ctx, "previous reconciliation still running, skipping tick")
		return Summary{Skipped: true}, nil
	}
	defer r.running.Store(false)

	start := time.Now()
	pending, err := r.tasks.ListPollable(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list pollable tasks: %w", err)
	}
	if len(pending) == 0 {
		return Summary{}, nil
	}

	// In-flight calls outlive a cancelled tick; their own timeouts bound them.
	callCtx := context.WithoutCancel(ctx)

	var c counters
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)

	for i := range pending {
		if ctx.Err() != nil {
			r.logger.InfoContext(ctx, "tick cancelled, not starting remaining tasks",
				"remaining", len(pending)-i)
			break
		}
		task := pending[i]
		g.Go(func() error {
			r.reconcileSafely(callCtx, task, &c)
			return nil
		})
	}
	_ = g.Wait()

	sum := c.summary()
	r.logger.InfoContext(ctx, "reconciliation tick complete",
		"tasks", len(pending),
		"polled", sum.Polled,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"errors", sum.Errors,
		"notified", sum.Notified,
		"duration", time.Since(start))
	return sum, nil
}

func (r *Reconciler) reconcileSafely(ctx context.Context, task domain.ScanTask, c *counters) {
	defer func() {
		if rec := recover(); rec != nil {
			c.errors.Add(1)
			r.logger.ErrorContext(ctx, "panic while reconciling task",
				"task_id", task.ID,
				"panic", rec,
				"stack", string(debug.Stack()))
		}
	}()
	r.reconcileTask(ctx, task, c)
}

func (r *Reconciler) reconcileTask(ctx context.Context, task domain.ScanTask, c *counters) {
	log := r.logger.With("task_id", task.ID, "external_id", task.ExternalID)
	if !task.Pollable() {
		return
	}

	remote, err := r.scanner.GetStatus(ctx, task.ExternalID)
	if err != nil {
		c.errors.Add(1)
		r.handlePollFailure(ctx, log, task, err, c)
		return
	}
	c.polled.Add(1)

	switch domain.ClassifyRemoteStatus(remote) {
	case domain.RemoteSucceeded:
		applied, err := r.transition(ctx, task, domain.TaskStatusSucceeded, remote)
		if err != nil {
			c.errors.Add(1)
			log.ErrorContext(ctx, "failed to mark task succeeded", "error", redact.Error(err))
			return
		}
		if !applied {
			log.DebugContext(ctx, "task already moved by another worker")
			return
		}
		c.succeeded.Add(1)
		if r.deliverReport(ctx, log, task) {
			c.notified.Add(1)
		}

	case domain.RemoteFailed:
		applied, err := r.transition(ctx, task, domain.TaskStatusFailed, remote)
		if err != nil {
			c.errors.Add(1)
			log.ErrorContext(ctx, "failed to mark task failed", "error", redact.Error(err))
			return
		}
		if !applied {
			return
		}
		c.failed.Add(1)
		if r.cfg.NotifyOnFailure && r.deliverFailure(ctx, log, task) {
			c.notified.Add(1)
		}

	default:
		if remote == task.RemoteStatus && task.PollFailures == 0 {
			return
		}
		if err := r.tasks.RecordPoll(ctx, task.ID, remote); err != nil {
			c.errors.Add(1)
			log.ErrorContext(ctx, "failed to record remote status", "error", redact.Error(err))
			return
		}
		log.DebugContext(ctx, "task still running", "remote_status", remote)
	}
}

func (r *Reconciler) handlePollFailure(
	ctx context.Context,
	log *slog.Logger,
	task domain.ScanTask,
	pollErr error,
	c *counters,
) {
	failures, err := r.tasks.RecordPollFailure(ctx, task.ID)
	if err != nil {
		log.ErrorContext(ctx, "failed to record poll failure", "error", redact.Error(err))
	}
	log.WarnContext(ctx, "status poll failed",
		"error", redact.Error(pollErr),
		"transient", scanapi.IsTransient(pollErr),
		"consecutive_failures", failures)

	if r.cfg.MaxPollFailures <= 0 || failures < r.cfg.MaxPollFailures {
		return
	}

	applied, err := r.transition(ctx, task, domain.TaskStatusFailed, "")
	if err != nil {
		log.ErrorContext(ctx, "failed to fail task after repeated poll errors", "error", redact.Error(err))
		return
	}
	if !applied {
		return
	}
	c.failed.Add(1)
	log.WarnContext(ctx, "task failed after repeated poll errors", "consecutive_failures", failures)
	if r.cfg.NotifyOnFailure && r.deliverFailure(ctx, log, task) {
		c.notified.Add(1)
	}
}

// transition applies in_progress -> to and emits the event when applied.
func (r *Reconciler) transition(
	ctx context.Context,
	task domain.ScanTask,
	to domain.TaskStatus,
	remote string,
) (bool, error) {
	applied, err := r.tasks.Transition(ctx, task.ID, domain.TaskStatusInProgress, to,
		store.TaskUpdate{RemoteStatus: remote})
	if err != nil || !applied {
		return applied, err
	}

	event := events.NewTaskTransitionEvent(task.ID, domain.TaskStatusInProgress, to, remote)
	if err := r.emitter.EmitEvent(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "failed to emit transition event",
			"task_id", task.ID, "error", redact.Error(err))
	}
	return true, nil
}

// deliverReport runs after this worker won the succeeded transition.
// It reports whether the email was handed to the mail relay.
func (r *Reconciler) deliverReport(ctx context.Context, log *slog.Logger, task domain.ScanTask) bool {
	artifact, err := r.scanner.GetArtifact(ctx, task.ExternalID)
	if err != nil {
		log.ErrorContext(ctx, "failed to fetch result artifact, report not sent", "error", redact.Error(err))
		return false
	}

	if err := r.tasks.SetArtifact(ctx, task.ID, artifact.FileName, artifact.ContentType); err != nil {
		log.WarnContext(ctx, "failed to record artifact metadata", "error", redact.Error(err))
	}

	contact, err := r.tasks.ResolveOwnerContact(ctx, task.ID)
	if err != nil {
		log.ErrorContext(ctx, "failed to resolve task owner, report not sent", "error", redact.Error(err))
		return false
	}

	report := notify.Report{
		TaskID:       task.ExternalID,
		FileName:     task.FileName,
		ArtifactName: artifact.FileName,
	}
	if r.links != nil {
		link, expires, err := r.links.IssueLink(ctx, task.ID)
		if err != nil {
			log.WarnContext(ctx, "failed to issue download link, sending without it", "error", redact.Error(err))
		} else {
			report.DownloadURL = link
			report.ExpiresAt = expires
		}
	}

	msg, err := notify.ReportMessage(contact.Email, report, notify.Attachment{
		FileName:    artifact.FileName,
		ContentType: artifact.ContentType,
		Data:        artifact.Data,
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to build report email", "error", err)
		return false
	}
	return r.send(ctx, log, msg)
}

func (r *Reconciler) deliverFailure(ctx context.Context, log *slog.Logger, task domain.ScanTask) bool {
	contact, err := r.tasks.ResolveOwnerContact(ctx, task.ID)
	if err != nil {
		log.ErrorContext(ctx, "failed to resolve task owner, failure notice not sent", "error", redact.Error(err))
		return false
	}
	msg, err := notify.FailureMessage(contact.Email, task.ExternalID, task.FileName)
	if err != nil {
		log.ErrorContext(ctx, "failed to build failure email", "error", err)
		return false
	}
	return r.send(ctx, log, msg)
}

func (r *Reconciler) send(ctx context.Context, log *slog.Logger, msg notify.Message) bool {
	mailCtx, cancel := context.WithTimeout(ctx, r.cfg.MailTimeout)
	defer cancel()

	if err := r.mailer.Send(mailCtx, msg); err != nil {
		log.ErrorContext(ctx, "failed to send notification",
			"to", redact.Email(msg.To), "error", redact.Error(err))
		return false
	}
	log.InfoContext(ctx, "notification sent", "to", redact.Email(msg.To), "subject", msg.Subject)
	return true
}
