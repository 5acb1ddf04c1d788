package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/vietguard/vietguard-api/internal/platform/logger"
)

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Ticker is what the scheduler runs on every interval.
type Ticker interface {
	Tick(ctx context.Context) (Summary, error)
}

// Scheduler runs a Ticker on a fixed interval. A tick that is still
// running when the next one is due causes that next one to be skipped.
type Scheduler struct {
	ticker   Ticker
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewScheduler creates a Scheduler. It does not start it.
func NewScheduler(ticker Ticker, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		ticker:   ticker,
		interval: interval,
		logger:   log.With("component", "reconcile_scheduler"),
	}
}

// Start schedules ticks until Stop is called. Ticks run with ctx, so
// cancelling it stops a running tick from starting further tasks.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ErrAlreadyStarted
	}

	cl := logger.CronLogger{Logger: s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}

	c.Start()
	s.cron = c
	s.logger.InfoContext(ctx, "reconciliation scheduler started", "interval", s.interval)
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.ticker.Tick(ctx); err != nil {
		s.logger.ErrorContext(ctx, "reconciliation tick failed", "error", err)
	}
}

// Stop prevents further ticks and waits for a running tick to finish or
// for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	done := c.Stop()
	select {
	case <-done.Done():
		s.logger.InfoContext(ctx, "reconciliation scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running tick: %w", ctx.Err())
	}
}
