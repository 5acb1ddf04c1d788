package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/store"
)

// AccessLogService counts visits per client address.
type AccessLogService struct {
	logs   store.AccessLogStore
	logger *slog.Logger
	now    func() time.Time
}

// NewAccessLogService creates an AccessLogService.
func NewAccessLogService(logs store.AccessLogStore, logger *slog.Logger) (*AccessLogService, error) {
	if logs == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "logs cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessLogService{
		logs:   logs,
		logger: logger.With("component", "access_log_service"),
		now:    time.Now,
	}, nil
}

// RecordAccess counts one visit from addr. At least one address is required.
func (s *AccessLogService) RecordAccess(ctx context.Context, addr domain.ClientAddress) (*domain.AccessLog, error) {
	if _, _, err := addr.Primary(); err != nil {
		return nil, domain.NewValidationError("ip", "ipv4 or ipv6 is required", err)
	}
	log, err := s.logs.Record(ctx, addr, s.now().UTC())
	if err != nil {
		return nil, NewServiceError("record_access", "failed to record access", err)
	}
	s.logger.DebugContext(ctx, "access recorded", "access_log_id", log.ID, "access_count", log.AccessCount)
	return log, nil
}

// List returns one page of access logs.
func (s *AccessLogService) List(ctx context.Context, q domain.AccessLogQuery) (domain.AccessLogPage, error) {
	q = q.Normalize()
	logs, total, err := s.logs.List(ctx, q)
	if err != nil {
		return domain.AccessLogPage{}, NewServiceError("list_access_logs", "failed to list access logs", err)
	}
	return domain.NewAccessLogPage(logs, total, q), nil
}

// Count returns the number of distinct addresses seen.
func (s *AccessLogService) Count(ctx context.Context) (int, error) {
	n, err := s.logs.Count(ctx)
	if err != nil {
		return 0, NewServiceError("count_access_logs", "failed to count access logs", err)
	}
	return n, nil
}
