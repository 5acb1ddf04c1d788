package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/platform/scanapi"
	"github.com/vietguard/vietguard-api/internal/redact"
	"github.com/vietguard/vietguard-api/internal/service/token"
	"github.com/vietguard/vietguard-api/internal/store"
)

// DownloadPath is the route prefix of report download links.
const DownloadPath = "/api/service/app-total-go/download/"

// ArtifactFetcher downloads scan results.
type ArtifactFetcher interface {
	GetArtifact(ctx context.Context, externalID string) (*scanapi.Artifact, error)
}

// DownloadService issues and redeems report download links.
type DownloadService struct {
	signer   *token.Signer
	tokens   store.DownloadTokenStore
	tasks    store.TaskStore
	artifact ArtifactFetcher
	baseURL  string
	logger   *slog.Logger
	now      func() time.Time
}

// NewDownloadService creates a DownloadService. Links are built on appURL.
func NewDownloadService(
	signer *token.Signer,
	tokens store.DownloadTokenStore,
	tasks store.TaskStore,
	artifact ArtifactFetcher,
	appURL string,
	logger *slog.Logger,
) (*DownloadService, error) {
	if signer == nil || tokens == nil || tasks == nil || artifact == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "signer, tokens, tasks and artifact are required"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DownloadService{
		signer:   signer,
		tokens:   tokens,
		tasks:    tasks,
		artifact: artifact,
		baseURL:  strings.TrimRight(appURL, "/"),
		logger:   logger.With("component", "download_service"),
		now:      time.Now,
	}, nil
}

// IssueLink creates and persists a token for taskID and returns the link
// and its expiry.
func (s *DownloadService) IssueLink(ctx context.Context, taskID uuid.UUID) (string, time.Time, error) {
	id := uuid.New()
	signed, expiresAt, err := s.signer.Sign(ctx, id, taskID)
	if err != nil {
		return "", time.Time{}, NewServiceError("issue_link", "failed to sign token", err)
	}

	row := &domain.DownloadToken{
		ID:        id,
		TaskID:    taskID,
		ExpiresAt: expiresAt,
		CreatedAt: s.now().UTC(),
	}
	if err := s.tokens.Create(ctx, row); err != nil {
		return "", time.Time{}, NewServiceError("issue_link", "failed to save token", err)
	}
	return s.baseURL + DownloadPath + signed, expiresAt, nil
}

// Redeem validates a link token and fetches the report it points to.
// Links stay usable until they expire; redeeming marks them used.
func (s *DownloadService) Redeem(ctx context.Context, tokenString string) (*scanapi.Artifact, error) {
	claims, err := s.signer.Parse(ctx, tokenString)
	if err != nil {
		if errors.Is(err, token.ErrExpiredToken) {
			return nil, ErrDownloadExpired
		}
		return nil, ErrDownloadNotFound
	}

	row, err := s.tokens.Get(ctx, claims.TokenID)
	if err != nil {
		return nil, NewServiceError("redeem_link", "failed to load token", err)
	}
	if row.TaskID != claims.TaskID {
		return nil, ErrDownloadNotFound
	}
	if row.Expired(s.now()) {
		return nil, ErrDownloadExpired
	}

	task, err := s.tasks.GetByID(ctx, row.TaskID)
	if err != nil {
		return nil, NewServiceError("redeem_link", "failed to load task", err)
	}
	if task.Status != domain.TaskStatusSucceeded || task.ExternalID == "" {
		return nil, ErrReportNotReady
	}

	artifact, err := s.artifact.GetArtifact(ctx, task.ExternalID)
	if err != nil {
		return nil, NewServiceError("redeem_link", "failed to fetch report", err)
	}

	if err := s.tokens.MarkUsed(ctx, row.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to mark download token used",
			"token_id", row.ID, "error", redact.Error(err))
	}
	s.logger.InfoContext(ctx, "report downloaded", "task_id", task.ID, "token_id", row.ID)
	return artifact, nil
}
