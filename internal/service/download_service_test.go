package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vietguard/vietguard-api/internal/config"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/mocks"
	"github.com/vietguard/vietguard-api/internal/platform/memory"
	"github.com/vietguard/vietguard-api/internal/platform/scanapi"
	"github.com/vietguard/vietguard-api/internal/service/token"
	"github.com/vietguard/vietguard-api/internal/store"
)

func newDownloadFixture(t *testing.T) (*DownloadService, *memory.Store, *mocks.TestifyMockScanAPI, *domain.ScanTask) {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	m, err := domain.NewMember("lan@example.com")
	require.NoError(t, err)
	require.NoError(t, s.Members().Create(ctx, m))
	task, err := domain.NewScanTask(m.ID, "app.apk", "")
	require.NoError(t, err)
	require.NoError(t, s.Tasks().Create(ctx, task))
	_, err = s.Tasks().Transition(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusInProgress,
		store.TaskUpdate{ExternalID: "55"})
	require.NoError(t, err)

	signer, err := token.NewSigner(config.DownloadConfig{
		TokenSecret: "0123456789abcdef0123456789abcdef",
		TokenTTL:    7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	api := &mocks.TestifyMockScanAPI{}
	svc, err := NewDownloadService(signer, s.DownloadTokens(), s.Tasks(), api, "https://vg.example.com/", discard)
	require.NoError(t, err)
	return svc, s, api, task
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(link, "https://vg.example.com"+DownloadPath), link)
	return strings.TrimPrefix(link, "https://vg.example.com"+DownloadPath)
}

func TestDownloadService_IssueAndRedeem(t *testing.T) {
	ctx := context.Background()
	svc, s, api, task := newDownloadFixture(t)

	link, expiresAt, err := svc.IssueLink(ctx, task.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), expiresAt, 5*time.Second)
	tok := tokenFromLink(t, link)

	_, err = svc.Redeem(ctx, tok)
	assert.ErrorIs(t, err, ErrReportNotReady)

	_, err = s.Tasks().Transition(ctx, task.ID, domain.TaskStatusInProgress, domain.TaskStatusSucceeded, store.TaskUpdate{})
	require.NoError(t, err)
	api.On("GetArtifact", mock.Anything, "55").Return(scanapi.NewArtifact("55", []byte("%PDF-1.4")), nil)

	artifact, err := svc.Redeem(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "analysis-result-55.pdf", artifact.FileName)

	claims, err := svc.signer.Parse(ctx, tok)
	require.NoError(t, err)
	row, err := s.DownloadTokens().Get(ctx, claims.TokenID)
	require.NoError(t, err)
	assert.True(t, row.Used)
}

func TestDownloadService_RejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	svc, s, _, task := newDownloadFixture(t)

	_, err := svc.Redeem(ctx, "garbage")
	assert.ErrorIs(t, err, ErrDownloadNotFound)

	// Signed but never persisted.
	signed, _, err := svc.signer.Sign(ctx, uuid.New(), task.ID)
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, signed)
	assert.ErrorIs(t, err, ErrDownloadNotFound)

	// Persisted row that has expired before the signature does.
	id := uuid.New()
	signed, _, err = svc.signer.Sign(ctx, id, task.ID)
	require.NoError(t, err)
	require.NoError(t, s.DownloadTokens().Create(ctx, &domain.DownloadToken{
		ID: id, TaskID: task.ID, ExpiresAt: time.Now().Add(-time.Minute), CreatedAt: time.Now(),
	}))
	_, err = svc.Redeem(ctx, signed)
	assert.ErrorIs(t, err, ErrDownloadExpired)
}
