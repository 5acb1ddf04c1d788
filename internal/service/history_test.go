package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/events"
	"github.com/vietguard/vietguard-api/internal/platform/memory"
)

func TestHistoryRecorder(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	m, err := domain.NewMember("lan@example.com")
	require.NoError(t, err)
	require.NoError(t, s.Members().Create(ctx, m))
	task, err := domain.NewScanTask(m.ID, "app.apk", "")
	require.NoError(t, err)
	require.NoError(t, s.Tasks().Create(ctx, task))

	h := NewHistoryRecorder(s.History(), s.Tasks(), discard)
	require.NoError(t, h.HandleEvent(ctx,
		events.NewTaskTransitionEvent(task.ID, domain.TaskStatusPending, domain.TaskStatusInProgress, "")))
	require.NoError(t, h.HandleEvent(ctx,
		events.NewTaskTransitionEvent(task.ID, domain.TaskStatusInProgress, domain.TaskStatusSucceeded, "Success")))

	trail, err := h.List(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, domain.TaskStatusSucceeded, trail[1].ToStatus)
	assert.Equal(t, "Success", trail[1].RemoteStatus)

	_, err = h.List(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
