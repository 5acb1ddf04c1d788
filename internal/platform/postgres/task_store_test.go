package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/store"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var taskColumnNames = []string{
	"id", "member_id", "external_id", "file_name", "client_ip", "status", "remote_status",
	"artifact_name", "artifact_type", "poll_failures", "created_at", "updated_at",
}

func taskRow(rows *sqlmock.Rows, id, memberID uuid.UUID, externalID string, status domain.TaskStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	var ext any
	if externalID != "" {
		ext = externalID
	}
	return rows.AddRow(id.String(), memberID.String(), ext, "app.apk", "10.0.0.1", string(status),
		"", "", "", 0, now, now)
}

func TestTaskStore_CreateAdmitted(t *testing.T) {
	memberID := uuid.New()
	since := time.Now().Add(-time.Hour)

	t.Run("admits under the limit", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresTaskStore(db, nil)
		task, err := domain.NewScanTask(memberID, "app.apk", "10.0.0.1")
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec("pg_advisory_xact_lock").
			WithArgs("scan_tasks:" + memberID.String()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM scan_tasks`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectExec("INSERT INTO scan_tasks").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.CreateAdmitted(context.Background(), task, 3, since))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("denies at the limit", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresTaskStore(db, nil)
		task, err := domain.NewScanTask(memberID, "app.apk", "")
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM scan_tasks`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectRollback()

		err = s.CreateAdmitted(context.Background(), task, 3, since)
		assert.ErrorIs(t, err, store.ErrAdmissionDenied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects invalid task", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresTaskStore(db, nil)

		err := s.CreateAdmitted(context.Background(), &domain.ScanTask{}, 3, since)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTaskStore_Transition(t *testing.T) {
	id := uuid.New()

	t.Run("applied", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresTaskStore(db, nil)

		mock.ExpectExec("UPDATE scan_tasks").
			WithArgs(sqlmock.AnyArg(), "in_progress", "succeeded", "", "Success", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := s.Transition(context.Background(), id,
			domain.TaskStatusInProgress, domain.TaskStatusSucceeded,
			store.TaskUpdate{RemoteStatus: "Success"})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresTaskStore(db, nil)

		mock.ExpectExec("UPDATE scan_tasks").WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := s.Transition(context.Background(), id,
			domain.TaskStatusInProgress, domain.TaskStatusFailed, store.TaskUpdate{})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("edge outside the lattice", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresTaskStore(db, nil)

		ok, err := s.Transition(context.Background(), id,
			domain.TaskStatusSucceeded, domain.TaskStatusInProgress, store.TaskUpdate{})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTaskStore_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db, nil)
	id, memberID := uuid.New(), uuid.New()

	mock.ExpectQuery("FROM scan_tasks WHERE id").
		WillReturnRows(taskRow(sqlmock.NewRows(taskColumnNames), id, memberID, "20343", domain.TaskStatusInProgress))

	task, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, task.ID)
	assert.Equal(t, "20343", task.ExternalID)
	assert.Equal(t, domain.TaskStatusInProgress, task.Status)

	mock.ExpectQuery("FROM scan_tasks WHERE id").WillReturnRows(sqlmock.NewRows(taskColumnNames))
	_, err = s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
	assert.True(t, store.IsNotFoundError(err))
}

func TestTaskStore_ListPollable(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db, nil)
	memberID := uuid.New()

	rows := sqlmock.NewRows(taskColumnNames)
	taskRow(rows, uuid.New(), memberID, "1", domain.TaskStatusInProgress)
	taskRow(rows, uuid.New(), memberID, "2", domain.TaskStatusInProgress)
	mock.ExpectQuery("FROM scan_tasks").WithArgs("in_progress").WillReturnRows(rows)

	tasks, err := s.ListPollable(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.True(t, task.Pollable())
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStore_RecordPollFailure(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db, nil)

	mock.ExpectQuery("poll_failures = poll_failures \\+ 1").
		WillReturnRows(sqlmock.NewRows([]string{"poll_failures"}).AddRow(3))
	n, err := s.RecordPollFailure(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// A task that already left in_progress is not counted.
	mock.ExpectQuery("poll_failures = poll_failures \\+ 1").
		WillReturnRows(sqlmock.NewRows([]string{"poll_failures"}))
	n, err = s.RecordPollFailure(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTaskStore_ResolveOwnerContact(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db, nil)
	memberID := uuid.New()

	mock.ExpectQuery("JOIN members").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}).
			AddRow(memberID.String(), "dan@example.com", ""))

	c, err := s.ResolveOwnerContact(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, memberID, c.MemberID)
	assert.Equal(t, "dan@example.com", c.Email, "falls back to the name")

	mock.ExpectQuery("JOIN members").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}))
	_, err = s.ResolveOwnerContact(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTaskStore_SetArtifact(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db, nil)

	mock.ExpectExec("SET artifact_name").
		WithArgs(sqlmock.AnyArg(), "analysis-result-1.pdf", "application/pdf", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SetArtifact(context.Background(), uuid.New(), "analysis-result-1.pdf", "application/pdf"))

	mock.ExpectExec("SET artifact_name").WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.SetArtifact(context.Background(), uuid.New(), "x", "y")
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestNewPostgresTaskStore_NilDB(t *testing.T) {
	assert.Panics(t, func() { NewPostgresTaskStore(nil, nil) })
}
