package postgres

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/platform/logger"
	"github.com/phrazzld/postpilot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taskColumnNames = []string{
	"id", "type", "status", "account_id", "content_id", "device_id",
	"generation_config", "publish_config", "attempt", "progress", "error_message",
	"receipt", "next_run_at", "version", "created_at", "updated_at",
}

func newMockTaskStore(t *testing.T) (*PostgresTaskStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresTaskStore(db, logger.Discard()), mock
}

func sampleTask() *domain.Task {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	account := uuid.New()
	device := "device-1"
	return &domain.Task{
		ID:               uuid.New(),
		Status:           domain.TaskStatusPending,
		Type:             domain.TaskTypeGenerateAndPublish,
		AccountID:        &account,
		DeviceID:         &device,
		GenerationConfig: domain.GenerationConfig{Theme: "spring launch", Keywords: []string{"tea"}},
		PublishConfig:    domain.PublishConfig{AutoRetry: true, MaxRetries: 3},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func taskRow(task *domain.Task) []driver.Value {
	var receipt []byte
	if task.Receipt != nil {
		receipt = []byte(`{"platform_post_id":"p-1","published_at":"2026-03-01T12:00:00Z"}`)
	}
	var account, content, device, next driver.Value
	if task.AccountID != nil {
		account = task.AccountID.String()
	}
	if task.ContentID != nil {
		content = task.ContentID.String()
	}
	if task.DeviceID != nil {
		device = *task.DeviceID
	}
	if task.NextRunAt != nil {
		next = *task.NextRunAt
	}
	return []driver.Value{
		task.ID.String(), string(task.Type), string(task.Status), account, content, device,
		[]byte(`{"theme":"spring launch","keywords":["tea"]}`),
		[]byte(`{"auto_retry":true,"max_retries":3,"notify_on_complete":false}`),
		task.Attempt, task.Progress, task.ErrorMessage, receipt, next, task.Version,
		task.CreatedAt, task.UpdatedAt,
	}
}

func TestPostgresTaskStore_CreateTask(t *testing.T) {
	s, mock := newMockTaskStore(t)
	task := sampleTask()

	mock.ExpectExec("INSERT INTO tasks").
		WithArgs(task.ID, task.Type, task.Status, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), 0, 0, "", sqlmock.AnyArg(), sqlmock.AnyArg(),
			task.CreatedAt, task.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.CreateTask(context.Background(), task))
	assert.Equal(t, int64(1), task.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_CreateTaskRejectsInvalidTask(t *testing.T) {
	s, mock := newMockTaskStore(t)
	task := sampleTask()
	task.Status = domain.TaskStatusFailed // failed without an error message

	err := s.CreateTask(context.Background(), task)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_CreateTaskDuplicate(t *testing.T) {
	s, mock := newMockTaskStore(t)
	mock.ExpectExec("INSERT INTO tasks").WillReturnError(newPgError(uniqueViolationCode))

	err := s.CreateTask(context.Background(), sampleTask())
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestPostgresTaskStore_GetTask(t *testing.T) {
	s, mock := newMockTaskStore(t)
	want := sampleTask()
	want.Version = 4
	want.Attempt = 1
	want.Progress = 50
	content := uuid.New()
	want.ContentID = &content
	next := want.CreatedAt.Add(time.Hour)
	want.NextRunAt = &next

	mock.ExpectQuery("SELECT (.+) FROM tasks WHERE id = \\$1").
		WithArgs(want.ID).
		WillReturnRows(sqlmock.NewRows(taskColumnNames).AddRow(taskRow(want)...))

	got, err := s.GetTask(context.Background(), want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
	assert.Equal(t, want.AccountID, got.AccountID)
	assert.Equal(t, want.ContentID, got.ContentID)
	assert.Equal(t, "device-1", *got.DeviceID)
	assert.Equal(t, "spring launch", got.GenerationConfig.Theme)
	assert.Equal(t, []string{"tea"}, got.GenerationConfig.Keywords)
	assert.True(t, got.PublishConfig.AutoRetry)
	assert.Equal(t, 3, got.PublishConfig.MaxRetries)
	assert.Equal(t, int64(4), got.Version)
	assert.True(t, next.Equal(*got.NextRunAt))
	assert.Nil(t, got.Receipt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_GetTaskDecodesReceipt(t *testing.T) {
	s, mock := newMockTaskStore(t)
	want := sampleTask()
	content := uuid.New()
	want.ContentID = &content
	want.Status = domain.TaskStatusCompleted
	want.Progress = 100
	want.Receipt = &domain.PublishReceipt{}
	want.AccountID = nil
	want.DeviceID = nil

	mock.ExpectQuery("SELECT (.+) FROM tasks").
		WillReturnRows(sqlmock.NewRows(taskColumnNames).AddRow(taskRow(want)...))

	got, err := s.GetTask(context.Background(), want.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Receipt)
	assert.Equal(t, "p-1", got.Receipt.PlatformPostID)
	assert.Nil(t, got.AccountID)
	assert.Nil(t, got.DeviceID)
}

func TestPostgresTaskStore_GetTaskNotFound(t *testing.T) {
	s, mock := newMockTaskStore(t)
	mock.ExpectQuery("SELECT (.+) FROM tasks").
		WillReturnRows(sqlmock.NewRows(taskColumnNames))

	_, err := s.GetTask(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
	assert.True(t, store.IsNotFoundError(err))
}

func TestPostgresTaskStore_UpdateTask(t *testing.T) {
	s, mock := newMockTaskStore(t)
	task := sampleTask()
	task.Version = 2
	task.Status = domain.TaskStatusRunning

	mock.ExpectExec("UPDATE tasks SET (.+) WHERE id = \\$1 AND version = \\$14").
		WithArgs(task.ID, task.Status, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), 0, 0, "", sqlmock.AnyArg(), sqlmock.AnyArg(),
			task.UpdatedAt, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UpdateTask(context.Background(), task))
	assert.Equal(t, int64(3), task.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_UpdateTaskStaleVersion(t *testing.T) {
	tests := []struct {
		name    string
		exists  bool
		wantErr error
	}{
		{name: "stale version", exists: true, wantErr: store.ErrTaskConflict},
		{name: "missing task", exists: false, wantErr: store.ErrTaskNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockTaskStore(t)
			task := sampleTask()
			task.Version = 5

			mock.ExpectExec("UPDATE tasks").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT EXISTS").
				WithArgs(task.ID).
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.exists))

			err := s.UpdateTask(context.Background(), task)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int64(5), task.Version, "version must not move on a failed write")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresTaskStore_ListActiveTasks(t *testing.T) {
	s, mock := newMockTaskStore(t)
	first, second := sampleTask(), sampleTask()
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	second.UpdatedAt = second.CreatedAt
	second.Status = domain.TaskStatusRunning

	mock.ExpectQuery("WHERE status IN \\('pending', 'running'\\)\\s+ORDER BY created_at ASC").
		WillReturnRows(sqlmock.NewRows(taskColumnNames).
			AddRow(taskRow(first)...).
			AddRow(taskRow(second)...))

	tasks, err := s.ListActiveTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, first.ID, tasks[0].ID)
	assert.Equal(t, domain.TaskStatusRunning, tasks[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
