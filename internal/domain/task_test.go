package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTask() *Task {
	now := time.Now().UTC()
	return &Task{
		ID:               uuid.New(),
		Status:           TaskStatusPending,
		Type:             TaskTypeGenerate,
		GenerationConfig: GenerationConfig{Theme: "美食"},
		PublishConfig:    PublishConfig{AutoRetry: true, MaxRetries: 2},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestTaskValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Task)
		valid  bool
	}{
		{"valid", func(*Task) {}, true},
		{"nil id", func(t *Task) { t.ID = uuid.Nil }, false},
		{"bad type", func(t *Task) { t.Type = "repost" }, false},
		{"bad status", func(t *Task) { t.Status = "waiting" }, false},
		{"negative retries", func(t *Task) { t.PublishConfig.MaxRetries = -1 }, false},
		{"attempt above max", func(t *Task) { t.Attempt = 3 }, false},
		{"progress above 100", func(t *Task) { t.Progress = 101 }, false},
		{"failed without message", func(t *Task) { t.Status = TaskStatusFailed }, false},
		{"completed without content", func(t *Task) { t.Status = TaskStatusCompleted }, false},
		{"updated before created", func(t *Task) { t.UpdatedAt = t.CreatedAt.Add(-time.Second) }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			task := validTask()
			tc.mutate(task)
			err := task.Validate()
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrValidation), "expected validation error, got %v", err)
		})
	}
}

func TestTaskTransition(t *testing.T) {
	t.Parallel()

	task := validTask()
	created := task.UpdatedAt

	require.NoError(t, task.Transition(TaskStatusRunning, created.Add(time.Second)))
	assert.Equal(t, TaskStatusRunning, task.Status)
	assert.Equal(t, created.Add(time.Second), task.UpdatedAt)

	// a clock that moves backwards never rewinds UpdatedAt
	require.NoError(t, task.Transition(TaskStatusPending, created))
	assert.Equal(t, created.Add(time.Second), task.UpdatedAt)

	require.NoError(t, task.Transition(TaskStatusCancelled, created.Add(2*time.Second)))
	assert.True(t, task.Status.IsTerminal())

	err := task.Transition(TaskStatusRunning, created.Add(3*time.Second))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGenerationConfigIsEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, GenerationConfig{}.IsEmpty())
	assert.True(t, GenerationConfig{Theme: "  ", Keywords: []string{""}}.IsEmpty())
	assert.False(t, GenerationConfig{Keywords: []string{"coffee"}}.IsEmpty())
	assert.False(t, GenerationConfig{Theme: "travel"}.IsEmpty())
}

func TestTaskTypeSteps(t *testing.T) {
	t.Parallel()

	assert.True(t, TaskTypeGenerate.Generates())
	assert.False(t, TaskTypeGenerate.Publishes())
	assert.False(t, TaskTypePublish.Generates())
	assert.True(t, TaskTypePublish.Publishes())
	assert.True(t, TaskTypeGenerateAndPublish.Generates())
	assert.True(t, TaskTypeGenerateAndPublish.Publishes())
}

func TestTaskCloneIsDeep(t *testing.T) {
	t.Parallel()

	task := validTask()
	contentID := uuid.New()
	schedule := time.Now().Add(time.Hour)
	task.ContentID = &contentID
	task.PublishConfig.ScheduleTime = &schedule
	task.GenerationConfig.Keywords = []string{"a"}

	c := task.Clone()
	*c.ContentID = uuid.New()
	*c.PublishConfig.ScheduleTime = schedule.Add(time.Hour)
	c.GenerationConfig.Keywords[0] = "b"

	assert.Equal(t, contentID, *task.ContentID)
	assert.Equal(t, schedule, *task.PublishConfig.ScheduleTime)
	assert.Equal(t, "a", task.GenerationConfig.Keywords[0])
}

func TestNewDevice(t *testing.T) {
	t.Parallel()

	now := time.Now()
	d, err := NewDevice("ios-1", "ios", "apns:abc", now)
	require.NoError(t, err)
	assert.Equal(t, d.RegisteredAt, d.LastSeenAt)

	d.Seen(now.Add(-time.Minute))
	assert.Equal(t, now.UTC(), d.LastSeenAt)

	_, err = NewDevice(" ", "ios", "", now)
	assert.ErrorIs(t, err, ErrEmptyDeviceID)
}

func TestNewContent(t *testing.T) {
	t.Parallel()

	c, err := NewContent(" Title ", "body", nil, nil, []string{"food"})
	require.NoError(t, err)
	assert.Equal(t, "Title", c.Title)
	assert.NotNil(t, c.Images)

	_, err = NewContent("t", "", nil, nil, nil)
	assert.ErrorIs(t, err, ErrValidation)
}
