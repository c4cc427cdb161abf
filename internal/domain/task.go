package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transition can leave the status.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskType selects which steps a task performs.
type TaskType string

// Task type values
const (
	TaskTypeGenerate           TaskType = "generate"
	TaskTypePublish            TaskType = "publish"
	TaskTypeGenerateAndPublish TaskType = "generate_and_publish"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeGenerate, TaskTypePublish, TaskTypeGenerateAndPublish:
		return true
	default:
		return false
	}
}

// Generates reports whether the task type includes a generation step.
func (t TaskType) Generates() bool {
	return t == TaskTypeGenerate || t == TaskTypeGenerateAndPublish
}

// Publishes reports whether the task type includes a publish step.
func (t TaskType) Publishes() bool {
	return t == TaskTypePublish || t == TaskTypeGenerateAndPublish
}

// GenerationConfig describes the post a user wants at a high level.
type GenerationConfig struct {
	Theme         string   `json:"theme,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	Audience      string   `json:"audience,omitempty"`
	Style         string   `json:"style,omitempty"`
	Platform      string   `json:"platform,omitempty"`
	Language      string   `json:"language,omitempty"`
	Length        string   `json:"length,omitempty" validate:"omitempty,oneof=short medium long"`
	IncludeImages bool     `json:"include_images,omitempty"`
	IncludeVideos bool     `json:"include_videos,omitempty"`
}

// IsEmpty reports whether the config carries nothing to generate from.
func (c GenerationConfig) IsEmpty() bool {
	if strings.TrimSpace(c.Theme) != "" {
		return false
	}
	for _, k := range c.Keywords {
		if strings.TrimSpace(k) != "" {
			return false
		}
	}
	return true
}

// PublishConfig controls scheduling, retries and completion notification.
type PublishConfig struct {
	ScheduleTime     *time.Time `json:"schedule_time,omitempty"`
	AutoRetry        bool       `json:"auto_retry"`
	MaxRetries       int        `json:"max_retries"`
	NotifyOnComplete bool       `json:"notify_on_complete"`
}

// PublishReceipt is what the publishing capability reports for a published post.
type PublishReceipt struct {
	PlatformPostID string    `json:"platform_post_id"`
	URL            string    `json:"url,omitempty"`
	PublishedAt    time.Time `json:"published_at"`
}

// Task is a unit of generate/publish work with its own lifecycle.
type Task struct {
	ID               uuid.UUID        `json:"id"`
	Status           TaskStatus       `json:"status"`
	Type             TaskType         `json:"type"`
	AccountID        *uuid.UUID       `json:"account_id,omitempty"`
	ContentID        *uuid.UUID       `json:"content_id,omitempty"`
	DeviceID         *string          `json:"device_id,omitempty"`
	GenerationConfig GenerationConfig `json:"generation_config"`
	PublishConfig    PublishConfig    `json:"publish_config"`
	Attempt          int              `json:"attempt"`
	Progress         int              `json:"progress"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	Receipt          *PublishReceipt  `json:"receipt,omitempty"`
	NextRunAt        *time.Time       `json:"next_run_at,omitempty"`
	Version          int64            `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Validate checks the static invariants of a task.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("%w: task ID cannot be empty", ErrValidation)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidTaskType, t.Type)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidTaskStatus, t.Status)
	}
	if t.PublishConfig.MaxRetries < 0 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrNegativeMaxRetries)
	}
	if t.Attempt < 0 || t.Attempt > t.PublishConfig.MaxRetries {
		return fmt.Errorf("%w: attempt %d outside [0, %d]",
			ErrValidation, t.Attempt, t.PublishConfig.MaxRetries)
	}
	if t.Progress < 0 || t.Progress > 100 {
		return fmt.Errorf("%w: progress %d outside [0, 100]", ErrValidation, t.Progress)
	}
	if t.Status == TaskStatusFailed && t.ErrorMessage == "" {
		return fmt.Errorf("%w: failed task must carry an error message", ErrValidation)
	}
	if t.Status == TaskStatusCompleted && t.Type.Generates() && t.ContentID == nil {
		return fmt.Errorf("%w: completed task has no content", ErrValidation)
	}
	if t.UpdatedAt.Before(t.CreatedAt) {
		return fmt.Errorf("%w: updated_at precedes created_at", ErrValidation)
	}
	return nil
}

// CanTransition reports whether the lifecycle connects from and to.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusPending:
		return to == TaskStatusRunning || to == TaskStatusCancelled || to == TaskStatusFailed
	case TaskStatusRunning:
		return to == TaskStatusPending || to == TaskStatusCompleted ||
			to == TaskStatusFailed || to == TaskStatusCancelled
	default:
		return false
	}
}

// Transition moves the task to status and bumps UpdatedAt to now, never
// moving it backwards.
func (t *Task) Transition(to TaskStatus, now time.Time) error {
	if t.Status != to && !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	t.Touch(now)
	return nil
}

// Touch advances UpdatedAt monotonically.
func (t *Task) Touch(now time.Time) {
	now = now.UTC()
	if now.After(t.UpdatedAt) {
		t.UpdatedAt = now
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (t *Task) Clone() *Task {
	c := *t
	if t.AccountID != nil {
		id := *t.AccountID
		c.AccountID = &id
	}
	if t.ContentID != nil {
		id := *t.ContentID
		c.ContentID = &id
	}
	if t.DeviceID != nil {
		id := *t.DeviceID
		c.DeviceID = &id
	}
	if t.PublishConfig.ScheduleTime != nil {
		st := *t.PublishConfig.ScheduleTime
		c.PublishConfig.ScheduleTime = &st
	}
	if t.NextRunAt != nil {
		n := *t.NextRunAt
		c.NextRunAt = &n
	}
	if t.Receipt != nil {
		r := *t.Receipt
		c.Receipt = &r
	}
	c.GenerationConfig.Keywords = append([]string(nil), t.GenerationConfig.Keywords...)
	return &c
}
