package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/task"
)

// SubmitTaskRequest is the body of POST /api/tasks.
type SubmitTaskRequest struct {
	Type             string                  `json:"type"              validate:"required,oneof=generate publish generate_and_publish"`
	AccountID        *uuid.UUID              `json:"account_id"`
	ContentID        *uuid.UUID              `json:"content_id"`
	GenerationConfig domain.GenerationConfig `json:"generation_config"`
	PublishConfig    PublishConfigRequest    `json:"publish_config"`
}

// PublishConfigRequest carries the scheduling and retry options of a task.
type PublishConfigRequest struct {
	ScheduleTime     *time.Time `json:"schedule_time"`
	AutoRetry        bool       `json:"auto_retry"`
	MaxRetries       int        `json:"max_retries" validate:"gte=0,lte=20"`
	NotifyOnComplete bool       `json:"notify_on_complete"`
}

func (r SubmitTaskRequest) toSpec() task.Spec {
	return task.Spec{
		Type:             domain.TaskType(r.Type),
		AccountID:        r.AccountID,
		ContentID:        r.ContentID,
		GenerationConfig: r.GenerationConfig,
		PublishConfig: domain.PublishConfig{
			ScheduleTime:     r.PublishConfig.ScheduleTime,
			AutoRetry:        r.PublishConfig.AutoRetry,
			MaxRetries:       r.PublishConfig.MaxRetries,
			NotifyOnComplete: r.PublishConfig.NotifyOnComplete,
		},
	}
}

// SubmitTaskResponse is returned once a task is accepted.
type SubmitTaskResponse struct {
	TaskID uuid.UUID `json:"task_id"`
}

// TaskResponse is the client view of a task.
type TaskResponse struct {
	ID           uuid.UUID              `json:"id"`
	Type         string                 `json:"type"`
	Status       string                 `json:"status"`
	Progress     int                    `json:"progress"`
	Attempt      int                    `json:"attempt"`
	AccountID    *uuid.UUID             `json:"account_id,omitempty"`
	ContentID    *uuid.UUID             `json:"content_id,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Receipt      *domain.PublishReceipt `json:"receipt,omitempty"`
	NextRunAt    *time.Time             `json:"next_run_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		Type:         string(t.Type),
		Status:       string(t.Status),
		Progress:     t.Progress,
		Attempt:      t.Attempt,
		AccountID:    t.AccountID,
		ContentID:    t.ContentID,
		ErrorMessage: t.ErrorMessage,
		Receipt:      t.Receipt,
		NextRunAt:    t.NextRunAt,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string     `json:"status"`
	Database string     `json:"database"`
	Engine   task.Stats `json:"engine"`
}
