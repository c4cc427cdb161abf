// Package notify defines the push capability used to deliver task results to
// mobile devices.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
)

// ResultPayload is pushed to a device when a task it issued reaches a
// terminal state.
type ResultPayload struct {
	TaskID       uuid.UUID         `json:"task_id"`
	Status       domain.TaskStatus `json:"status"`
	ContentID    *uuid.UUID        `json:"content_id,omitempty"`
	PostURL      string            `json:"post_url,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	FinishedAt   time.Time         `json:"finished_at"`
}

// NewResultPayload builds the payload for a terminal task.
func NewResultPayload(t *domain.Task) ResultPayload {
	p := ResultPayload{
		TaskID:       t.ID,
		Status:       t.Status,
		ContentID:    t.ContentID,
		ErrorMessage: t.ErrorMessage,
		FinishedAt:   t.UpdatedAt,
	}
	if t.Receipt != nil {
		p.PostURL = t.Receipt.URL
	}
	return p
}

// Notifier delivers a payload to an opaque push channel.
type Notifier interface {
	Push(ctx context.Context, channel string, payload ResultPayload) error
}
