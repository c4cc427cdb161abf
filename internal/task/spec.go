package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/store"
)

// Spec is what a caller submits to the engine.
type Spec struct {
	Type             domain.TaskType         `json:"type"`
	AccountID        *uuid.UUID              `json:"account_id,omitempty"`
	ContentID        *uuid.UUID              `json:"content_id,omitempty"`
	DeviceID         *string                 `json:"device_id,omitempty"`
	GenerationConfig domain.GenerationConfig `json:"generation_config"`
	PublishConfig    domain.PublishConfig    `json:"publish_config"`
}

// specReader is the storage needed to resolve a spec's references.
type specReader interface {
	store.AccountStore
	store.ContentStore
}

// validateSpec checks a spec before any state exists. Static problems
// return domain.ErrValidation; unresolvable references return the store's
// not found error.
func validateSpec(ctx context.Context, s Spec, reader specReader) error {
	if !s.Type.Valid() {
		return fmt.Errorf("%w: %w: %q", domain.ErrValidation, domain.ErrInvalidTaskType, s.Type)
	}
	if s.PublishConfig.MaxRetries < 0 {
		return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrNegativeMaxRetries)
	}
	if s.Type.Generates() && s.GenerationConfig.IsEmpty() {
		return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrEmptyGenerationConfig)
	}
	if s.Type == domain.TaskTypePublish {
		if s.ContentID == nil {
			return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrMissingContent)
		}
		if _, err := reader.GetContent(ctx, *s.ContentID); err != nil {
			return fmt.Errorf("resolving content %s: %w", *s.ContentID, err)
		}
	}
	if s.Type.Publishes() {
		if s.AccountID == nil {
			return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrMissingAccount)
		}
		account, err := reader.GetAccount(ctx, *s.AccountID)
		if err != nil {
			return fmt.Errorf("resolving account %s: %w", *s.AccountID, err)
		}
		if !account.CanPublish() {
			return fmt.Errorf("%w: %w: account %s is %s",
				domain.ErrValidation, domain.ErrAccountNotActive, account.ID, account.Status)
		}
	}
	return nil
}

// newTask builds a pending task from a validated spec.
func newTask(s Spec, now time.Time) *domain.Task {
	now = now.UTC()
	t := &domain.Task{
		ID:               uuid.New(),
		Status:           domain.TaskStatusPending,
		Type:             s.Type,
		AccountID:        s.AccountID,
		ContentID:        s.ContentID,
		DeviceID:         s.DeviceID,
		GenerationConfig: s.GenerationConfig,
		PublishConfig:    s.PublishConfig,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if sched := s.PublishConfig.ScheduleTime; sched != nil {
		utc := sched.UTC()
		t.PublishConfig.ScheduleTime = &utc
	}
	return t.Clone()
}

// IsValidationError reports whether err rejected a spec before creation.
func IsValidationError(err error) bool {
	return errors.Is(err, domain.ErrValidation)
}
