package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
)

// TaskStore persists task records.
type TaskStore interface {
	// CreateTask inserts a new task. The stored version starts at 1 and is
	// written back to task.Version.
	CreateTask(ctx context.Context, task *domain.Task) error

	// GetTask retrieves a task by ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// UpdateTask writes task if the stored version equals task.Version and
	// increments task.Version on success.
	// Returns ErrTaskConflict on a version mismatch and ErrTaskNotFound if
	// the task does not exist.
	UpdateTask(ctx context.Context, task *domain.Task) error

	// ListActiveTasks returns all pending and running tasks ordered by
	// creation time, oldest first.
	ListActiveTasks(ctx context.Context) ([]*domain.Task, error)
}

// ContentStore persists generated content.
type ContentStore interface {
	// CreateContent inserts new content.
	CreateContent(ctx context.Context, content *domain.Content) error

	// GetContent retrieves content by ID.
	// Returns ErrContentNotFound if it does not exist.
	GetContent(ctx context.Context, id uuid.UUID) (*domain.Content, error)
}

// AccountStore gives read access to publish target accounts.
type AccountStore interface {
	// GetAccount retrieves an account by ID.
	// Returns ErrAccountNotFound if it does not exist.
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

// DeviceStore persists mobile devices.
type DeviceStore interface {
	// CreateDevice inserts a device. Returns ErrDuplicate when the device ID
	// is already registered.
	CreateDevice(ctx context.Context, device *domain.Device) error

	// GetDevice retrieves a device by its client-generated ID.
	// Returns ErrDeviceNotFound if it is not registered.
	GetDevice(ctx context.Context, deviceID string) (*domain.Device, error)

	// UpdateDevice overwrites the mutable fields of a registered device.
	// Returns ErrDeviceNotFound if it is not registered.
	UpdateDevice(ctx context.Context, device *domain.Device) error
}

// Store bundles every capability a running service needs.
type Store interface {
	TaskStore
	ContentStore
	AccountStore
	DeviceStore
}
