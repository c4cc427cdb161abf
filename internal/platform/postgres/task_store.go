package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/platform/logger"
	"github.com/phrazzld/postpilot/internal/store"
)

const taskColumns = `id, type, status, account_id, content_id, device_id,
	generation_config, publish_config, attempt, progress, error_message,
	receipt, next_run_at, version, created_at, updated_at`

// PostgresTaskStore implements store.TaskStore with a version column for
// optimistic concurrency.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a task store over a connection or transaction.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

// CreateTask implements store.TaskStore.CreateTask.
func (s *PostgresTaskStore) CreateTask(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	row, err := encodeTask(task)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14, $15)`,
		task.ID, task.Type, task.Status, task.AccountID, task.ContentID, task.DeviceID,
		row.generationConfig, row.publishConfig, task.Attempt, task.Progress,
		task.ErrorMessage, row.receipt, utcPtr(task.NextRunAt),
		task.CreatedAt.UTC(), task.UpdatedAt.UTC(),
	)
	if err != nil {
		log.Error("failed to create task", "task_id", task.ID, "error", err)
		return MapError(err)
	}

	task.Version = 1
	return nil
}

// GetTask implements store.TaskStore.GetTask.
func (s *PostgresTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		return nil, mapNotFound(err, store.ErrTaskNotFound)
	}
	return task, nil
}

// UpdateTask implements store.TaskStore.UpdateTask. The write only lands when
// the stored version still equals task.Version.
func (s *PostgresTaskStore) UpdateTask(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	row, err := encodeTask(task)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			status = $2, account_id = $3, content_id = $4, device_id = $5,
			generation_config = $6, publish_config = $7, attempt = $8,
			progress = $9, error_message = $10, receipt = $11,
			next_run_at = $12, updated_at = $13, version = version + 1
		WHERE id = $1 AND version = $14`,
		task.ID, task.Status, task.AccountID, task.ContentID, task.DeviceID,
		row.generationConfig, row.publishConfig, task.Attempt, task.Progress,
		task.ErrorMessage, row.receipt, utcPtr(task.NextRunAt),
		task.UpdatedAt.UTC(), task.Version,
	)
	if err != nil {
		log.Error("failed to update task", "task_id", task.ID, "error", err)
		return MapError(err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, task.ID).Scan(&exists)
		if err != nil {
			return MapError(err)
		}
		if !exists {
			return store.ErrTaskNotFound
		}
		log.Debug("task version conflict", "task_id", task.ID, "version", task.Version)
		return fmt.Errorf("%w: %s at version %d", store.ErrTaskConflict, task.ID, task.Version)
	}

	task.Version++
	return nil
}

// ListActiveTasks implements store.TaskStore.ListActiveTasks.
func (s *PostgresTaskStore) ListActiveTasks(ctx context.Context) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status IN ('pending', 'running')
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, MapError(err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return tasks, nil
}

type encodedTask struct {
	generationConfig []byte
	publishConfig    []byte
	receipt          []byte
}

func encodeTask(task *domain.Task) (encodedTask, error) {
	var (
		row encodedTask
		err error
	)
	if row.generationConfig, err = json.Marshal(task.GenerationConfig); err != nil {
		return row, fmt.Errorf("%w: generation config: %w", store.ErrInvalidEntity, err)
	}
	if row.publishConfig, err = json.Marshal(task.PublishConfig); err != nil {
		return row, fmt.Errorf("%w: publish config: %w", store.ErrInvalidEntity, err)
	}
	if task.Receipt != nil {
		if row.receipt, err = json.Marshal(task.Receipt); err != nil {
			return row, fmt.Errorf("%w: receipt: %w", store.ErrInvalidEntity, err)
		}
	}
	return row, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task                       domain.Task
		accountID, contentID       uuid.NullUUID
		deviceID                   sql.NullString
		genConfig, pubConfig, rcpt []byte
		nextRunAt                  sql.NullTime
	)
	err := row.Scan(
		&task.ID, &task.Type, &task.Status, &accountID, &contentID, &deviceID,
		&genConfig, &pubConfig, &task.Attempt, &task.Progress, &task.ErrorMessage,
		&rcpt, &nextRunAt, &task.Version, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if accountID.Valid {
		id := accountID.UUID
		task.AccountID = &id
	}
	if contentID.Valid {
		id := contentID.UUID
		task.ContentID = &id
	}
	if deviceID.Valid {
		d := deviceID.String
		task.DeviceID = &d
	}
	if nextRunAt.Valid {
		t := nextRunAt.Time.UTC()
		task.NextRunAt = &t
	}
	if err := json.Unmarshal(genConfig, &task.GenerationConfig); err != nil {
		return nil, fmt.Errorf("decoding generation config of task %s: %w", task.ID, err)
	}
	if err := json.Unmarshal(pubConfig, &task.PublishConfig); err != nil {
		return nil, fmt.Errorf("decoding publish config of task %s: %w", task.ID, err)
	}
	if len(rcpt) > 0 {
		task.Receipt = &domain.PublishReceipt{}
		if err := json.Unmarshal(rcpt, task.Receipt); err != nil {
			return nil, fmt.Errorf("decoding receipt of task %s: %w", task.ID, err)
		}
	}
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return &task, nil
}
