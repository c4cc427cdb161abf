package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/generation"
	"github.com/phrazzld/postpilot/internal/publishing"
	"github.com/phrazzld/postpilot/internal/store"
)

// Progress values reported while a task moves through its steps.
const (
	progressGenerated = 50
	progressDone      = 100
)

// Watcher is called once with the persisted terminal snapshot of a task.
type Watcher func(ctx context.Context, t *domain.Task)

// capabilities are the collaborators a machine calls while advancing.
type capabilities struct {
	generator generation.Generator
	publisher publishing.Publisher
	contents  store.ContentStore
	accounts  store.AccountStore
	clock     clock.Clock
	policy    RetryPolicy
	timeout   time.Duration
	logger    *slog.Logger

	// checkpoint persists the machine before a capability call. Nil skips it.
	checkpoint func(ctx context.Context, m *Machine) error
}

// Machine drives a single task through its lifecycle. Advance is the only
// method that moves the task forward and the engine never runs two Advance
// calls for the same machine at once. Cancel and Snapshot may be called from
// any goroutine.
type Machine struct {
	mu              sync.Mutex
	task            *domain.Task
	cancelRequested bool
	watchers        []Watcher
	caps            *capabilities
	logger          *slog.Logger

	// scheduling state, guarded by the engine's queue lock
	readyAt time.Time
	index   int
	state   queueState
}

func newMachine(t *domain.Task, caps *capabilities) *Machine {
	return &Machine{
		task:   t,
		caps:   caps,
		logger: caps.logger.With("task_id", t.ID, "task_type", t.Type),
		index:  -1,
	}
}

// ID returns the task ID.
func (m *Machine) ID() uuid.UUID {
	return m.task.ID
}

// CreatedAt returns the task creation time, used for FIFO ordering.
func (m *Machine) CreatedAt() time.Time {
	return m.task.CreatedAt
}

// Snapshot returns a copy of the current in-memory task.
func (m *Machine) Snapshot() *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.task.Clone()
}

// Cancel requests cancellation. It takes effect at the next step boundary.
// It returns false if the task already reached a terminal state.
func (m *Machine) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.task.Status.IsTerminal() {
		return false
	}
	m.cancelRequested = true
	return true
}

// AddWatcher registers w to run when the task terminates. It returns false
// if the task is already terminal.
func (m *Machine) AddWatcher(w Watcher) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.task.Status.IsTerminal() {
		return false
	}
	m.watchers = append(m.watchers, w)
	return true
}

func (m *Machine) cancelPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelRequested
}

func (m *Machine) setVersion(v int64) {
	m.mu.Lock()
	m.task.Version = v
	m.mu.Unlock()
}

// adopt replaces the in-memory task with a terminal state written elsewhere.
func (m *Machine) adopt(t *domain.Task) {
	m.mu.Lock()
	m.task = t.Clone()
	m.mu.Unlock()
}

func (m *Machine) takeWatchers() []Watcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.watchers
	m.watchers = nil
	return w
}

// Advance performs exactly one step: generate, publish, or finalize a
// requested cancellation. It returns when the task should next be advanced;
// the zero time means the task is terminal or was interrupted by ctx.
func (m *Machine) Advance(ctx context.Context) time.Time {
	m.mu.Lock()
	now := m.caps.clock.Now()

	if m.task.Status.IsTerminal() {
		m.mu.Unlock()
		return time.Time{}
	}
	if m.cancelRequested {
		m.finishCancelled(now)
		m.mu.Unlock()
		return time.Time{}
	}

	if m.task.Type.Generates() && m.task.ContentID == nil {
		started := m.start(now)
		cfg := m.task.Clone().GenerationConfig
		m.mu.Unlock()
		if next, ok := m.persistStart(ctx, started); !ok {
			return next
		}
		return m.generate(ctx, cfg)
	}

	if sched := m.task.PublishConfig.ScheduleTime; sched != nil && sched.After(now) {
		readyAt := *sched
		m.transition(domain.TaskStatusPending, now)
		m.task.NextRunAt = &readyAt
		m.mu.Unlock()
		m.logger.Debug("publish not due yet", "schedule_time", readyAt)
		return readyAt
	}

	started := m.start(now)
	contentID, accountID := *m.task.ContentID, *m.task.AccountID
	m.mu.Unlock()
	if next, ok := m.persistStart(ctx, started); !ok {
		return next
	}
	return m.publish(ctx, contentID, accountID)
}

// start marks the task running and reports whether its status changed.
// Callers hold m.mu.
func (m *Machine) start(now time.Time) bool {
	if m.task.Status == domain.TaskStatusRunning {
		return false
	}
	m.transition(domain.TaskStatusRunning, now)
	return true
}

// persistStart records the running status before a capability call so
// readers never see a pending task that is being worked on. When the write
// fails the call is skipped and the task is parked for another attempt,
// which does not count against its retries.
func (m *Machine) persistStart(ctx context.Context, started bool) (time.Time, bool) {
	if !started || m.caps.checkpoint == nil {
		return time.Time{}, true
	}
	err := m.caps.checkpoint(ctx, m)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.task.Status.IsTerminal() {
		// another writer finished the task while we were saving
		return time.Time{}, false
	}
	if err == nil {
		return time.Time{}, true
	}

	now := m.caps.clock.Now()
	m.logger.Warn("failed to record running status, deferring step", "error", err)
	m.transition(domain.TaskStatusPending, now)
	readyAt := now.Add(m.caps.policy.Backoff(0))
	m.task.NextRunAt = &readyAt
	return readyAt, false
}

// callCapability runs call with the capability timeout. It returns when the
// deadline passes even if call ignores its context; a result that arrives
// after the deadline is discarded.
func callCapability[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call(callCtx)
		done <- result{v, err}
	}()

	var zero T
	select {
	case r := <-done:
		if err := callCtx.Err(); err != nil {
			return zero, err
		}
		return r.value, r.err
	case <-callCtx.Done():
		return zero, callCtx.Err()
	}
}

func (m *Machine) generate(ctx context.Context, cfg domain.GenerationConfig) time.Time {
	m.logger.Info("generating content", "attempt", m.Snapshot().Attempt)

	content, err := callCapability(ctx, m.caps.timeout, func(callCtx context.Context) (*domain.Content, error) {
		return m.caps.generator.Generate(callCtx, cfg)
	})
	if err == nil && content == nil {
		err = fmt.Errorf("%w: generator returned no content", generation.ErrInvalidResponse)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.caps.clock.Now()

	if m.cancelRequested {
		m.finishCancelled(now)
		return time.Time{}
	}
	if ctx.Err() != nil {
		m.interrupt(now)
		return time.Time{}
	}
	if err != nil {
		return m.fail(now, "generation", err)
	}

	if content.ID == uuid.Nil {
		content.ID = uuid.New()
	}
	if content.CreatedAt.IsZero() {
		content.CreatedAt = now.UTC()
	}
	saveCtx, cancelSave := context.WithTimeout(ctx, m.caps.timeout)
	err = m.caps.contents.CreateContent(saveCtx, content)
	cancelSave()
	if err != nil {
		return m.fail(now, "saving generated content", err)
	}

	id := content.ID
	m.task.ContentID = &id
	m.task.ErrorMessage = ""

	if !m.task.Type.Publishes() {
		m.complete(now)
		return time.Time{}
	}

	m.task.Progress = progressGenerated
	readyAt := now
	if sched := m.task.PublishConfig.ScheduleTime; sched != nil && sched.After(now) {
		readyAt = *sched
		m.transition(domain.TaskStatusPending, now)
	} else {
		m.task.Touch(now)
	}
	m.task.NextRunAt = &readyAt
	m.logger.Info("content generated", "content_id", id, "publish_at", readyAt)
	return readyAt
}

func (m *Machine) publish(ctx context.Context, contentID, accountID uuid.UUID) time.Time {
	m.logger.Info("publishing content", "content_id", contentID, "account_id", accountID)

	receipt, err := callCapability(ctx, m.caps.timeout, func(callCtx context.Context) (*domain.PublishReceipt, error) {
		return m.callPublisher(callCtx, contentID, accountID)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.caps.clock.Now()

	if m.cancelRequested {
		m.finishCancelled(now)
		return time.Time{}
	}
	if ctx.Err() != nil {
		m.interrupt(now)
		return time.Time{}
	}
	if err != nil {
		if isPermanent(err) {
			m.failPermanently(now, fmt.Errorf("%w: publish: %w", ErrCapability, err).Error())
			return time.Time{}
		}
		return m.fail(now, "publish", err)
	}

	if receipt == nil {
		receipt = &domain.PublishReceipt{PublishedAt: now.UTC()}
	}
	m.task.Receipt = receipt
	m.task.ErrorMessage = ""
	m.complete(now)
	return time.Time{}
}

// permanentError marks failures that no retry can fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

func (m *Machine) callPublisher(ctx context.Context, contentID, accountID uuid.UUID) (*domain.PublishReceipt, error) {
	content, err := m.caps.contents.GetContent(ctx, contentID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, permanentError{err}
		}
		return nil, err
	}
	account, err := m.caps.accounts.GetAccount(ctx, accountID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, permanentError{err}
		}
		return nil, err
	}
	if !account.CanPublish() {
		return nil, permanentError{fmt.Errorf("%w: account %s is %s",
			domain.ErrAccountNotActive, account.ID, account.Status)}
	}
	return m.caps.publisher.Publish(ctx, content, account)
}

// fail consults the retry policy after a capability failure. Callers hold m.mu.
func (m *Machine) fail(now time.Time, step string, cause error) time.Time {
	msg := fmt.Errorf("%w: %s: %w", ErrCapability, step, cause).Error()
	decision := m.caps.policy.Decide(m.task.PublishConfig, m.task.Attempt)
	if !decision.Retry {
		m.failPermanently(now, msg)
		return time.Time{}
	}

	m.task.Attempt++
	m.task.ErrorMessage = msg
	m.transition(domain.TaskStatusPending, now)
	readyAt := now.Add(decision.Delay)
	m.task.NextRunAt = &readyAt

	m.logger.Warn("step failed, retry scheduled",
		"step", step,
		"error", cause,
		"attempt", m.task.Attempt,
		"max_retries", m.task.PublishConfig.MaxRetries,
		"delay", decision.Delay)
	return readyAt
}

func (m *Machine) failPermanently(now time.Time, msg string) {
	m.task.ErrorMessage = msg
	m.task.NextRunAt = nil
	m.transition(domain.TaskStatusFailed, now)
	m.logger.Error("task failed", "error", msg, "attempt", m.task.Attempt)
}

func (m *Machine) complete(now time.Time) {
	m.task.Progress = progressDone
	m.task.NextRunAt = nil
	m.transition(domain.TaskStatusCompleted, now)
	m.logger.Info("task completed", "attempt", m.task.Attempt)
}

func (m *Machine) finishCancelled(now time.Time) {
	m.task.NextRunAt = nil
	m.transition(domain.TaskStatusCancelled, now)
	m.logger.Info("task cancelled")
}

// interrupt parks a task whose step was cut short by engine shutdown so a
// later start resumes it.
func (m *Machine) interrupt(now time.Time) {
	m.transition(domain.TaskStatusPending, now)
	resume := now
	m.task.NextRunAt = &resume
	m.logger.Info("step interrupted by shutdown")
}

// transition moves the task to status and logs a refused move.
// Callers hold m.mu.
func (m *Machine) transition(status domain.TaskStatus, now time.Time) {
	if err := m.task.Transition(status, now); err != nil {
		m.logger.Error("invalid task transition",
			"from", m.task.Status,
			"to", status,
			"error", err)
	}
}
