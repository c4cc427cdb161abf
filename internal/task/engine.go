package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/generation"
	"github.com/phrazzld/postpilot/internal/publishing"
	"github.com/phrazzld/postpilot/internal/store"
)

// Store is the storage the engine drives tasks against.
type Store interface {
	store.TaskStore
	store.ContentStore
	store.AccountStore
}

// Config holds the engine tuning knobs.
type Config struct {
	// Workers is the maximum number of tasks advanced concurrently.
	Workers int

	// CapabilityTimeout bounds every generate and publish call.
	CapabilityTimeout time.Duration

	// ConflictRetries is how many times a conflicting write is retried
	// before the task is released in its last persisted state.
	ConflictRetries int

	// PersistTimeout bounds each storage write made by the engine.
	PersistTimeout time.Duration

	RetryPolicy RetryPolicy
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		CapabilityTimeout: 60 * time.Second,
		ConflictRetries:   3,
		PersistTimeout:    10 * time.Second,
		RetryPolicy:       DefaultRetryPolicy(),
	}
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Running   bool  `json:"running"`
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Waiting   int   `json:"waiting"`
	Ready     int   `json:"ready"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// SubmitOption customises a single Submit call.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	watchers []Watcher
}

// WithWatcher attaches w to the submitted task. It runs once after the
// task's terminal state is persisted.
func WithWatcher(w Watcher) SubmitOption {
	return func(o *submitOptions) {
		if w != nil {
			o.watchers = append(o.watchers, w)
		}
	}
}

// Engine drives tasks through their lifecycle. A dispatcher goroutine hands
// ready machines to a fixed pool of workers; each worker advances a machine
// by one step, persists it, and requeues or releases it.
type Engine struct {
	store  Store
	caps   *capabilities
	clock  clock.Clock
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	machines map[uuid.UUID]*Machine
	queue    readyQueue
	running  bool
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	wake chan struct{}
	work chan *Machine

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
}

// NewEngine creates an engine. It does nothing until Start is called.
func NewEngine(
	s Store,
	generator generation.Generator,
	publisher publishing.Publisher,
	clk clock.Clock,
	config Config,
	logger *slog.Logger,
) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.CapabilityTimeout <= 0 {
		config.CapabilityTimeout = defaults.CapabilityTimeout
	}
	if config.ConflictRetries <= 0 {
		config.ConflictRetries = defaults.ConflictRetries
	}
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = defaults.PersistTimeout
	}
	if config.RetryPolicy.Base <= 0 {
		config.RetryPolicy = defaults.RetryPolicy
	}

	logger = logger.With("component", "task_engine")
	e := &Engine{
		store: s,
		caps: &capabilities{
			generator: generator,
			publisher: publisher,
			contents:  s,
			accounts:  s,
			clock:     clk,
			policy:    config.RetryPolicy,
			timeout:   config.CapabilityTimeout,
			logger:    logger,
		},
		clock:    clk,
		config:   config,
		logger:   logger,
		machines: make(map[uuid.UUID]*Machine),
		wake:     make(chan struct{}, 1),
		work:     make(chan *Machine),
	}
	e.caps.checkpoint = func(ctx context.Context, m *Machine) error {
		_, err := e.persist(ctx, m)
		return err
	}
	return e, nil
}

// Start recovers active tasks from storage and launches the dispatcher and
// workers. Tasks persisted as running were interrupted mid-step and are
// reset to pending.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrEngineRunning
	}
	if e.stopped {
		e.mu.Unlock()
		return ErrEngineStopped
	}
	e.mu.Unlock()

	recovered, err := e.recover(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	e.mu.Lock()
	e.running = true
	e.cancel = cancel
	now := e.clock.Now()
	for _, m := range e.machines {
		if m.state != stateIdle {
			continue
		}
		at := now
		if next := m.Snapshot().NextRunAt; next != nil {
			at = *next
		}
		e.queue.push(m, at, now)
	}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.dispatch(runCtx)
	}()
	for i := 0; i < e.config.Workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.worker(runCtx)
		}()
	}

	e.logger.Info("task engine started",
		"workers", e.config.Workers,
		"recovered_tasks", recovered)
	return nil
}

func (e *Engine) recover(ctx context.Context) (int, error) {
	tasks, err := e.store.ListActiveTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active tasks: %w", err)
	}

	count := 0
	for _, t := range tasks {
		e.mu.Lock()
		_, known := e.machines[t.ID]
		e.mu.Unlock()
		if known {
			continue
		}

		if t.Status == domain.TaskStatusRunning {
			if err := t.Transition(domain.TaskStatusPending, e.clock.Now()); err != nil {
				e.logger.Error("invalid task transition",
					"task_id", t.ID,
					"error", err)
				continue
			}
			if err := e.store.UpdateTask(ctx, t); err != nil {
				e.logger.Error("failed to reset interrupted task",
					"task_id", t.ID,
					"error", err)
				continue
			}
		}

		m := newMachine(t, e.caps)
		e.mu.Lock()
		e.machines[t.ID] = m
		e.mu.Unlock()
		count++
	}
	return count, nil
}

// Stop halts dispatching and waits for in-flight steps to wind down.
// Interrupted steps are persisted as pending so a later Start resumes them.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.stopped = true
		e.mu.Unlock()
		return
	}
	e.running = false
	e.stopped = true
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	e.logger.Info("task engine stopped")
}

// Submit validates spec, persists a new pending task and queues it. It does
// not wait for any step to run.
func (e *Engine) Submit(ctx context.Context, spec Spec, opts ...SubmitOption) (uuid.UUID, error) {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return uuid.Nil, ErrEngineStopped
	}

	if err := validateSpec(ctx, spec, e.store); err != nil {
		return uuid.Nil, err
	}

	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}

	t := newTask(spec, e.clock.Now())
	if err := e.store.CreateTask(ctx, t); err != nil {
		return uuid.Nil, fmt.Errorf("creating task: %w", err)
	}

	m := newMachine(t.Clone(), e.caps)
	m.watchers = o.watchers

	e.mu.Lock()
	e.machines[t.ID] = m
	if e.running {
		now := e.clock.Now()
		e.queue.push(m, now, now)
	}
	e.mu.Unlock()
	e.signal()

	e.submitted.Add(1)
	m.logger.Info("task submitted",
		"account_id", t.AccountID,
		"content_id", t.ContentID,
		"max_retries", t.PublishConfig.MaxRetries)
	return t.ID, nil
}

// GetStatus returns the last persisted state of a task.
func (e *Engine) GetStatus(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	t, err := e.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CancelTask requests cancellation of a task. Cancelling a task that has
// already terminated is a no-op. The cancellation is applied by the worker
// that next advances the task; a task waiting on a schedule or backoff is
// made ready immediately.
func (e *Engine) CancelTask(ctx context.Context, id uuid.UUID) error {
	e.mu.Lock()
	m, ok := e.machines[id]
	if !ok {
		e.mu.Unlock()
		return e.cancelDetached(ctx, id)
	}
	if !m.Cancel() {
		e.mu.Unlock()
		return nil
	}

	switch {
	case m.state == stateTimed:
		e.queue.expedite(m, e.clock.Now())
	case m.state == stateIdle && !e.running:
		m.state = stateRunning
		e.mu.Unlock()
		e.step(ctx, m)
		return nil
	}
	e.mu.Unlock()
	e.signal()

	m.logger.Info("cancellation requested")
	return nil
}

// cancelDetached cancels a task this engine is not driving.
func (e *Engine) cancelDetached(ctx context.Context, id uuid.UUID) error {
	t, err := e.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		return nil
	}
	if err := t.Transition(domain.TaskStatusCancelled, e.clock.Now()); err != nil {
		return err
	}
	t.NextRunAt = nil
	if err := e.store.UpdateTask(ctx, t); err != nil {
		return fmt.Errorf("cancelling task %s: %w", id, err)
	}
	e.cancelled.Add(1)
	return nil
}

// Watch attaches w to an active task.
// Returns ErrTaskNotActive if the engine no longer drives the task.
func (e *Engine) Watch(id uuid.UUID, w Watcher) error {
	e.mu.Lock()
	m, ok := e.machines[id]
	e.mu.Unlock()
	if !ok || !m.AddWatcher(w) {
		return ErrTaskNotActive
	}
	return nil
}

// Stats reports queue sizes and lifetime counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	timed, ready := e.queue.len()
	return Stats{
		Running:   e.running,
		Workers:   e.config.Workers,
		Active:    len(e.machines),
		Waiting:   timed,
		Ready:     ready,
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
		Cancelled: e.cancelled.Load(),
	}
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// dispatch hands ready machines to workers in order and sleeps on the clock
// until the next deadline or a wake signal.
func (e *Engine) dispatch(ctx context.Context) {
	for {
		e.mu.Lock()
		now := e.clock.Now()
		e.queue.promote(now)
		m := e.queue.pop()
		wait := time.Duration(-1)
		if m != nil {
			m.state = stateRunning
		} else if at, ok := e.queue.nextWake(); ok {
			wait = at.Sub(now)
		}
		e.mu.Unlock()

		if m != nil {
			select {
			case e.work <- m:
				continue
			case <-ctx.Done():
				return
			}
		}

		var timer *clock.Timer
		var fire <-chan time.Time
		if wait >= 0 {
			timer = e.clock.Timer(wait)
			fire = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-e.wake:
		case <-fire:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (e *Engine) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-e.work:
			e.step(ctx, m)
		}
	}
}

// step advances m once, persists the result, then requeues or releases it.
// The caller must have marked m as running.
func (e *Engine) step(ctx context.Context, m *Machine) {
	readyAt := m.Advance(ctx)

	saved, err := e.persist(ctx, m)
	if err != nil {
		m.logger.Error("failed to persist task, releasing it",
			"error", err)
		e.release(m)
		return
	}

	if saved.Status.IsTerminal() {
		e.release(m)
		e.record(saved.Status)
		e.notify(ctx, m, saved)
		return
	}

	if ctx.Err() != nil {
		// shutting down; the persisted pending state is picked up by the next Start
		e.mu.Lock()
		m.state = stateIdle
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	if e.running {
		now := e.clock.Now()
		if m.cancelPending() {
			readyAt = now
		}
		e.queue.push(m, readyAt, now)
	} else {
		m.state = stateIdle
	}
	e.mu.Unlock()
	e.signal()
}

// persist writes the machine's state. A version conflict refreshes the
// version and rewrites the same state; if another writer already finished
// the task, its state is adopted instead.
func (e *Engine) persist(ctx context.Context, m *Machine) (*domain.Task, error) {
	ctx = context.WithoutCancel(ctx)
	var saved *domain.Task

	err := retry.Do(
		func() error {
			writeCtx, cancel := context.WithTimeout(ctx, e.config.PersistTimeout)
			defer cancel()

			snap := m.Snapshot()
			err := e.store.UpdateTask(writeCtx, snap)
			if err == nil {
				m.setVersion(snap.Version)
				saved = snap
				return nil
			}
			if !store.IsConflictError(err) {
				return err
			}

			current, getErr := e.store.GetTask(writeCtx, snap.ID)
			if getErr != nil {
				return fmt.Errorf("refreshing task after conflict: %w", getErr)
			}
			if current.Status.IsTerminal() {
				m.adopt(current)
				saved = current
				return nil
			}
			m.setVersion(current.Version)
			m.logger.Warn("task write conflicted, retrying",
				"stored_version", current.Version)
			return err
		},
		retry.Attempts(uint(e.config.ConflictRetries)+1),
		retry.Delay(10*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(store.IsConflictError),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (e *Engine) release(m *Machine) {
	e.mu.Lock()
	m.state = stateReleased
	delete(e.machines, m.ID())
	e.mu.Unlock()
}

func (e *Engine) record(status domain.TaskStatus) {
	switch status {
	case domain.TaskStatusCompleted:
		e.completed.Add(1)
	case domain.TaskStatusFailed:
		e.failed.Add(1)
	case domain.TaskStatusCancelled:
		e.cancelled.Add(1)
	}
}

// notify runs the machine's watchers with the persisted terminal snapshot.
func (e *Engine) notify(ctx context.Context, m *Machine, saved *domain.Task) {
	ctx = context.WithoutCancel(ctx)
	for _, w := range m.takeWatchers() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("task watcher panicked", "panic", r)
				}
			}()
			w(ctx, saved.Clone())
		}()
	}
}

// IsNotFound reports whether err means the task does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
