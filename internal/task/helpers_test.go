package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/platform/logger"
	"github.com/phrazzld/postpilot/internal/platform/memory"
	"github.com/phrazzld/postpilot/internal/store"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

var errBoom = errors.New("boom")

// fakeGenerator returns scripted failures before succeeding and tracks how
// many calls run at once for each theme.
type fakeGenerator struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	inFlight map[string]int
	maxPer   map[string]int
	order    []string
	delay    time.Duration
	block    bool
	stalls   map[string]time.Duration
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		failures: make(map[string]int),
		calls:    make(map[string]int),
		inFlight: make(map[string]int),
		maxPer:   make(map[string]int),
		stalls:   make(map[string]time.Duration),
	}
}

// stall makes calls for theme sleep for d without watching their context.
func (g *fakeGenerator) stall(theme string, d time.Duration) {
	g.mu.Lock()
	g.stalls[theme] = d
	g.mu.Unlock()
}

func (g *fakeGenerator) failFirst(theme string, n int) {
	g.mu.Lock()
	g.failures[theme] = n
	g.mu.Unlock()
}

func (g *fakeGenerator) Generate(ctx context.Context, cfg domain.GenerationConfig) (*domain.Content, error) {
	g.mu.Lock()
	theme := cfg.Theme
	g.calls[theme]++
	g.order = append(g.order, theme)
	g.inFlight[theme]++
	if g.inFlight[theme] > g.maxPer[theme] {
		g.maxPer[theme] = g.inFlight[theme]
	}
	fail := g.failures[theme] > 0
	if fail {
		g.failures[theme]--
	}
	delay, block, stall := g.delay, g.block, g.stalls[theme]
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.inFlight[theme]--
		g.mu.Unlock()
	}()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if stall > 0 {
		time.Sleep(stall)
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		return nil, errBoom
	}
	return domain.NewContent("Post about "+theme, "Text about "+theme, nil, nil, []string{theme})
}

func (g *fakeGenerator) callCount(theme string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[theme]
}

func (g *fakeGenerator) callOrder() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.order...)
}

func (g *fakeGenerator) maxConcurrent(theme string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxPer[theme]
}

// fakePublisher records every publish and the clock time it happened at.
type fakePublisher struct {
	clock    clock.Clock
	mu       sync.Mutex
	failures int
	calls    int
	at       []time.Time
}

func (p *fakePublisher) Publish(ctx context.Context, content *domain.Content, account *domain.Account) (*domain.PublishReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	now := p.clock.Now()
	p.at = append(p.at, now)
	if p.failures > 0 {
		p.failures--
		return nil, errBoom
	}
	return &domain.PublishReceipt{
		PlatformPostID: "post-" + content.ID.String(),
		URL:            "https://example.social/" + account.Name + "/1",
		PublishedAt:    now.UTC(),
	}, nil
}

func (p *fakePublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakePublisher) publishedAt() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.at...)
}

// conflictStore injects version conflicts into task updates.
type conflictStore struct {
	*memory.Store
	conflicts atomic.Int32
	always    atomic.Bool
}

func (s *conflictStore) UpdateTask(ctx context.Context, t *domain.Task) error {
	if s.always.Load() {
		return store.ErrTaskConflict
	}
	if s.conflicts.Load() > 0 {
		s.conflicts.Add(-1)
		return store.ErrTaskConflict
	}
	return s.Store.UpdateTask(ctx, t)
}

type testEnv struct {
	store     *memory.Store
	generator *fakeGenerator
	publisher *fakePublisher
	clock     clock.Clock
	account   *domain.Account
	engine    *Engine
}

func testConfig() Config {
	return Config{
		Workers:           4,
		CapabilityTimeout: time.Second,
		ConflictRetries:   3,
		PersistTimeout:    time.Second,
		RetryPolicy:       RetryPolicy{Base: time.Millisecond, Cap: 10 * time.Millisecond},
	}
}

// newTestEnv builds an engine over an in-memory store seeded with one active
// account. taskStore overrides the store the engine writes through.
func newTestEnv(t *testing.T, clk clock.Clock, cfg Config, taskStore Store) *testEnv {
	t.Helper()

	mem := memory.NewStore()
	account := &domain.Account{
		ID:       uuid.New(),
		Platform: "mastodon",
		Name:     "postpilot",
		Status:   domain.AccountStatusActive,
	}
	require.NoError(t, mem.PutAccount(context.Background(), account))

	if taskStore == nil {
		taskStore = mem
	}
	if cs, ok := taskStore.(*conflictStore); ok {
		cs.Store = mem
	}

	env := &testEnv{
		store:     mem,
		generator: newFakeGenerator(),
		publisher: &fakePublisher{clock: clk},
		clock:     clk,
		account:   account,
	}
	engine, err := NewEngine(taskStore, env.generator, env.publisher, clk, cfg, logger.Discard())
	require.NoError(t, err)
	env.engine = engine
	t.Cleanup(engine.Stop)
	return env
}

func (env *testEnv) start(t *testing.T) {
	t.Helper()
	require.NoError(t, env.engine.Start(context.Background()))
}

func (env *testEnv) accountID() *uuid.UUID {
	id := env.account.ID
	return &id
}

// seedContent stores content for publish-only tasks.
func (env *testEnv) seedContent(t *testing.T) *uuid.UUID {
	t.Helper()
	content, err := domain.NewContent("Seeded", "Seeded text", nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, env.store.CreateContent(context.Background(), content))
	id := content.ID
	return &id
}

// waitForStatus waits until the persisted task reaches status and returns it.
func (env *testEnv) waitForStatus(t *testing.T, id uuid.UUID, status domain.TaskStatus) *domain.Task {
	t.Helper()
	var last *domain.Task
	require.Eventually(t, func() bool {
		got, err := env.engine.GetStatus(context.Background(), id)
		if err != nil {
			return false
		}
		last = got
		return got.Status == status
	}, waitFor, tick, "task %s never reached %s", id, status)
	return last
}

// waitForNextRun waits until the task is parked with a future run time.
func (env *testEnv) waitForNextRun(t *testing.T, id uuid.UUID) *domain.Task {
	t.Helper()
	var last *domain.Task
	require.Eventually(t, func() bool {
		got, err := env.engine.GetStatus(context.Background(), id)
		if err != nil {
			return false
		}
		last = got
		return got.Status == domain.TaskStatusPending && got.NextRunAt != nil
	}, waitFor, tick)
	return last
}
