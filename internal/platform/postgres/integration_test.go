package postgres

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/platform/logger"
	"github.com/phrazzld/postpilot/internal/store"
	"github.com/phrazzld/postpilot/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// migratedDB returns the migrated test database. Tests using it are skipped
// without one.
func migratedDB(t *testing.T) *sql.DB {
	t.Helper()
	db := testdb.Open(t)
	require.NoError(t, Migrate(context.Background(), db, "up", logger.Discard()))
	return db
}

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	return New(migratedDB(t), logger.Discard())
}

func TestIntegration_TaskVersioning(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	account := &domain.Account{
		ID:        uuid.New(),
		Platform:  "mastodon",
		Name:      "integration",
		Status:    domain.AccountStatusActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.PutAccount(ctx, account))
	gotAccount, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, gotAccount.CanPublish())

	task := sampleTask()
	task.AccountID = &account.ID
	require.NoError(t, s.CreateTask(ctx, task))
	assert.Equal(t, int64(1), task.Version)

	stale := task.Clone()
	require.NoError(t, task.Transition(domain.TaskStatusRunning, time.Now()))
	require.NoError(t, s.UpdateTask(ctx, task))
	assert.Equal(t, int64(2), task.Version)

	require.NoError(t, stale.Transition(domain.TaskStatusCancelled, time.Now()))
	assert.ErrorIs(t, s.UpdateTask(ctx, stale), store.ErrTaskConflict)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusRunning, got.Status)
	assert.Equal(t, task.GenerationConfig, got.GenerationConfig)

	active, err := s.ListActiveTasks(ctx)
	require.NoError(t, err)
	var found bool
	for _, a := range active {
		found = found || a.ID == task.ID
	}
	assert.True(t, found)
}

func TestIntegration_ConcurrentUpdatesSingleWinner(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	task := sampleTask()
	require.NoError(t, s.CreateTask(ctx, task))

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(progress int) {
			defer wg.Done()
			c := task.Clone()
			c.Progress = progress
			err := s.UpdateTask(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else if store.IsConflictError(err) {
				conflicts++
			}
		}(i + 1)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, writers-1, conflicts)
}

func TestIntegration_ContentAndDevices(t *testing.T) {
	db := migratedDB(t)
	ctx := context.Background()

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		contents := NewPostgresContentStore(tx, logger.Discard())
		content, err := domain.NewContent("Title", "Body", []string{"https://cdn/a.png"}, nil, []string{"tea"})
		require.NoError(t, err)
		require.NoError(t, contents.CreateContent(ctx, content))
		gotContent, err := contents.GetContent(ctx, content.ID)
		require.NoError(t, err)
		assert.Equal(t, content.Images, gotContent.Images)
		assert.Equal(t, content.Tags, gotContent.Tags)

		devices := NewPostgresDeviceStore(tx, logger.Discard())
		device, err := domain.NewDevice("it-"+uuid.NewString(), "ios", "apns:1", time.Now())
		require.NoError(t, err)
		require.NoError(t, devices.CreateDevice(ctx, device))

		device.PushChannel = "apns:2"
		device.Seen(time.Now().Add(time.Minute))
		require.NoError(t, devices.UpdateDevice(ctx, device))
		gotDevice, err := devices.GetDevice(ctx, device.DeviceID)
		require.NoError(t, err)
		assert.Equal(t, "apns:2", gotDevice.PushChannel)
	})
}

func TestIntegration_DuplicateDevice(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	device, err := domain.NewDevice("it-"+uuid.NewString(), "ios", "apns:1", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateDevice(ctx, device))
	assert.ErrorIs(t, s.CreateDevice(ctx, device), store.ErrDuplicate)
}
