package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/store"
)

// Store implements store.Store in memory.
type Store struct {
	mu       sync.RWMutex
	tasks    map[uuid.UUID]*domain.Task
	contents map[uuid.UUID]*domain.Content
	accounts map[uuid.UUID]*domain.Account
	devices  map[string]*domain.Device
}

var _ store.Store = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		tasks:    make(map[uuid.UUID]*domain.Task),
		contents: make(map[uuid.UUID]*domain.Content),
		accounts: make(map[uuid.UUID]*domain.Account),
		devices:  make(map[string]*domain.Device),
	}
}

// CreateTask implements store.TaskStore.
func (s *Store) CreateTask(ctx context.Context, task *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return store.NewStoreError("task", "create", "task already exists", store.ErrDuplicate)
	}
	task.Version = 1
	s.tasks[task.ID] = task.Clone()
	return nil
}

// GetTask implements store.TaskStore.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return t.Clone(), nil
}

// UpdateTask implements store.TaskStore.
func (s *Store) UpdateTask(ctx context.Context, task *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[task.ID]
	if !ok {
		return store.ErrTaskNotFound
	}
	if current.Version != task.Version {
		return store.ErrTaskConflict
	}
	task.Version++
	s.tasks[task.ID] = task.Clone()
	return nil
}

// ListActiveTasks implements store.TaskStore.
func (s *Store) ListActiveTasks(ctx context.Context) ([]*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	active := make([]*domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !t.Status.IsTerminal() {
			active = append(active, t.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}

// CreateContent implements store.ContentStore.
func (s *Store) CreateContent(ctx context.Context, content *domain.Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contents[content.ID]; exists {
		return store.NewStoreError("content", "create", "content already exists", store.ErrDuplicate)
	}
	s.contents[content.ID] = cloneContent(content)
	return nil
}

// GetContent implements store.ContentStore.
func (s *Store) GetContent(ctx context.Context, id uuid.UUID) (*domain.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contents[id]
	if !ok {
		return nil, store.ErrContentNotFound
	}
	return cloneContent(c), nil
}

// PutAccount adds or replaces an account. Accounts are managed outside the
// service, so this is how they are seeded.
func (s *Store) PutAccount(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if account.ID == uuid.Nil || strings.TrimSpace(account.Platform) == "" || strings.TrimSpace(account.Name) == "" {
		return fmt.Errorf("%w: account needs an ID, platform and name", store.ErrInvalidEntity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := *account
	s.accounts[a.ID] = &a
	return nil
}

// PutAccounts adds or replaces accounts. Nothing is written unless every
// account is valid.
func (s *Store) PutAccounts(ctx context.Context, accounts []*domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, a := range accounts {
		if a.ID == uuid.Nil || strings.TrimSpace(a.Platform) == "" || strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("account %s: %w: account needs an ID, platform and name", a.ID, store.ErrInvalidEntity)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		cp := *a
		s.accounts[cp.ID] = &cp
	}
	return nil
}

// GetAccount implements store.AccountStore.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

// CreateDevice implements store.DeviceStore.
func (s *Store) CreateDevice(ctx context.Context, device *domain.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.devices[device.DeviceID]; exists {
		return store.NewStoreError("device", "create", "device already registered", store.ErrDuplicate)
	}
	d := *device
	s.devices[d.DeviceID] = &d
	return nil
}

// GetDevice implements store.DeviceStore.
func (s *Store) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return nil, store.ErrDeviceNotFound
	}
	cp := *d
	return &cp, nil
}

// UpdateDevice implements store.DeviceStore.
func (s *Store) UpdateDevice(ctx context.Context, device *domain.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[device.DeviceID]; !ok {
		return store.ErrDeviceNotFound
	}
	d := *device
	s.devices[d.DeviceID] = &d
	return nil
}

func cloneContent(c *domain.Content) *domain.Content {
	cp := *c
	cp.Images = append([]string{}, c.Images...)
	cp.Videos = append([]string{}, c.Videos...)
	cp.Tags = append([]string{}, c.Tags...)
	return &cp
}
