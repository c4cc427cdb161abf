package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/store"
)

// Registry registers and looks up devices.
type Registry struct {
	store  store.DeviceStore
	clock  clock.Clock
	logger *slog.Logger
	locks  *keyedMutex
}

// NewRegistry creates a Registry backed by s.
func NewRegistry(s store.DeviceStore, clk clock.Clock, logger *slog.Logger) (*Registry, error) {
	if s == nil {
		return nil, fmt.Errorf("device store cannot be nil")
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  s,
		clock:  clk,
		logger: logger.With("component", "device_registry"),
		locks:  newKeyedMutex(),
	}, nil
}

// Register records a device. Registering a known device updates its
// platform and push channel and returns the existing record, so repeating
// the same registration is harmless.
func (r *Registry) Register(ctx context.Context, deviceID, platform, pushChannel string) (*domain.Device, error) {
	now := r.clock.Now()
	device, err := domain.NewDevice(deviceID, platform, pushChannel, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	unlock := r.locks.lock(deviceID)
	defer unlock()

	existing, err := r.store.GetDevice(ctx, deviceID)
	switch {
	case err == nil:
		existing.Platform = platform
		existing.PushChannel = pushChannel
		existing.Seen(now)
		if err := r.store.UpdateDevice(ctx, existing); err != nil {
			return nil, fmt.Errorf("updating device %s: %w", deviceID, err)
		}
		r.logger.Debug("device re-registered", "device_id", deviceID)
		return existing, nil
	case !errors.Is(err, store.ErrDeviceNotFound):
		return nil, fmt.Errorf("looking up device %s: %w", deviceID, err)
	}

	if err := r.store.CreateDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("creating device %s: %w", deviceID, err)
	}
	r.logger.Info("device registered",
		"device_id", deviceID,
		"platform", platform)
	return device, nil
}

// Touch refreshes LastSeenAt. Unknown devices are ignored.
func (r *Registry) Touch(ctx context.Context, deviceID string) error {
	unlock := r.locks.lock(deviceID)
	defer unlock()

	device, err := r.store.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrDeviceNotFound) {
			return nil
		}
		return fmt.Errorf("looking up device %s: %w", deviceID, err)
	}
	device.Seen(r.clock.Now())
	if err := r.store.UpdateDevice(ctx, device); err != nil {
		return fmt.Errorf("touching device %s: %w", deviceID, err)
	}
	return nil
}

// Lookup returns the device or store.ErrDeviceNotFound.
func (r *Registry) Lookup(ctx context.Context, deviceID string) (*domain.Device, error) {
	return r.store.GetDevice(ctx, deviceID)
}
