package postgres

import (
	"context"
	"log/slog"

	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/platform/logger"
	"github.com/phrazzld/postpilot/internal/store"
)

// PostgresDeviceStore implements store.DeviceStore.
type PostgresDeviceStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresDeviceStore creates a device store over a connection or transaction.
func NewPostgresDeviceStore(db store.DBTX, logger *slog.Logger) *PostgresDeviceStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDeviceStore{
		db:     db,
		logger: logger.With(slog.String("component", "device_store")),
	}
}

var _ store.DeviceStore = (*PostgresDeviceStore)(nil)

// CreateDevice implements store.DeviceStore.CreateDevice.
func (s *PostgresDeviceStore) CreateDevice(ctx context.Context, d *domain.Device) error {
	if d.DeviceID == "" {
		return domain.ErrEmptyDeviceID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, platform, push_channel, registered_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5)`,
		d.DeviceID, d.Platform, d.PushChannel, d.RegisteredAt.UTC(), d.LastSeenAt.UTC(),
	)
	if err != nil {
		if !IsUniqueViolation(err) {
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to create device",
				"device_id", d.DeviceID, "error", err)
		}
		return MapError(err)
	}
	return nil
}

// GetDevice implements store.DeviceStore.GetDevice.
func (s *PostgresDeviceStore) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	var d domain.Device
	err := s.db.QueryRowContext(ctx, `
		SELECT device_id, platform, push_channel, registered_at, last_seen_at
		FROM devices WHERE device_id = $1`, deviceID,
	).Scan(&d.DeviceID, &d.Platform, &d.PushChannel, &d.RegisteredAt, &d.LastSeenAt)
	if err != nil {
		return nil, mapNotFound(err, store.ErrDeviceNotFound)
	}
	d.RegisteredAt = d.RegisteredAt.UTC()
	d.LastSeenAt = d.LastSeenAt.UTC()
	return &d, nil
}

// UpdateDevice implements store.DeviceStore.UpdateDevice. LastSeenAt never
// moves backwards.
func (s *PostgresDeviceStore) UpdateDevice(ctx context.Context, d *domain.Device) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE devices SET
			platform = $2,
			push_channel = $3,
			last_seen_at = GREATEST(last_seen_at, $4)
		WHERE device_id = $1`,
		d.DeviceID, d.Platform, d.PushChannel, d.LastSeenAt.UTC(),
	)
	if err != nil {
		return MapError(err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrDeviceNotFound
	}
	return nil
}
