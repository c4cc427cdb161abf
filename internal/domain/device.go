package domain

import (
	"strings"
	"time"
)

// Device is a registered mobile client that can issue commands and receive
// pushed task results.
type Device struct {
	DeviceID     string    `json:"device_id"`
	Platform     string    `json:"platform"`
	PushChannel  string    `json:"push_channel,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// NewDevice creates a device registered at now.
func NewDevice(deviceID, platform, pushChannel string, now time.Time) (*Device, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, ErrEmptyDeviceID
	}
	now = now.UTC()
	return &Device{
		DeviceID:     deviceID,
		Platform:     platform,
		PushChannel:  pushChannel,
		RegisteredAt: now,
		LastSeenAt:   now,
	}, nil
}

// Seen moves LastSeenAt forward to now.
func (d *Device) Seen(now time.Time) {
	now = now.UTC()
	if now.After(d.LastSeenAt) {
		d.LastSeenAt = now
	}
}
