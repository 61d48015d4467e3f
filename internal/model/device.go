package model

import (
	"encoding/json"
	"time"
)

type Device struct {
	ID          string           `db:"id" json:"id"`
	DeviceID    string           `db:"device_id" json:"deviceId"`
	Type        DeviceType       `db:"type" json:"type"`
	DisplayName *string          `db:"display_name" json:"displayName,omitempty"`
	Metadata    *json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	LastSeenAt  *time.Time       `db:"last_seen_at" json:"lastSeenAt,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updatedAt"`
}

// SeenWithin reports whether the persisted last-seen timestamp falls inside window.
func (d *Device) SeenWithin(window time.Duration, now time.Time) bool {
	if d == nil || d.LastSeenAt == nil {
		return false
	}
	return now.Sub(*d.LastSeenAt) <= window
}

type RegisterDeviceParams struct {
	DeviceID    string
	Type        DeviceType
	DisplayName *string
	Metadata    *json.RawMessage
}

// DiscoveredDevice is the in-memory presence record for a device seen on the transport.
type DiscoveredDevice struct {
	DeviceID     string           `json:"deviceId"`
	Type         DeviceType       `json:"type"`
	Name         string           `json:"name,omitempty"`
	Metadata     *json.RawMessage `json:"metadata,omitempty"`
	Online       bool             `json:"online"`
	IsRegistered bool             `json:"isRegistered"`
	DiscoveredAt time.Time        `json:"discoveredAt"`
	LastSeen     time.Time        `json:"lastSeen"`
	LastStatus   *DeviceStatus    `json:"lastStatus,omitempty"`
}

// DeviceStatus is the last status report published by a device.
type DeviceStatus struct {
	Status     string    `json:"status,omitempty"`
	PositionMs *int64    `json:"positionMs,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
	JourneyID  *int64    `json:"journeyId,omitempty"`
	ReportedAt time.Time `json:"reportedAt"`
}
