package model

import (
	"time"
)

type DevicePair struct {
	ID            string    `db:"id" json:"id"`
	PairName      string    `db:"pair_name" json:"pairName"`
	VRDeviceID    string    `db:"vr_device_id" json:"vrDeviceId"`
	ChairDeviceID string    `db:"chair_device_id" json:"chairDeviceId"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
	IsActive      bool      `db:"is_active" json:"isActive"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// References reports whether the pair includes deviceID in either role.
func (p *DevicePair) References(deviceID string) bool {
	return p.VRDeviceID == deviceID || p.ChairDeviceID == deviceID
}

type CreatePairParams struct {
	PairName      string
	VRDeviceID    string
	ChairDeviceID string
	Notes         *string
}

type UpdatePairParams struct {
	PairName      *string
	VRDeviceID    *string
	ChairDeviceID *string
	Notes         *string
	IsActive      *bool
}

// PairStatus is a pair enriched with its members and their online state.
type PairStatus struct {
	DevicePair
	VRDevice    *Device `json:"vrDevice,omitempty"`
	ChairDevice *Device `json:"chairDevice,omitempty"`
	VROnline    bool    `json:"vrOnline"`
	ChairOnline bool    `json:"chairOnline"`
	BothOnline  bool    `json:"bothOnline"`
}
