package presence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fleetsync/orchestrator-go/internal/model"
)

var (
	ErrMissingDeviceID = errors.New("deviceId is required")
	ErrInvalidType     = errors.New("type must be vr or chair")
)

// AnnounceMessage is published retained on devices/discovery/announce.
type AnnounceMessage struct {
	DeviceID  string           `json:"deviceId"`
	Type      model.DeviceType `json:"type"`
	Name      string           `json:"name,omitempty"`
	Metadata  *json.RawMessage `json:"metadata,omitempty"`
	Timestamp *int64           `json:"timestamp,omitempty"`
}

func (m *AnnounceMessage) Validate() error {
	if m.DeviceID == "" {
		return ErrMissingDeviceID
	}
	if !m.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

// HeartbeatMessage is published on devices/{id}/heartbeat; the topic carries the id.
type HeartbeatMessage struct {
	Type      model.DeviceType `json:"type,omitempty"`
	Timestamp *int64           `json:"timestamp,omitempty"`
}

// StatusMessage is published retained on devices/{id}/status. Firmware reports
// the journey as either journeyId or currentJourneyId.
type StatusMessage struct {
	Type             model.DeviceType `json:"type,omitempty"`
	Status           string           `json:"status,omitempty"`
	PositionMs       *int64           `json:"positionMs,omitempty"`
	SessionID        string           `json:"sessionId,omitempty"`
	JourneyID        *int64           `json:"journeyId,omitempty"`
	CurrentJourneyID *int64           `json:"currentJourneyId,omitempty"`
	Timestamp        *int64           `json:"timestamp,omitempty"`
}

// Journey returns the reported journey, preferring journeyId.
func (m *StatusMessage) Journey() *int64 {
	if m.JourneyID != nil {
		return m.JourneyID
	}
	return m.CurrentJourneyID
}

func parseAnnounce(payload []byte) (*AnnounceMessage, error) {
	var msg AnnounceMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode announce: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// decodeOptional accepts an empty payload as an empty object.
func decodeOptional(payload []byte, dest any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	return json.Unmarshal(payload, dest)
}

func parseHeartbeat(payload []byte) (*HeartbeatMessage, error) {
	var msg HeartbeatMessage
	if err := decodeOptional(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode heartbeat: %w", err)
	}
	return &msg, nil
}

func parseStatus(payload []byte) (*StatusMessage, error) {
	var msg StatusMessage
	if err := decodeOptional(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &msg, nil
}
