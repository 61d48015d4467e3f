package model

import (
	"time"

	"github.com/lib/pq"
)

type Session struct {
	ID             string        `db:"id" json:"id"`
	SessionType    SessionType   `db:"session_type" json:"sessionType"`
	Status         SessionStatus `db:"status" json:"status"`
	OverallStatus  OverallStatus `db:"overall_status" json:"overallStatus"`
	JourneyIDs     pq.Int64Array `db:"journey_ids" json:"journeyIds"`
	GroupID        *string       `db:"group_id" json:"groupId,omitempty"`
	LastCommand    *string       `db:"last_command" json:"lastCommand,omitempty"`
	LastPositionMs *int64        `db:"last_position_ms" json:"lastPositionMs,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

type SessionParticipant struct {
	ID               string    `db:"id" json:"id"`
	SessionID        string    `db:"session_id" json:"sessionId"`
	PairID           string    `db:"pair_id" json:"pairId"`
	VRDeviceID       string    `db:"vr_device_id" json:"vrDeviceId"`
	ChairDeviceID    string    `db:"chair_device_id" json:"chairDeviceId"`
	Language         *string   `db:"language" json:"language,omitempty"`
	CurrentJourneyID *int64    `db:"current_journey_id" json:"currentJourneyId,omitempty"`
	JoinedAt         time.Time `db:"joined_at" json:"joinedAt"`
}

// DeviceIDs returns the VR and chair hardware ids bound to the participant.
func (p *SessionParticipant) DeviceIDs() []string {
	return []string{p.VRDeviceID, p.ChairDeviceID}
}

type CreateSessionParams struct {
	SessionType SessionType
	JourneyIDs  []int64
	GroupID     *string
}

type CreateParticipantParams struct {
	PairID           string
	VRDeviceID       string
	ChairDeviceID    string
	Language         *string
	CurrentJourneyID *int64
}

type UpdateSessionStateParams struct {
	Status         SessionStatus
	OverallStatus  OverallStatus
	LastCommand    string
	LastPositionMs *int64
}

// ParticipantStatus is a participant enriched with the online state of its devices.
type ParticipantStatus struct {
	SessionParticipant
	VROnline    bool `json:"vrOnline"`
	ChairOnline bool `json:"chairOnline"`
}

// SessionDetail is a session together with its participants.
type SessionDetail struct {
	Session
	Participants []ParticipantStatus `json:"participants"`
}
