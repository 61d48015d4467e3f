package model

type CommandName string

const (
	CommandStart         CommandName = "start"
	CommandPause         CommandName = "pause"
	CommandStop          CommandName = "stop"
	CommandSeek          CommandName = "seek"
	CommandSync          CommandName = "sync"
	CommandSelectJourney CommandName = "select_journey"
	CommandJoinSession   CommandName = "join_session"
	CommandLeaveSession  CommandName = "leave_session"
)

var knownCommands = map[CommandName]bool{
	CommandStart:         true,
	CommandPause:         true,
	CommandStop:          true,
	CommandSeek:          true,
	CommandSync:          true,
	CommandSelectJourney: true,
	CommandJoinSession:   true,
	CommandLeaveSession:  true,
}

// Known reports whether c is part of the device command vocabulary.
func (c CommandName) Known() bool {
	return knownCommands[c]
}

// Lifecycle reports whether c is emitted by session membership changes rather than by operators.
func (c CommandName) Lifecycle() bool {
	return c == CommandJoinSession || c == CommandLeaveSession
}

// Scheduled reports whether c carries an applyAtMs lead time.
func (c CommandName) Scheduled() bool {
	return c == CommandStart || c == CommandSeek || c == CommandSelectJourney
}

// CommandArgs are the operator-supplied fields of a session command.
type CommandArgs struct {
	PositionMs *int64  `json:"positionMs,omitempty"`
	DurationMs *int64  `json:"durationMs,omitempty"`
	JourneyID  *int64  `json:"journeyId,omitempty"`
	Language   *string `json:"language,omitempty"`
}

// CommandPayload is the message body published to devices.
type CommandPayload struct {
	Cmd           CommandName `json:"cmd"`
	SessionID     string      `json:"sessionId,omitempty"`
	ParticipantID string      `json:"participantId,omitempty"`
	RequestID     string      `json:"requestId"`
	Timestamp     int64       `json:"timestamp"`
	ApplyAtMs     *int64      `json:"applyAtMs,omitempty"`
	ServerTimeMs  *int64      `json:"serverTimeMs,omitempty"`
	PositionMs    *int64      `json:"positionMs,omitempty"`
	DurationMs    *int64      `json:"durationMs,omitempty"`
	JourneyID     *int64      `json:"journeyId,omitempty"`
	Language      *string     `json:"language,omitempty"`
}

// CommandResult reports what was published for one operator command.
type CommandResult struct {
	RequestID      string      `json:"requestId"`
	Cmd            CommandName `json:"cmd"`
	Topics         []string    `json:"topics"`
	FailedTopics   []string    `json:"failedTopics,omitempty"`
	ApplyAtMs      *int64      `json:"applyAtMs,omitempty"`
	ServerTimeMs   *int64      `json:"serverTimeMs,omitempty"`
	OfflineDevices []string    `json:"offlineDevices,omitempty"`
}
