package service

import (
	"fmt"
	"time"

	apperrors "github.com/fleetsync/orchestrator-go/internal/errors"
	"github.com/fleetsync/orchestrator-go/internal/model"
)

// validateCommand checks an operator command name and its required fields.
func validateCommand(cmd string, args model.CommandArgs) (model.CommandName, error) {
	name := model.CommandName(cmd)
	if !name.Known() {
		return "", apperrors.UnknownCommand(cmd)
	}
	if name.Lifecycle() {
		return "", apperrors.ValidationError(fmt.Sprintf("%s is sent by session membership changes", cmd))
	}

	if args.PositionMs != nil && *args.PositionMs < 0 {
		return "", apperrors.InvalidInput("positionMs", "must not be negative")
	}
	if args.DurationMs != nil && *args.DurationMs < 0 {
		return "", apperrors.InvalidInput("durationMs", "must not be negative")
	}

	switch name {
	case model.CommandSeek:
		if args.PositionMs == nil {
			return "", apperrors.MissingRequired("positionMs")
		}
	case model.CommandSelectJourney:
		if args.JourneyID == nil {
			return "", apperrors.MissingRequired("journeyId")
		}
	}
	return name, nil
}

// checkTransition rejects commands the session's current state cannot accept.
func checkTransition(session *model.Session, cmd model.CommandName) error {
	if session.Status == model.SessionStatusStopped {
		return apperrors.InvalidState("Session is stopped")
	}
	if cmd == model.CommandPause && session.Status == model.SessionStatusReady {
		return apperrors.InvalidState("Session has not started")
	}
	return nil
}

// nextState returns the persisted state after cmd is applied.
func nextState(session *model.Session, cmd model.CommandName, args model.CommandArgs) model.UpdateSessionStateParams {
	params := model.UpdateSessionStateParams{
		Status:        session.Status,
		OverallStatus: session.OverallStatus,
		LastCommand:   string(cmd),
	}

	switch cmd {
	case model.CommandStart:
		params.Status = model.SessionStatusRunning
		params.LastPositionMs = args.PositionMs
	case model.CommandPause:
		params.Status = model.SessionStatusPaused
		params.LastPositionMs = args.PositionMs
	case model.CommandSeek:
		params.LastPositionMs = args.PositionMs
	case model.CommandStop:
		params.Status = model.SessionStatusStopped
		params.OverallStatus = model.OverallStatusCompleted
	}
	return params
}

// buildPayload stamps a command with its schedule and the fields it carries.
func buildPayload(cmd model.CommandName, args model.CommandArgs, requestID string, now time.Time, lead time.Duration) model.CommandPayload {
	nowMs := now.UnixMilli()
	payload := model.CommandPayload{
		Cmd:       cmd,
		RequestID: requestID,
		Timestamp: nowMs,
	}

	if cmd.Scheduled() {
		applyAt := nowMs + lead.Milliseconds()
		payload.ApplyAtMs = &applyAt
	}

	switch cmd {
	case model.CommandStart:
		payload.DurationMs = args.DurationMs
		payload.PositionMs = args.PositionMs
	case model.CommandPause, model.CommandSeek:
		payload.PositionMs = args.PositionMs
	case model.CommandSelectJourney:
		payload.JourneyID = args.JourneyID
		payload.Language = args.Language
	case model.CommandSync:
		payload.ServerTimeMs = &nowMs
	}
	return payload
}
