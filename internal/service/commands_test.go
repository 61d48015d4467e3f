package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fleetsync/orchestrator-go/internal/errors"
	"github.com/fleetsync/orchestrator-go/internal/model"
)

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		args     model.CommandArgs
		wantCode apperrors.ErrorCode
	}{
		{"start", "start", model.CommandArgs{}, ""},
		{"sync", "sync", model.CommandArgs{}, ""},
		{"seek with position", "seek", model.CommandArgs{PositionMs: int64Ptr(1000)}, ""},
		{"seek without position", "seek", model.CommandArgs{}, apperrors.ErrCodeMissingRequired},
		{"select_journey without journey", "select_journey", model.CommandArgs{}, apperrors.ErrCodeMissingRequired},
		{"negative position", "pause", model.CommandArgs{PositionMs: int64Ptr(-1)}, apperrors.ErrCodeInvalidInput},
		{"negative duration", "start", model.CommandArgs{DurationMs: int64Ptr(-5)}, apperrors.ErrCodeInvalidInput},
		{"unknown", "rewind", model.CommandArgs{}, apperrors.ErrCodeUnknownCommand},
		{"lifecycle", "join_session", model.CommandArgs{}, apperrors.ErrCodeValidation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			name, err := validateCommand(tc.cmd, tc.args)
			if tc.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, model.CommandName(tc.cmd), name)
				return
			}
			assert.Equal(t, tc.wantCode, apperrors.GetCode(err))
		})
	}
}

func TestCheckTransition(t *testing.T) {
	ready := &model.Session{Status: model.SessionStatusReady}
	running := &model.Session{Status: model.SessionStatusRunning}
	stopped := &model.Session{Status: model.SessionStatusStopped}

	assert.NoError(t, checkTransition(ready, model.CommandStart))
	assert.NoError(t, checkTransition(running, model.CommandPause))
	assert.Error(t, checkTransition(ready, model.CommandPause))
	assert.Error(t, checkTransition(stopped, model.CommandStart))
	assert.Error(t, checkTransition(stopped, model.CommandSync))
}

func TestNextState(t *testing.T) {
	session := &model.Session{
		Status:         model.SessionStatusRunning,
		OverallStatus:  model.OverallStatusOnGoing,
		LastPositionMs: int64Ptr(5000),
	}

	seek := nextState(session, model.CommandSeek, model.CommandArgs{PositionMs: int64Ptr(9000)})
	assert.Equal(t, model.SessionStatusRunning, seek.Status)
	assert.Equal(t, int64(9000), *seek.LastPositionMs)
	assert.Equal(t, "seek", seek.LastCommand)

	sync := nextState(session, model.CommandSync, model.CommandArgs{})
	assert.Equal(t, model.SessionStatusRunning, sync.Status)
	assert.Nil(t, sync.LastPositionMs)

	stop := nextState(session, model.CommandStop, model.CommandArgs{})
	assert.Equal(t, model.SessionStatusStopped, stop.Status)
	assert.Equal(t, model.OverallStatusCompleted, stop.OverallStatus)
}

func TestBuildPayload(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	lead := 300 * time.Millisecond

	t.Run("scheduled commands carry applyAt", func(t *testing.T) {
		for _, cmd := range []model.CommandName{model.CommandStart, model.CommandSeek, model.CommandSelectJourney} {
			p := buildPayload(cmd, model.CommandArgs{}, "req", now, lead)
			require.NotNil(t, p.ApplyAtMs, string(cmd))
			assert.Equal(t, int64(1_700_000_000_300), *p.ApplyAtMs)
		}
	})

	t.Run("immediate commands do not", func(t *testing.T) {
		for _, cmd := range []model.CommandName{model.CommandPause, model.CommandStop, model.CommandSync} {
			p := buildPayload(cmd, model.CommandArgs{}, "req", now, lead)
			assert.Nil(t, p.ApplyAtMs, string(cmd))
		}
	})

	t.Run("sync carries server time", func(t *testing.T) {
		p := buildPayload(model.CommandSync, model.CommandArgs{}, "req", now, lead)
		require.NotNil(t, p.ServerTimeMs)
		assert.Equal(t, now.UnixMilli(), *p.ServerTimeMs)
		assert.Equal(t, now.UnixMilli(), p.Timestamp)
	})

	t.Run("fields follow the command", func(t *testing.T) {
		args := model.CommandArgs{
			PositionMs: int64Ptr(100),
			DurationMs: int64Ptr(200),
			JourneyID:  int64Ptr(3),
			Language:   strPtr("en"),
		}

		start := buildPayload(model.CommandStart, args, "req", now, lead)
		assert.Equal(t, int64(200), *start.DurationMs)
		assert.Nil(t, start.JourneyID)

		journey := buildPayload(model.CommandSelectJourney, args, "req", now, lead)
		assert.Equal(t, int64(3), *journey.JourneyID)
		assert.Equal(t, "en", *journey.Language)
		assert.Nil(t, journey.PositionMs)

		stop := buildPayload(model.CommandStop, args, "req", now, lead)
		assert.Nil(t, stop.PositionMs)
		assert.Equal(t, "req", stop.RequestID)
	})
}
