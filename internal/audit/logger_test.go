package audit

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	original := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = original })
	return &buf
}

func TestLogFromRequest(t *testing.T) {
	buf := captureLog(t)

	req := httptest.NewRequest("POST", "/api/sessions/s1/commands/start", nil)
	req.RemoteAddr = "192.168.0.10:51000"
	req.Header.Set("User-Agent", "operator-console")

	LogFromRequest(req, Event{
		Type:      EventSessionCommand,
		SessionID: "s1",
		Details: map[string]interface{}{
			"cmd":    "start",
			"topics": []string{"sessions/s1/commands/start"},
			"count":  1,
		},
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "operator", entry["audit"])
	assert.Equal(t, "session_command", entry["eventType"])
	assert.Equal(t, "s1", entry["sessionId"])
	assert.Equal(t, "192.168.0.10", entry["ip"])
	assert.Equal(t, "operator-console", entry["userAgent"])
	assert.Equal(t, "start", entry["cmd"])
	assert.Equal(t, []any{"sessions/s1/commands/start"}, entry["topics"])
	assert.NotContains(t, entry, "pairId")
}
