package handler

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsync/orchestrator-go/internal/bridge"
)

func awaitClient(t *testing.T, sub *fakeSubscriber) *bridge.Client {
	t.Helper()
	select {
	case client := <-sub.subscribed:
		return client
	case <-time.After(2 * time.Second):
		t.Fatal("client never subscribed")
		return nil
	}
}

func testEvent(t *testing.T) bridge.Event {
	t.Helper()
	event, err := bridge.NewEvent("command", "devices/VR_#001/commands/start", map[string]any{"cmd": "start"})
	require.NoError(t, err)
	return event
}

func TestBridgeSSE(t *testing.T) {
	sub := newFakeSubscriber()
	h := NewBridgeHandler(sub, time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeSSE))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?topic=devices/%2B/commands/%23")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	client := awaitClient(t, sub)
	assert.Equal(t, "devices/+/commands/#", client.Filter)
	client.Events <- testEvent(t)

	reader := bufio.NewReader(resp.Body)
	readLine := func() string {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		return strings.TrimRight(line, "\n")
	}

	var events []string
	var payload string
	for payload == "" {
		line := readLine()
		if !strings.HasPrefix(line, "event: ") {
			continue
		}
		name := strings.TrimPrefix(line, "event: ")
		events = append(events, name)
		if name == "command" {
			payload = strings.TrimPrefix(readLine(), "data: ")
		}
	}
	assert.Equal(t, []string{"connected", "command"}, events)

	var got bridge.Event
	require.NoError(t, json.Unmarshal([]byte(payload), &got))
	assert.Equal(t, "devices/VR_#001/commands/start", got.Topic)
	assert.JSONEq(t, `{"cmd":"start"}`, string(got.Data))
}

func TestBridgeSSEUnsubscribesOnBrokerClose(t *testing.T) {
	sub := newFakeSubscriber()
	h := NewBridgeHandler(sub, time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeSSE))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	client := awaitClient(t, sub)
	close(client.Done)

	assert.Eventually(t, func() bool { return sub.Unsubscribed() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestBridgeRejectsInvalidFilter(t *testing.T) {
	h := NewBridgeHandler(newFakeSubscriber(), time.Hour)

	for _, serve := range []http.HandlerFunc{h.ServeSSE, h.ServeWS} {
		rec := httptest.NewRecorder()
		serve(rec, httptest.NewRequest(http.MethodGet, "/?topic=devices/%23/status", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestBridgeWebSocket(t *testing.T) {
	sub := newFakeSubscriber()
	h := NewBridgeHandler(sub, time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?topic=devices/%2B/status"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	client := awaitClient(t, sub)
	assert.Equal(t, "devices/+/status", client.Filter)
	client.Events <- testEvent(t)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got bridge.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "command", got.Type)
	assert.Equal(t, "devices/VR_#001/commands/start", got.Topic)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return sub.Unsubscribed() == 1 }, 2*time.Second, 10*time.Millisecond)
}
