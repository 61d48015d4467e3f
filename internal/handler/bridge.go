package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/fleetsync/orchestrator-go/internal/bridge"
	apperrors "github.com/fleetsync/orchestrator-go/internal/errors"
	"github.com/fleetsync/orchestrator-go/internal/httputil"
	"github.com/fleetsync/orchestrator-go/internal/mqtt"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPongWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// Subscriber is the fan-out side of the bridge broker.
type Subscriber interface {
	Subscribe(filter string) *bridge.Client
	Unsubscribe(client *bridge.Client)
}

// BridgeHandler streams mirrored commands and presence events to clients
// that cannot reach the device bus directly.
type BridgeHandler struct {
	broker    Subscriber
	heartbeat time.Duration
}

func NewBridgeHandler(broker Subscriber, heartbeat time.Duration) *BridgeHandler {
	return &BridgeHandler{broker: broker, heartbeat: heartbeat}
}

func topicFilter(r *http.Request) (string, error) {
	filter := r.URL.Query().Get("topic")
	if filter != "" && !mqtt.ValidPattern(filter) {
		return "", apperrors.InvalidInput("topic", "not a valid topic filter")
	}
	return filter, nil
}

// GET /bridge/events
func (h *BridgeHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	filter, err := topicFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(filter)
	defer h.broker.Unsubscribe(client)

	log.Info().Str("filter", filter).Msg("bridge sse connection established")

	if err := h.sendEvent(w, flusher, "connected", map[string]any{
		"filter":    filter,
		"timestamp": time.Now().UnixMilli(),
	}); err != nil {
		return
	}

	ctx := r.Context()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("filter", filter).Msg("bridge sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("filter", filter).Msg("bridge sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendBridgeEvent(w, flusher, event); err != nil {
				log.Debug().Err(err).Str("filter", filter).Msg("failed to send bridge event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("filter", filter).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *BridgeHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return writeSSE(w, flusher, eventType, jsonData)
}

func (h *BridgeHandler) sendBridgeEvent(w http.ResponseWriter, flusher http.Flusher, event bridge.Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return writeSSE(w, flusher, event.Type, jsonData)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, eventType string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// GET /bridge/ws
func (h *BridgeHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	filter, err := topicFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("bridge websocket upgrade failed")
		return
	}
	defer conn.Close()

	client := h.broker.Subscribe(filter)
	defer h.broker.Unsubscribe(client)

	log.Info().Str("filter", filter).Msg("bridge websocket connection established")

	// The read loop only services control frames; it ends when the peer goes away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.heartbeat)
	defer ping.Stop()

	// This goroutine is the only writer on conn.
	for {
		select {
		case <-closed:
			log.Info().Str("filter", filter).Msg("bridge websocket closed by client")
			return

		case <-client.Done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteTimeout))
			return

		case event := <-client.Events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				log.Debug().Err(err).Str("filter", filter).Msg("bridge websocket write failed")
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
