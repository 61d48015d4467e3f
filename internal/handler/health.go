package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/fleetsync/orchestrator-go/internal/config"
	"github.com/fleetsync/orchestrator-go/internal/httputil"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type ConnectionChecker interface {
	IsConnected() bool
}

type OnlineCounter interface {
	OnlineCount() int
}

type HealthHandler struct {
	db       Pinger
	broker   ConnectionChecker
	presence OnlineCounter
}

func NewHealthHandler(db Pinger, broker ConnectionChecker, presence OnlineCounter) *HealthHandler {
	return &HealthHandler{db: db, broker: broker, presence: presence}
}

// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
	defer cancel()

	dbOK := h.db.PingContext(ctx) == nil
	mqttOK := h.broker.IsConnected()

	status, code := "ok", http.StatusOK
	if !dbOK || !mqttOK {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	httputil.WriteJSON(w, code, map[string]any{
		"status":        status,
		"database":      dbOK,
		"mqtt":          mqttOK,
		"devicesOnline": h.presence.OnlineCount(),
		"timestamp":     time.Now().UnixMilli(),
	})
}
