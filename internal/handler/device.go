package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetsync/orchestrator-go/internal/audit"
	"github.com/fleetsync/orchestrator-go/internal/httputil"
	"github.com/fleetsync/orchestrator-go/internal/model"
)

type DeviceService interface {
	RequestDeviceScan(ctx context.Context) (string, error)
	SendDeviceCommand(ctx context.Context, deviceID, cmd string, payload map[string]any) (string, error)
	DiscoveredDevices() []model.DiscoveredDevice
	IsDeviceOnline(deviceID string) bool
}

type DeviceHandler struct {
	devices DeviceService
	limit   func(http.Handler) http.Handler
}

// NewDeviceHandler wires device routes; limit guards the scan and command
// endpoints and may be nil.
func NewDeviceHandler(devices DeviceService, limit func(http.Handler) http.Handler) *DeviceHandler {
	if limit == nil {
		limit = passthrough
	}
	return &DeviceHandler{devices: devices, limit: limit}
}

func (h *DeviceHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListDevices)
	r.Get("/{deviceId}/online", h.GetOnline)
	r.With(h.limit).Post("/scan", h.Scan)
	r.With(h.limit).Post("/{deviceId}/commands/{cmd}", h.SendCommand)

	return r
}

// GET /api/devices
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.devices.DiscoveredDevices())
}

// GET /api/devices/{deviceId}/online
func (h *DeviceHandler) GetOnline(w http.ResponseWriter, r *http.Request) {
	deviceID := pathParam(r, "deviceId")
	httputil.WriteData(w, http.StatusOK, map[string]any{
		"deviceId": deviceID,
		"online":   h.devices.IsDeviceOnline(deviceID),
	})
}

// POST /api/devices/scan
func (h *DeviceHandler) Scan(w http.ResponseWriter, r *http.Request) {
	requestID, err := h.devices.RequestDeviceScan(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventDeviceScan,
		Details: map[string]interface{}{"requestId": requestID},
	})

	httputil.WriteData(w, http.StatusAccepted, map[string]string{"requestId": requestID})
}

// POST /api/devices/{deviceId}/commands/{cmd}
func (h *DeviceHandler) SendCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := pathParam(r, "deviceId")
	cmd := chi.URLParam(r, "cmd")

	var payload map[string]any
	if err := decodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, err)
		return
	}

	requestID, err := h.devices.SendDeviceCommand(r.Context(), deviceID, cmd, payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventDeviceCommand,
		DeviceID: deviceID,
		Details:  map[string]interface{}{"cmd": cmd, "requestId": requestID},
	})

	httputil.WriteData(w, http.StatusAccepted, map[string]string{"requestId": requestID})
}

func passthrough(next http.Handler) http.Handler {
	return next
}
