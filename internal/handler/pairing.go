package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fleetsync/orchestrator-go/internal/audit"
	"github.com/fleetsync/orchestrator-go/internal/httputil"
	"github.com/fleetsync/orchestrator-go/internal/model"
	"github.com/fleetsync/orchestrator-go/internal/service"
)

type PairingService interface {
	CreatePair(ctx context.Context, input service.CreatePairInput) (*model.PairStatus, error)
	ListPairs(ctx context.Context, includeInactive bool) ([]model.PairStatus, error)
	GetPair(ctx context.Context, id string) (*model.PairStatus, error)
	UpdatePair(ctx context.Context, id string, input service.UpdatePairInput) (*model.PairStatus, error)
	DeletePair(ctx context.Context, id string) error
	AvailableDevices(ctx context.Context, deviceType string) ([]model.Device, error)
	OnlinePairs(ctx context.Context) ([]model.PairStatus, error)
}

type PairingHandler struct {
	pairs PairingService
}

func NewPairingHandler(pairs PairingService) *PairingHandler {
	return &PairingHandler{pairs: pairs}
}

func (h *PairingHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListPairs)
	r.Post("/", h.CreatePair)
	r.Get("/available-devices", h.AvailableDevices)
	r.Get("/online", h.OnlinePairs)
	r.Get("/{pairId}", h.GetPair)
	r.Put("/{pairId}", h.UpdatePair)
	r.Delete("/{pairId}", h.DeletePair)

	return r
}

// GET /api/pairs
func (h *PairingHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("includeInactive"))

	pairs, err := h.pairs.ListPairs(r.Context(), includeInactive)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, pairs)
}

// POST /api/pairs
func (h *PairingHandler) CreatePair(w http.ResponseWriter, r *http.Request) {
	var input service.CreatePairInput
	if err := decodeJSON(r, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	pair, err := h.pairs.CreatePair(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:   audit.EventPairCreate,
		PairID: pair.ID,
		Details: map[string]interface{}{
			"vrDeviceId":    pair.VRDeviceID,
			"chairDeviceId": pair.ChairDeviceID,
		},
	})

	httputil.WriteData(w, http.StatusCreated, pair)
}

// GET /api/pairs/available-devices
func (h *PairingHandler) AvailableDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.pairs.AvailableDevices(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, devices)
}

// GET /api/pairs/online
func (h *PairingHandler) OnlinePairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.pairs.OnlinePairs(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, pairs)
}

// GET /api/pairs/{pairId}
func (h *PairingHandler) GetPair(w http.ResponseWriter, r *http.Request) {
	pairID, err := idParam(r, "pairId", "Pair")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	pair, err := h.pairs.GetPair(r.Context(), pairID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, pair)
}

// PUT /api/pairs/{pairId}
func (h *PairingHandler) UpdatePair(w http.ResponseWriter, r *http.Request) {
	pairID, err := idParam(r, "pairId", "Pair")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var input service.UpdatePairInput
	if err := decodeJSON(r, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	pair, err := h.pairs.UpdatePair(r.Context(), pairID, input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventPairUpdate, PairID: pairID})
	httputil.WriteData(w, http.StatusOK, pair)
}

// DELETE /api/pairs/{pairId}
func (h *PairingHandler) DeletePair(w http.ResponseWriter, r *http.Request) {
	pairID, err := idParam(r, "pairId", "Pair")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.pairs.DeletePair(r.Context(), pairID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventPairDelete, PairID: pairID})
	httputil.WriteData(w, http.StatusOK, map[string]string{"id": pairID})
}
