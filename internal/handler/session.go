package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetsync/orchestrator-go/internal/audit"
	apperrors "github.com/fleetsync/orchestrator-go/internal/errors"
	"github.com/fleetsync/orchestrator-go/internal/httputil"
	"github.com/fleetsync/orchestrator-go/internal/model"
	"github.com/fleetsync/orchestrator-go/internal/service"
)

type SessionService interface {
	CreateSession(ctx context.Context, input service.CreateSessionInput) (*model.SessionDetail, error)
	GetSession(ctx context.Context, id string) (*model.SessionDetail, error)
	ListSessions(ctx context.Context, overallStatus string) ([]model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	AddParticipant(ctx context.Context, sessionID string, input service.AddParticipantInput) (*model.ParticipantStatus, error)
	RemoveParticipant(ctx context.Context, sessionID, participantID string) error
	SendSessionCommand(ctx context.Context, sessionID, cmd string, args model.CommandArgs) (*model.CommandResult, error)
	SendParticipantCommand(ctx context.Context, sessionID, participantID, cmd string, args model.CommandArgs) (*model.CommandResult, error)
}

type SessionHandler struct {
	sessions SessionService
	limit    func(http.Handler) http.Handler
}

// NewSessionHandler wires session routes; limit guards the command endpoints and may be nil.
func NewSessionHandler(sessions SessionService, limit func(http.Handler) http.Handler) *SessionHandler {
	if limit == nil {
		limit = passthrough
	}
	return &SessionHandler{sessions: sessions, limit: limit}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListSessions)
	r.Post("/", h.CreateSession)
	r.Route("/{sessionId}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.With(h.limit).Post("/commands/{cmd}", h.SendSessionCommand)
		r.Post("/participants", h.AddParticipant)
		r.Delete("/participants/{participantId}", h.RemoveParticipant)
		r.With(h.limit).Post("/participants/{participantId}/commands/{cmd}", h.SendParticipantCommand)
	})

	return r
}

// GET /api/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListSessions(r.Context(), r.URL.Query().Get("overallStatus"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, sessions)
}

// POST /api/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var input service.CreateSessionInput
	if err := decodeJSON(r, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}
	for _, pairID := range input.PairIDs {
		if !isValidID(pairID) {
			httputil.WriteError(w, apperrors.NotFound(fmt.Sprintf("Pair %s", pairID)))
			return
		}
	}

	session, err := h.sessions.CreateSession(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionCreate,
		SessionID: session.ID,
		Details: map[string]interface{}{
			"sessionType":  string(session.SessionType),
			"participants": len(session.Participants),
		},
	})

	httputil.WriteData(w, http.StatusCreated, session)
}

// GET /api/sessions/{sessionId}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "sessionId", "Session")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, session)
}

// DELETE /api/sessions/{sessionId}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "sessionId", "Session")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.sessions.DeleteSession(r.Context(), sessionID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventSessionDelete, SessionID: sessionID})
	httputil.WriteData(w, http.StatusOK, map[string]string{"id": sessionID})
}

// POST /api/sessions/{sessionId}/commands/{cmd}
func (h *SessionHandler) SendSessionCommand(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "sessionId", "Session")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cmd := chi.URLParam(r, "cmd")

	var args model.CommandArgs
	if err := decodeJSON(r, &args); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.sessions.SendSessionCommand(r.Context(), sessionID, cmd, args)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.auditCommand(r, sessionID, "", result)
	httputil.WriteData(w, http.StatusAccepted, result)
}

// POST /api/sessions/{sessionId}/participants
func (h *SessionHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "sessionId", "Session")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var input service.AddParticipantInput
	if err := decodeJSON(r, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if input.PairID != "" && !isValidID(input.PairID) {
		httputil.WriteError(w, apperrors.NotFound(fmt.Sprintf("Pair %s", input.PairID)))
		return
	}

	participant, err := h.sessions.AddParticipant(r.Context(), sessionID, input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventParticipantAdd,
		SessionID: sessionID,
		PairID:    participant.PairID,
		Details:   map[string]interface{}{"participantId": participant.ID},
	})

	httputil.WriteData(w, http.StatusCreated, participant)
}

// DELETE /api/sessions/{sessionId}/participants/{participantId}
func (h *SessionHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	sessionID, participantID, err := participantParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.sessions.RemoveParticipant(r.Context(), sessionID, participantID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventParticipantRemove,
		SessionID: sessionID,
		Details:   map[string]interface{}{"participantId": participantID},
	})

	httputil.WriteData(w, http.StatusOK, map[string]string{"id": participantID})
}

// POST /api/sessions/{sessionId}/participants/{participantId}/commands/{cmd}
func (h *SessionHandler) SendParticipantCommand(w http.ResponseWriter, r *http.Request) {
	sessionID, participantID, err := participantParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cmd := chi.URLParam(r, "cmd")

	var args model.CommandArgs
	if err := decodeJSON(r, &args); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.sessions.SendParticipantCommand(r.Context(), sessionID, participantID, cmd, args)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.auditCommand(r, sessionID, participantID, result)
	httputil.WriteData(w, http.StatusAccepted, result)
}

func participantParams(r *http.Request) (string, string, error) {
	sessionID, err := idParam(r, "sessionId", "Session")
	if err != nil {
		return "", "", err
	}
	participantID, err := idParam(r, "participantId", "Participant")
	if err != nil {
		return "", "", err
	}
	return sessionID, participantID, nil
}

func (h *SessionHandler) auditCommand(r *http.Request, sessionID, participantID string, result *model.CommandResult) {
	details := map[string]interface{}{
		"cmd":       string(result.Cmd),
		"requestId": result.RequestID,
		"topics":    len(result.Topics),
	}
	if participantID != "" {
		details["participantId"] = participantID
	}
	if len(result.FailedTopics) > 0 {
		details["failedTopics"] = result.FailedTopics
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionCommand,
		SessionID: sessionID,
		Details:   details,
	})
}
