package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/fleetsync/orchestrator-go/internal/errors"
	"github.com/fleetsync/orchestrator-go/internal/metrics"
	"github.com/fleetsync/orchestrator-go/internal/model"
	"github.com/fleetsync/orchestrator-go/internal/mqtt"
	"github.com/fleetsync/orchestrator-go/internal/repository"
)

type CreateSessionInput struct {
	SessionType model.SessionType `json:"sessionType"`
	JourneyIDs  []int64           `json:"journeyIds"`
	PairIDs     []string          `json:"pairIds"`
	GroupID     *string           `json:"groupId,omitempty"`
	Language    *string           `json:"language,omitempty"`
}

type AddParticipantInput struct {
	PairID    string  `json:"pairId"`
	Language  *string `json:"language,omitempty"`
	JourneyID *int64  `json:"journeyId,omitempty"`
}

// outbound is one command publish and the devices it addresses.
type outbound struct {
	topic   string
	payload model.CommandPayload
}

type SessionService struct {
	sessionRepo repository.SessionRepository
	pairRepo    repository.PairRepository
	publisher   Publisher
	events      EventPublisher
	online      OnlineChecker
	lead        time.Duration
	now         func() time.Time
}

func NewSessionService(
	sessionRepo repository.SessionRepository,
	pairRepo repository.PairRepository,
	publisher Publisher,
	events EventPublisher,
	online OnlineChecker,
	lead time.Duration,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		pairRepo:    pairRepo,
		publisher:   publisher,
		events:      events,
		online:      online,
		lead:        lead,
		now:         time.Now,
	}
}

func (s *SessionService) CreateSession(ctx context.Context, input CreateSessionInput) (*model.SessionDetail, error) {
	if !input.SessionType.Valid() {
		return nil, apperrors.InvalidInput("sessionType", "must be individual or group")
	}
	if len(input.PairIDs) == 0 {
		return nil, apperrors.MissingRequired("pairIds")
	}

	pairs, err := s.resolvePairs(ctx, input.PairIDs)
	if err != nil {
		return nil, err
	}

	groupID := input.GroupID
	if input.SessionType == model.SessionTypeGroup && (groupID == nil || strings.TrimSpace(*groupID) == "") {
		generated := generateGroupID(s.now())
		groupID = &generated
	}

	var initialJourney *int64
	if input.SessionType == model.SessionTypeIndividual && len(input.JourneyIDs) > 0 {
		first := input.JourneyIDs[0]
		initialJourney = &first
	}

	participants := make([]model.CreateParticipantParams, 0, len(pairs))
	for _, p := range pairs {
		participants = append(participants, model.CreateParticipantParams{
			PairID:           p.ID,
			VRDeviceID:       p.VRDeviceID,
			ChairDeviceID:    p.ChairDeviceID,
			Language:         input.Language,
			CurrentJourneyID: initialJourney,
		})
	}

	journeyIDs := input.JourneyIDs
	if journeyIDs == nil {
		journeyIDs = []int64{}
	}

	session, created, err := s.sessionRepo.CreateWithParticipants(ctx, model.CreateSessionParams{
		SessionType: input.SessionType,
		JourneyIDs:  journeyIDs,
		GroupID:     groupID,
	}, participants)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	for i := range created {
		s.emitMembership(ctx, session, &created[i], model.CommandJoinSession)
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("sessionType", string(session.SessionType)).
		Int("participants", len(created)).
		Msg("session created")

	return s.detail(ctx, session, created), nil
}

func (s *SessionService) GetSession(ctx context.Context, id string) (*model.SessionDetail, error) {
	session, err := s.findSession(ctx, id)
	if err != nil {
		return nil, err
	}

	participants, err := s.sessionRepo.ListParticipants(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return s.detail(ctx, session, participants), nil
}

func (s *SessionService) ListSessions(ctx context.Context, overallStatus string) ([]model.Session, error) {
	var filter *model.OverallStatus
	if overallStatus != "" {
		status := model.OverallStatus(overallStatus)
		if !status.Valid() {
			return nil, apperrors.InvalidInput("overallStatus", "must be on_going or completed")
		}
		filter = &status
	}

	sessions, err := s.sessionRepo.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return sessions, nil
}

// DeleteSession tells every participant's devices to leave, then deletes the session.
func (s *SessionService) DeleteSession(ctx context.Context, id string) error {
	session, err := s.findSession(ctx, id)
	if err != nil {
		return err
	}

	participants, err := s.sessionRepo.ListParticipants(ctx, id)
	if err != nil {
		return apperrors.Database(err)
	}

	for i := range participants {
		s.emitMembership(ctx, session, &participants[i], model.CommandLeaveSession)
	}

	deleted, err := s.sessionRepo.Delete(ctx, id)
	if err != nil {
		return apperrors.Database(err)
	}
	if !deleted {
		return apperrors.NotFound("Session")
	}

	log.Info().Str("sessionId", id).Int("participants", len(participants)).Msg("session deleted")
	return nil
}

func (s *SessionService) AddParticipant(ctx context.Context, sessionID string, input AddParticipantInput) (*model.ParticipantStatus, error) {
	if input.PairID == "" {
		return nil, apperrors.MissingRequired("pairId")
	}

	session, err := s.findSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionStatusStopped {
		return nil, apperrors.InvalidState("Session is stopped")
	}

	pairs, err := s.resolvePairs(ctx, []string{input.PairID})
	if err != nil {
		return nil, err
	}
	pair := pairs[0]

	existing, err := s.sessionRepo.FindParticipantByPair(ctx, sessionID, pair.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if existing != nil {
		return nil, apperrors.AlreadyExists("Participant")
	}

	journeyID := input.JourneyID
	if journeyID == nil && session.SessionType == model.SessionTypeIndividual && len(session.JourneyIDs) > 0 {
		first := session.JourneyIDs[0]
		journeyID = &first
	}

	participant, err := s.sessionRepo.AddParticipant(ctx, sessionID, model.CreateParticipantParams{
		PairID:           pair.ID,
		VRDeviceID:       pair.VRDeviceID,
		ChairDeviceID:    pair.ChairDeviceID,
		Language:         input.Language,
		CurrentJourneyID: journeyID,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	s.emitMembership(ctx, session, participant, model.CommandJoinSession)

	log.Info().
		Str("sessionId", sessionID).
		Str("participantId", participant.ID).
		Str("pairId", pair.ID).
		Msg("participant added")

	detail := s.detail(ctx, session, []model.SessionParticipant{*participant})
	return &detail.Participants[0], nil
}

// RemoveParticipant emits leave_session to both bound devices and removes the participant.
func (s *SessionService) RemoveParticipant(ctx context.Context, sessionID, participantID string) error {
	session, err := s.findSession(ctx, sessionID)
	if err != nil {
		return err
	}

	participant, err := s.sessionRepo.FindParticipant(ctx, sessionID, participantID)
	if err != nil {
		return apperrors.Database(err)
	}
	if participant == nil {
		return apperrors.NotFound("Participant")
	}

	s.emitMembership(ctx, session, participant, model.CommandLeaveSession)

	removed, err := s.sessionRepo.RemoveParticipant(ctx, sessionID, participantID)
	if err != nil {
		return apperrors.Database(err)
	}
	if !removed {
		return apperrors.NotFound("Participant")
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("participantId", participantID).
		Msg("participant removed")
	return nil
}

// SendSessionCommand addresses the whole session: one session topic in group
// mode, every participant plus its two devices in individual mode.
func (s *SessionService) SendSessionCommand(ctx context.Context, sessionID, cmd string, args model.CommandArgs) (*model.CommandResult, error) {
	name, err := validateCommand(cmd, args)
	if err != nil {
		return nil, err
	}

	session, err := s.findSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(session, name); err != nil {
		return nil, err
	}

	participants, err := s.sessionRepo.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	requestID := uuid.NewString()
	base := buildPayload(name, args, requestID, s.now(), s.lead)
	base.SessionID = sessionID

	var messages []outbound
	if session.SessionType == model.SessionTypeGroup {
		messages = append(messages, outbound{
			topic:   mqtt.SessionCommandTopic(sessionID, cmd),
			payload: base,
		})
	} else {
		for i := range participants {
			messages = append(messages, participantMessages(base, &participants[i])...)
		}
	}

	result, err := s.dispatch(ctx, requestID, base, messages, participants)
	if err != nil {
		return nil, err
	}
	metrics.RecordSessionCommand(cmd, "session")

	if err := s.sessionRepo.UpdateState(ctx, sessionID, nextState(session, name, args)); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Str("cmd", cmd).Msg("command sent but session state not persisted")
	}
	if name == model.CommandSelectJourney {
		for i := range participants {
			s.persistJourney(ctx, &participants[i], args)
		}
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("sessionType", string(session.SessionType)).
		Str("cmd", cmd).
		Str("requestId", requestID).
		Int("topics", len(result.Topics)).
		Msg("session command sent")

	return result, nil
}

// SendParticipantCommand addresses one participant of an individual session
// and mirrors the command to its two devices.
func (s *SessionService) SendParticipantCommand(ctx context.Context, sessionID, participantID, cmd string, args model.CommandArgs) (*model.CommandResult, error) {
	name, err := validateCommand(cmd, args)
	if err != nil {
		return nil, err
	}

	session, err := s.findSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	participant, err := s.sessionRepo.FindParticipant(ctx, sessionID, participantID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if participant == nil {
		return nil, apperrors.NotFound("Participant")
	}

	if session.SessionType != model.SessionTypeIndividual {
		return nil, apperrors.ValidationError("Participant commands require an individual session")
	}
	if session.Status == model.SessionStatusStopped {
		return nil, apperrors.InvalidState("Session is stopped")
	}

	requestID := uuid.NewString()
	base := buildPayload(name, args, requestID, s.now(), s.lead)
	base.SessionID = sessionID

	result, err := s.dispatch(ctx, requestID, base, participantMessages(base, participant), []model.SessionParticipant{*participant})
	if err != nil {
		return nil, err
	}
	metrics.RecordSessionCommand(cmd, "participant")

	if name == model.CommandSelectJourney {
		s.persistJourney(ctx, participant, args)
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("participantId", participantID).
		Str("cmd", cmd).
		Str("requestId", requestID).
		Msg("participant command sent")

	return result, nil
}

// participantMessages addresses the participant topic and both device mirrors.
func participantMessages(base model.CommandPayload, p *model.SessionParticipant) []outbound {
	payload := base
	payload.ParticipantID = p.ID
	cmd := string(base.Cmd)

	return []outbound{
		{topic: mqtt.ParticipantCommandTopic(p.SessionID, p.ID, cmd), payload: payload},
		{topic: mqtt.DeviceCommandTopic(p.VRDeviceID, cmd), payload: payload},
		{topic: mqtt.DeviceCommandTopic(p.ChairDeviceID, cmd), payload: payload},
	}
}

// dispatch publishes every message, mirrors each to the bridge and reports
// offline devices. It fails only when a message reached neither the broker
// nor the bridge.
func (s *SessionService) dispatch(ctx context.Context, requestID string, base model.CommandPayload, messages []outbound, participants []model.SessionParticipant) (*model.CommandResult, error) {
	result := &model.CommandResult{
		RequestID:    requestID,
		Cmd:          base.Cmd,
		Topics:       []string{},
		ApplyAtMs:    base.ApplyAtMs,
		ServerTimeMs: base.ServerTimeMs,
	}

	var lastErr error
	delivered := 0
	for _, m := range messages {
		err := s.publisher.Publish(ctx, m.topic, m.payload, mqtt.PublishOptions{QoS: mqtt.QoSAtLeastOnce})
		if err != nil {
			result.FailedTopics = append(result.FailedTopics, m.topic)
			lastErr = err
		} else {
			result.Topics = append(result.Topics, m.topic)
		}
		if mirror(ctx, s.events, m.topic, m.payload) || err == nil {
			delivered++
		}
	}

	if len(messages) > 0 && delivered == 0 {
		return nil, apperrors.Transport(lastErr)
	}

	result.OfflineDevices = s.offlineDevices(ctx, participants)
	if len(result.OfflineDevices) > 0 {
		log.Warn().
			Str("requestId", requestID).
			Str("cmd", string(base.Cmd)).
			Strs("offlineDevices", result.OfflineDevices).
			Msg("command sent with offline devices")
	}
	return result, nil
}

func (s *SessionService) offlineDevices(ctx context.Context, participants []model.SessionParticipant) []string {
	if s.online == nil || len(participants) == 0 {
		return nil
	}

	ids := make([]string, 0, len(participants)*2)
	for i := range participants {
		ids = append(ids, participants[i].DeviceIDs()...)
	}

	status, err := s.online.DevicesOnline(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Msg("failed to resolve device online status")
	}

	var offline []string
	for _, id := range ids {
		if !status[id] {
			offline = append(offline, id)
		}
	}
	return offline
}

func (s *SessionService) persistJourney(ctx context.Context, p *model.SessionParticipant, args model.CommandArgs) {
	if args.JourneyID == nil {
		return
	}
	if err := s.sessionRepo.UpdateParticipantJourney(ctx, p.ID, *args.JourneyID, args.Language); err != nil {
		log.Warn().
			Err(err).
			Str("participantId", p.ID).
			Int64("journeyId", *args.JourneyID).
			Msg("journey selected but not persisted")
	}
}

// emitMembership sends join_session or leave_session to both devices of a participant.
func (s *SessionService) emitMembership(ctx context.Context, session *model.Session, p *model.SessionParticipant, cmd model.CommandName) {
	payload := model.CommandPayload{
		Cmd:           cmd,
		SessionID:     session.ID,
		ParticipantID: p.ID,
		RequestID:     uuid.NewString(),
		Timestamp:     s.now().UnixMilli(),
	}
	if cmd == model.CommandJoinSession {
		payload.JourneyID = p.CurrentJourneyID
		payload.Language = p.Language
	}

	for _, deviceID := range p.DeviceIDs() {
		topic := mqtt.DeviceCommandTopic(deviceID, string(cmd))
		_ = s.publisher.Publish(ctx, topic, payload, mqtt.PublishOptions{QoS: mqtt.QoSAtLeastOnce})
		mirror(ctx, s.events, topic, payload)
	}
}

func (s *SessionService) findSession(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

// resolvePairs loads pairs in request order; each must exist, be active and appear once.
func (s *SessionService) resolvePairs(ctx context.Context, pairIDs []string) ([]model.DevicePair, error) {
	seen := make(map[string]bool, len(pairIDs))
	for _, id := range pairIDs {
		if seen[id] {
			return nil, apperrors.ValidationError(fmt.Sprintf("Pair %s listed more than once", id))
		}
		seen[id] = true
	}

	found, err := s.pairRepo.FindByIDs(ctx, pairIDs)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	byID := make(map[string]model.DevicePair, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	devices := make(map[string]bool, len(pairIDs)*2)
	pairs := make([]model.DevicePair, 0, len(pairIDs))
	for _, id := range pairIDs {
		p, ok := byID[id]
		if !ok {
			return nil, apperrors.NotFound(fmt.Sprintf("Pair %s", id))
		}
		if !p.IsActive {
			return nil, apperrors.InvalidState(fmt.Sprintf("Pair %s is inactive", id))
		}
		for _, d := range []string{p.VRDeviceID, p.ChairDeviceID} {
			if devices[d] {
				return nil, apperrors.ValidationError(fmt.Sprintf("Device %s is bound to more than one pair", d))
			}
			devices[d] = true
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

func (s *SessionService) detail(ctx context.Context, session *model.Session, participants []model.SessionParticipant) *model.SessionDetail {
	ids := make([]string, 0, len(participants)*2)
	for i := range participants {
		ids = append(ids, participants[i].DeviceIDs()...)
	}

	var status map[string]bool
	if s.online != nil && len(ids) > 0 {
		var err error
		status, err = s.online.DevicesOnline(ctx, ids)
		if err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to resolve device online status")
		}
	}

	detail := &model.SessionDetail{
		Session:      *session,
		Participants: make([]model.ParticipantStatus, 0, len(participants)),
	}
	for _, p := range participants {
		detail.Participants = append(detail.Participants, model.ParticipantStatus{
			SessionParticipant: p,
			VROnline:           status[p.VRDeviceID],
			ChairOnline:        status[p.ChairDeviceID],
		})
	}
	return detail
}

// generateGroupID returns a batch id such as GRP-20261019-4F2A.
func generateGroupID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("GRP-%s-%s", now.Format("20060102"), suffix)
}
