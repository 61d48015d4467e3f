package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/fleetsync/orchestrator-go/internal/bridge"
	"github.com/fleetsync/orchestrator-go/internal/model"
	"github.com/fleetsync/orchestrator-go/internal/repository"
)

// Mock pair repository
type mockPairRepo struct {
	mock.Mock
}

func (m *mockPairRepo) FindByID(ctx context.Context, id string) (*model.DevicePair, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DevicePair), args.Error(1)
}

func (m *mockPairRepo) FindByIDs(ctx context.Context, ids []string) ([]model.DevicePair, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DevicePair), args.Error(1)
}

func (m *mockPairRepo) List(ctx context.Context, includeInactive bool) ([]model.DevicePair, error) {
	args := m.Called(ctx, includeInactive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DevicePair), args.Error(1)
}

func (m *mockPairRepo) FindConflicting(ctx context.Context, vrDeviceID, chairDeviceID string, excludeID *string) ([]model.DevicePair, error) {
	args := m.Called(ctx, vrDeviceID, chairDeviceID, excludeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DevicePair), args.Error(1)
}

func (m *mockPairRepo) Create(ctx context.Context, params model.CreatePairParams) (*model.DevicePair, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DevicePair), args.Error(1)
}

func (m *mockPairRepo) Update(ctx context.Context, id string, params model.UpdatePairParams) (*model.DevicePair, error) {
	args := m.Called(ctx, id, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DevicePair), args.Error(1)
}

func (m *mockPairRepo) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// Mock device repository
type mockDeviceRepo struct {
	mock.Mock
}

func (m *mockDeviceRepo) FindByDeviceID(ctx context.Context, deviceID string) (*model.Device, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) FindByDeviceIDs(ctx context.Context, deviceIDs []string) ([]model.Device, error) {
	args := m.Called(ctx, deviceIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Device), args.Error(1)
}

func (m *mockDeviceRepo) ListUnpaired(ctx context.Context, deviceType *model.DeviceType) ([]model.Device, error) {
	args := m.Called(ctx, deviceType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Device), args.Error(1)
}

func (m *mockDeviceRepo) Register(ctx context.Context, params model.RegisterDeviceParams) (*model.Device, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) TouchLastSeen(ctx context.Context, deviceID string, seenAt time.Time) (bool, error) {
	args := m.Called(ctx, deviceID, seenAt)
	return args.Bool(0), args.Error(1)
}

func (m *mockDeviceRepo) UpdateDisplayName(ctx context.Context, deviceID string, displayName string) error {
	args := m.Called(ctx, deviceID, displayName)
	return args.Error(0)
}

// Mock session repository
type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) List(ctx context.Context, overall *model.OverallStatus) ([]model.Session, error) {
	args := m.Called(ctx, overall)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) CreateWithParticipants(ctx context.Context, params model.CreateSessionParams, participants []model.CreateParticipantParams) (*model.Session, []model.SessionParticipant, error) {
	args := m.Called(ctx, params, participants)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*model.Session), args.Get(1).([]model.SessionParticipant), args.Error(2)
}

func (m *mockSessionRepo) UpdateState(ctx context.Context, id string, params model.UpdateSessionStateParams) error {
	args := m.Called(ctx, id, params)
	return args.Error(0)
}

func (m *mockSessionRepo) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) FindParticipant(ctx context.Context, sessionID, participantID string) (*model.SessionParticipant, error) {
	args := m.Called(ctx, sessionID, participantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionParticipant), args.Error(1)
}

func (m *mockSessionRepo) FindParticipantByPair(ctx context.Context, sessionID, pairID string) (*model.SessionParticipant, error) {
	args := m.Called(ctx, sessionID, pairID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionParticipant), args.Error(1)
}

func (m *mockSessionRepo) ListParticipants(ctx context.Context, sessionID string) ([]model.SessionParticipant, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SessionParticipant), args.Error(1)
}

func (m *mockSessionRepo) AddParticipant(ctx context.Context, sessionID string, params model.CreateParticipantParams) (*model.SessionParticipant, error) {
	args := m.Called(ctx, sessionID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionParticipant), args.Error(1)
}

func (m *mockSessionRepo) RemoveParticipant(ctx context.Context, sessionID, participantID string) (bool, error) {
	args := m.Called(ctx, sessionID, participantID)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) UpdateParticipantJourney(ctx context.Context, participantID string, journeyID int64, language *string) error {
	args := m.Called(ctx, participantID, journeyID, language)
	return args.Error(0)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return m
}

// fakePresence is a fixed view of the presence tracker.
type fakePresence struct {
	mu         sync.Mutex
	online     map[string]bool
	discovered map[string]model.DiscoveredDevice
	registered []string
}

func newFakePresence(online ...string) *fakePresence {
	p := &fakePresence{
		online:     make(map[string]bool),
		discovered: make(map[string]model.DiscoveredDevice),
	}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *fakePresence) IsOnline(deviceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[deviceID]
}

func (p *fakePresence) DevicesOnlineStatus(deviceIDs []string) map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := make(map[string]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		status[id] = p.online[id]
	}
	return status
}

func (p *fakePresence) DiscoveredDevices() []model.DiscoveredDevice {
	p.mu.Lock()
	defer p.mu.Unlock()

	devices := make([]model.DiscoveredDevice, 0, len(p.discovered))
	for _, d := range p.discovered {
		devices = append(devices, d)
	}
	return devices
}

func (p *fakePresence) Device(deviceID string) (model.DiscoveredDevice, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.discovered[deviceID]
	return d, ok
}

func (p *fakePresence) MarkRegistered(deviceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, deviceID)
}

// fakeOnline reports a fixed set of devices as online.
type fakeOnline struct {
	online map[string]bool
}

func newFakeOnline(ids ...string) *fakeOnline {
	o := &fakeOnline{online: make(map[string]bool)}
	for _, id := range ids {
		o.online[id] = true
	}
	return o
}

func (o *fakeOnline) DevicesOnline(ctx context.Context, deviceIDs []string) (map[string]bool, error) {
	status := make(map[string]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		status[id] = o.online[id]
	}
	return status, nil
}

// recordedEvents captures bridge events.
type recordedEvents struct {
	mu     sync.Mutex
	events []bridge.Event
	err    error
}

func (r *recordedEvents) Publish(ctx context.Context, event bridge.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordedEvents) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics := make([]string, len(r.events))
	for i, e := range r.events {
		topics[i] = e.Topic
	}
	return topics
}
