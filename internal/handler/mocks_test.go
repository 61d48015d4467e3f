package handler

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/fleetsync/orchestrator-go/internal/bridge"
	"github.com/fleetsync/orchestrator-go/internal/model"
	"github.com/fleetsync/orchestrator-go/internal/service"
)

// Mock device service
type mockDeviceService struct {
	mock.Mock
}

func (m *mockDeviceService) RequestDeviceScan(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockDeviceService) SendDeviceCommand(ctx context.Context, deviceID, cmd string, payload map[string]any) (string, error) {
	args := m.Called(ctx, deviceID, cmd, payload)
	return args.String(0), args.Error(1)
}

func (m *mockDeviceService) DiscoveredDevices() []model.DiscoveredDevice {
	args := m.Called()
	return args.Get(0).([]model.DiscoveredDevice)
}

func (m *mockDeviceService) IsDeviceOnline(deviceID string) bool {
	args := m.Called(deviceID)
	return args.Bool(0)
}

// Mock pairing service
type mockPairingService struct {
	mock.Mock
}

func (m *mockPairingService) CreatePair(ctx context.Context, input service.CreatePairInput) (*model.PairStatus, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PairStatus), args.Error(1)
}

func (m *mockPairingService) ListPairs(ctx context.Context, includeInactive bool) ([]model.PairStatus, error) {
	args := m.Called(ctx, includeInactive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PairStatus), args.Error(1)
}

func (m *mockPairingService) GetPair(ctx context.Context, id string) (*model.PairStatus, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PairStatus), args.Error(1)
}

func (m *mockPairingService) UpdatePair(ctx context.Context, id string, input service.UpdatePairInput) (*model.PairStatus, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PairStatus), args.Error(1)
}

func (m *mockPairingService) DeletePair(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockPairingService) AvailableDevices(ctx context.Context, deviceType string) ([]model.Device, error) {
	args := m.Called(ctx, deviceType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Device), args.Error(1)
}

func (m *mockPairingService) OnlinePairs(ctx context.Context) ([]model.PairStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PairStatus), args.Error(1)
}

// Mock session service
type mockSessionService struct {
	mock.Mock
}

func (m *mockSessionService) CreateSession(ctx context.Context, input service.CreateSessionInput) (*model.SessionDetail, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionDetail), args.Error(1)
}

func (m *mockSessionService) GetSession(ctx context.Context, id string) (*model.SessionDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionDetail), args.Error(1)
}

func (m *mockSessionService) ListSessions(ctx context.Context, overallStatus string) ([]model.Session, error) {
	args := m.Called(ctx, overallStatus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionService) DeleteSession(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockSessionService) AddParticipant(ctx context.Context, sessionID string, input service.AddParticipantInput) (*model.ParticipantStatus, error) {
	args := m.Called(ctx, sessionID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ParticipantStatus), args.Error(1)
}

func (m *mockSessionService) RemoveParticipant(ctx context.Context, sessionID, participantID string) error {
	args := m.Called(ctx, sessionID, participantID)
	return args.Error(0)
}

func (m *mockSessionService) SendSessionCommand(ctx context.Context, sessionID, cmd string, cmdArgs model.CommandArgs) (*model.CommandResult, error) {
	args := m.Called(ctx, sessionID, cmd, cmdArgs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CommandResult), args.Error(1)
}

func (m *mockSessionService) SendParticipantCommand(ctx context.Context, sessionID, participantID, cmd string, cmdArgs model.CommandArgs) (*model.CommandResult, error) {
	args := m.Called(ctx, sessionID, participantID, cmd, cmdArgs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CommandResult), args.Error(1)
}

// fakeSubscriber hands out bridge clients the test can feed directly.
type fakeSubscriber struct {
	mu           sync.Mutex
	clients      []*bridge.Client
	unsubscribed int
	subscribed   chan *bridge.Client
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subscribed: make(chan *bridge.Client, 1)}
}

func (f *fakeSubscriber) Subscribe(filter string) *bridge.Client {
	client := &bridge.Client{
		Filter: filter,
		Events: make(chan bridge.Event, 10),
		Done:   make(chan struct{}),
	}

	f.mu.Lock()
	f.clients = append(f.clients, client)
	f.mu.Unlock()

	f.subscribed <- client
	return client
}

func (f *fakeSubscriber) Unsubscribe(client *bridge.Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed++
}

func (f *fakeSubscriber) Unsubscribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}
