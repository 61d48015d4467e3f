package presence

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetsync/orchestrator-go/internal/bridge"
	"github.com/fleetsync/orchestrator-go/internal/config"
	"github.com/fleetsync/orchestrator-go/internal/metrics"
	"github.com/fleetsync/orchestrator-go/internal/model"
	"github.com/fleetsync/orchestrator-go/internal/mqtt"
)

// Bus is the subset of the gateway the tracker listens on.
type Bus interface {
	Subscribe(pattern string, handler mqtt.Handler, opts mqtt.SubscribeOptions) error
}

// DeviceStore persists the durable last-seen signal.
type DeviceStore interface {
	TouchLastSeen(ctx context.Context, deviceID string, seenAt time.Time) (bool, error)
}

// EventPublisher receives presence transitions and raw status reports.
type EventPublisher interface {
	Publish(ctx context.Context, event bridge.Event) error
}

type entry struct {
	device     model.DiscoveredDevice
	timer      *time.Timer
	generation uint64
}

// signal is one liveness report extracted from an inbound message.
type signal struct {
	deviceID string
	typ      model.DeviceType
	name     string
	metadata *json.RawMessage
	status   *model.DeviceStatus
}

// Tracker keeps per-device liveness state driven by announce, heartbeat and
// status messages. Each device goes offline once its timer fires with no
// intervening signal; records are never removed.
type Tracker struct {
	bus     Bus
	store   DeviceStore
	events  EventPublisher
	timeout time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	devices map[string]*entry
	stopped bool
}

func NewTracker(bus Bus, store DeviceStore, events EventPublisher, timeout time.Duration) *Tracker {
	return &Tracker{
		bus:     bus,
		store:   store,
		events:  events,
		timeout: timeout,
		now:     time.Now,
		devices: make(map[string]*entry),
	}
}

// Start subscribes to the discovery, heartbeat and status topics.
func (t *Tracker) Start() error {
	subs := []struct {
		pattern string
		handler mqtt.Handler
	}{
		{mqtt.TopicAnnounce, t.handleAnnounce},
		{mqtt.PatternHeartbeat, t.handleHeartbeat},
		{mqtt.PatternStatus, t.handleStatus},
	}

	for _, s := range subs {
		if err := t.bus.Subscribe(s.pattern, s.handler, mqtt.SubscribeOptions{QoS: mqtt.QoSAtLeastOnce}); err != nil {
			return err
		}
	}

	log.Info().Dur("timeout", t.timeout).Msg("presence tracker started")
	return nil
}

// Stop cancels every pending timer. Later signals are ignored.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for _, e := range t.devices {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}

func (t *Tracker) handleAnnounce(ctx context.Context, msg mqtt.Message) error {
	announce, err := parseAnnounce(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic).Msg("rejected announce message")
		return nil
	}

	t.observe(ctx, signal{
		deviceID: announce.DeviceID,
		typ:      announce.Type,
		name:     announce.Name,
		metadata: announce.Metadata,
	})
	return nil
}

func (t *Tracker) handleHeartbeat(ctx context.Context, msg mqtt.Message) error {
	deviceID, ok := mqtt.DeviceIDFromTopic(msg.Topic)
	if !ok {
		log.Warn().Str("topic", msg.Topic).Msg("rejected heartbeat without device id")
		return nil
	}

	heartbeat, err := parseHeartbeat(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("deviceId", deviceID).Msg("rejected heartbeat message")
		return nil
	}

	t.observe(ctx, signal{deviceID: deviceID, typ: heartbeat.Type})
	return nil
}

func (t *Tracker) handleStatus(ctx context.Context, msg mqtt.Message) error {
	deviceID, ok := mqtt.DeviceIDFromTopic(msg.Topic)
	if !ok {
		log.Warn().Str("topic", msg.Topic).Msg("rejected status without device id")
		return nil
	}

	status, err := parseStatus(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("deviceId", deviceID).Msg("rejected status message")
		return nil
	}

	t.observe(ctx, signal{
		deviceID: deviceID,
		typ:      status.Type,
		status: &model.DeviceStatus{
			Status:     status.Status,
			PositionMs: status.PositionMs,
			SessionID:  status.SessionID,
			JourneyID:  status.Journey(),
			ReportedAt: t.now(),
		},
	})

	t.publish(bridge.EventDeviceStatus, msg.Topic, json.RawMessage(msg.Payload))
	return nil
}

// observe applies one liveness signal: it (re)arms the device timer, then
// refreshes the persisted last-seen outside the lock.
func (t *Tracker) observe(ctx context.Context, s signal) {
	now := t.now()

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	e, known := t.devices[s.deviceID]
	if !known {
		e = &entry{device: model.DiscoveredDevice{
			DeviceID:     s.deviceID,
			Type:         model.DeviceTypeUnknown,
			DiscoveredAt: now,
		}}
		t.devices[s.deviceID] = e
	}

	wasOnline := e.device.Online
	e.device.Online = true
	e.device.LastSeen = now
	if s.typ.Valid() {
		e.device.Type = s.typ
	}
	if s.name != "" {
		e.device.Name = s.name
	}
	if s.metadata != nil {
		e.device.Metadata = s.metadata
	}
	if s.status != nil {
		e.device.LastStatus = s.status
	}

	e.generation++
	if e.timer != nil {
		e.timer.Stop()
	}
	gen := e.generation
	e.timer = time.AfterFunc(t.timeout, func() { t.expire(s.deviceID, gen) })

	registered := e.device.IsRegistered
	snapshot := e.device
	online := t.onlineCountLocked()
	t.mu.Unlock()

	metrics.SetDevicesOnline(online)
	if !known {
		log.Info().
			Str("deviceId", s.deviceID).
			Str("type", string(snapshot.Type)).
			Msg("device discovered")
	}
	if !wasOnline {
		metrics.RecordPresenceTransition(true)
		t.publish(bridge.EventDeviceOnline, "", snapshot)
	}

	t.touch(ctx, s.deviceID, now, registered)
}

func (t *Tracker) touch(ctx context.Context, deviceID string, seenAt time.Time, registered bool) {
	if t.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, config.PresenceWriteTimeout)
	defer cancel()

	found, err := t.store.TouchLastSeen(ctx, deviceID, seenAt)
	if err != nil {
		log.Warn().Err(err).Str("deviceId", deviceID).Msg("failed to update device last seen")
		return
	}

	if found && !registered {
		t.MarkRegistered(deviceID)
	}
}

func (t *Tracker) expire(deviceID string, gen uint64) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("deviceId", deviceID).Msg("presence timer panicked")
		}
	}()

	t.mu.Lock()
	e, ok := t.devices[deviceID]
	if !ok || t.stopped || e.generation != gen || !e.device.Online {
		t.mu.Unlock()
		return
	}

	e.device.Online = false
	snapshot := e.device
	online := t.onlineCountLocked()
	t.mu.Unlock()

	metrics.SetDevicesOnline(online)
	metrics.RecordPresenceTransition(false)
	log.Info().
		Str("deviceId", deviceID).
		Time("lastSeen", snapshot.LastSeen).
		Msg("device timed out")

	t.publish(bridge.EventDeviceOffline, "", snapshot)
}

func (t *Tracker) publish(eventType, topic string, data any) {
	if t.events == nil {
		return
	}

	event, err := bridge.NewEvent(eventType, topic, data)
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("failed to build bridge event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.PresenceWriteTimeout)
	defer cancel()

	if err := t.events.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("failed to publish bridge event")
	}
}

func (t *Tracker) onlineCountLocked() int {
	n := 0
	for _, e := range t.devices {
		if e.device.Online {
			n++
		}
	}
	return n
}

// IsOnline reports the in-memory liveness of a device.
func (t *Tracker) IsOnline(deviceID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.devices[deviceID]
	return ok && e.device.Online
}

func (t *Tracker) DevicesOnlineStatus(deviceIDs []string) map[string]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := make(map[string]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		e, ok := t.devices[id]
		status[id] = ok && e.device.Online
	}
	return status
}

// DiscoveredDevices returns a snapshot of every device ever seen, sorted by id.
func (t *Tracker) DiscoveredDevices() []model.DiscoveredDevice {
	t.mu.RLock()
	devices := make([]model.DiscoveredDevice, 0, len(t.devices))
	for _, e := range t.devices {
		devices = append(devices, e.device)
	}
	t.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DeviceID < devices[j].DeviceID
	})
	return devices
}

func (t *Tracker) Device(deviceID string) (model.DiscoveredDevice, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.devices[deviceID]
	if !ok {
		return model.DiscoveredDevice{}, false
	}
	return e.device, true
}

// MarkRegistered flags a discovered device as backed by a persisted record.
func (t *Tracker) MarkRegistered(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.devices[deviceID]; ok && !e.device.IsRegistered {
		e.device.IsRegistered = true
		log.Debug().Str("deviceId", deviceID).Msg("device registered")
	}
}

func (t *Tracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.onlineCountLocked()
}
