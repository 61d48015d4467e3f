package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/fleetsync/orchestrator-go/internal/bridge"
	"github.com/fleetsync/orchestrator-go/internal/model"
	"github.com/fleetsync/orchestrator-go/internal/mqtt"
)

// Publisher is the gateway surface used to reach devices.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any, opts mqtt.PublishOptions) error
}

// Presence is the read side of the presence tracker.
type Presence interface {
	IsOnline(deviceID string) bool
	DevicesOnlineStatus(deviceIDs []string) map[string]bool
	DiscoveredDevices() []model.DiscoveredDevice
	Device(deviceID string) (model.DiscoveredDevice, bool)
	MarkRegistered(deviceID string)
}

// EventPublisher mirrors outbound traffic to fallback observers.
type EventPublisher interface {
	Publish(ctx context.Context, event bridge.Event) error
}

// OnlineChecker applies the combined tracker/last-seen online rule.
type OnlineChecker interface {
	DevicesOnline(ctx context.Context, deviceIDs []string) (map[string]bool, error)
}

// mirror forwards a command to the bridge whether or not the device publish
// succeeded, and reports whether the bridge accepted it. Failures are logged only.
func mirror(ctx context.Context, events EventPublisher, topic string, payload any) bool {
	if events == nil {
		return false
	}

	event, err := bridge.NewEvent(bridge.EventCommand, topic, payload)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("failed to build bridge event")
		return false
	}

	if err := events.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to mirror command to bridge")
		return false
	}
	return true
}
