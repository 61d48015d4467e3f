package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/fleetsync/orchestrator-go/internal/errors"
	"github.com/fleetsync/orchestrator-go/internal/model"
	"github.com/fleetsync/orchestrator-go/internal/mqtt"
)

type ScanRequest struct {
	Timestamp int64  `json:"timestamp"`
	RequestID string `json:"requestId"`
}

type DeviceService struct {
	publisher Publisher
	presence  Presence
	events    EventPublisher
}

func NewDeviceService(publisher Publisher, presence Presence, events EventPublisher) *DeviceService {
	return &DeviceService{
		publisher: publisher,
		presence:  presence,
		events:    events,
	}
}

// RequestDeviceScan asks every device to re-announce itself.
func (s *DeviceService) RequestDeviceScan(ctx context.Context) (string, error) {
	req := ScanRequest{
		Timestamp: time.Now().UnixMilli(),
		RequestID: uuid.NewString(),
	}

	if err := s.publisher.Publish(ctx, mqtt.TopicScan, req, mqtt.PublishOptions{QoS: mqtt.QoSAtLeastOnce}); err != nil {
		return "", apperrors.Transport(err)
	}

	log.Info().Str("requestId", req.RequestID).Msg("device scan requested")
	return req.RequestID, nil
}

// SendDeviceCommand publishes a raw command to one device. Payload fields are
// kept; cmd, requestId and timestamp are always set by the server.
func (s *DeviceService) SendDeviceCommand(ctx context.Context, deviceID, cmd string, payload map[string]any) (string, error) {
	if deviceID == "" {
		return "", apperrors.MissingRequired("deviceId")
	}

	name := model.CommandName(cmd)
	if !name.Known() {
		return "", apperrors.UnknownCommand(cmd)
	}

	requestID := uuid.NewString()
	message := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		message[k] = v
	}
	message["cmd"] = name
	message["requestId"] = requestID
	message["timestamp"] = time.Now().UnixMilli()

	topic := mqtt.DeviceCommandTopic(deviceID, cmd)
	pubErr := s.publisher.Publish(ctx, topic, message, mqtt.PublishOptions{QoS: mqtt.QoSAtLeastOnce})
	if !mirror(ctx, s.events, topic, message) && pubErr != nil {
		return "", apperrors.Transport(pubErr)
	}

	if !s.presence.IsOnline(deviceID) {
		log.Warn().
			Str("deviceId", deviceID).
			Str("cmd", cmd).
			Msg("command sent to offline device")
	}

	log.Info().
		Str("deviceId", deviceID).
		Str("cmd", cmd).
		Str("requestId", requestID).
		Msg("device command sent")

	return requestID, nil
}

func (s *DeviceService) DiscoveredDevices() []model.DiscoveredDevice {
	return s.presence.DiscoveredDevices()
}

func (s *DeviceService) IsDeviceOnline(deviceID string) bool {
	return s.presence.IsOnline(deviceID)
}
