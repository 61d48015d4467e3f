package mqtt

import "fmt"

const (
	TopicAnnounce = "devices/discovery/announce"
	TopicScan     = "devices/discovery/scan"

	PatternHeartbeat = "devices/+/heartbeat"
	PatternStatus    = "devices/+/status"
)

// QoS levels used on the device bus.
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
)

func DeviceCommandTopic(deviceID, cmd string) string {
	return fmt.Sprintf("devices/%s/commands/%s", deviceID, cmd)
}

func SessionCommandTopic(sessionID, cmd string) string {
	return fmt.Sprintf("sessions/%s/commands/%s", sessionID, cmd)
}

func ParticipantCommandTopic(sessionID, participantID, cmd string) string {
	return fmt.Sprintf("sessions/%s/participants/%s/commands/%s", sessionID, participantID, cmd)
}

// DeviceIDFromTopic extracts the device id from a devices/{id}/... topic.
func DeviceIDFromTopic(topic string) (string, bool) {
	const prefix = "devices/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}

	rest := topic[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			if i == 0 {
				return "", false
			}
			return rest[:i], true
		}
	}
	return "", false
}
