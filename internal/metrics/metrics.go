package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	devicesOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devices_online",
			Help: "Number of devices the presence tracker currently considers online",
		},
	)

	presenceTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "device_presence_transitions_total",
			Help: "Total number of device online/offline transitions",
		},
		[]string{"state"},
	)

	mqttMessagesReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mqtt_messages_received_total",
			Help: "Total number of inbound transport messages",
		},
	)

	mqttPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_publish_total",
			Help: "Total number of transport publishes by result",
		},
		[]string{"result"},
	)

	mqttHandlerFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mqtt_handler_failures_total",
			Help: "Total number of inbound message handlers that returned an error or panicked",
		},
	)

	sessionCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_commands_total",
			Help: "Total number of session commands dispatched",
		},
		[]string{"cmd", "scope"},
	)
)

// SetDevicesOnline records the current online device count.
func SetDevicesOnline(n int) {
	devicesOnline.Set(float64(n))
}

// RecordPresenceTransition counts a device going online or offline.
func RecordPresenceTransition(online bool) {
	state := "offline"
	if online {
		state = "online"
	}
	presenceTransitionsTotal.WithLabelValues(state).Inc()
}

func RecordMessageReceived() {
	mqttMessagesReceivedTotal.Inc()
}

func RecordPublish(success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	mqttPublishTotal.WithLabelValues(result).Inc()
}

func RecordHandlerFailure() {
	mqttHandlerFailuresTotal.Inc()
}

// RecordSessionCommand counts a dispatched command; scope is "session" or "participant".
func RecordSessionCommand(cmd string, scope string) {
	sessionCommandsTotal.WithLabelValues(cmd, scope).Inc()
}
