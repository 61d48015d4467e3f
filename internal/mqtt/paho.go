package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/fleetsync/orchestrator-go/internal/config"
)

type PahoConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

// PahoTransport is the production Transport backed by the Eclipse Paho client.
type PahoTransport struct {
	client paho.Client

	mu        sync.RWMutex
	onMessage func(topic string, payload []byte)
	onConnect func()
}

func NewPahoTransport(cfg PahoConfig) *PahoTransport {
	t := &PahoTransport{}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Second).
		SetMaxReconnectInterval(config.MQTTMaxReconnectDelay).
		SetKeepAlive(config.MQTTKeepAlive).
		SetConnectTimeout(config.MQTTConnectTimeout).
		SetDefaultPublishHandler(func(_ paho.Client, m paho.Message) {
			t.mu.RLock()
			handler := t.onMessage
			t.mu.RUnlock()
			if handler != nil {
				handler(m.Topic(), m.Payload())
			}
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			t.mu.RLock()
			handler := t.onConnect
			t.mu.RUnlock()
			if handler != nil {
				handler()
			}
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		}).
		SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
			log.Info().Msg("mqtt reconnecting")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	t.client = paho.NewClient(opts)
	return t
}

func (t *PahoTransport) SetCallbacks(onMessage func(topic string, payload []byte), onConnect func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = onMessage
	t.onConnect = onConnect
}

func (t *PahoTransport) Connect(ctx context.Context) error {
	token := t.client.Connect()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("connect: %w", ctx.Err())
	}
}

func (t *PahoTransport) Disconnect() {
	t.client.Disconnect(250)
}

func (t *PahoTransport) IsConnected() bool {
	return t.client.IsConnectionOpen()
}

func (t *PahoTransport) Publish(topic string, qos byte, retain bool, payload []byte) error {
	if !t.client.IsConnectionOpen() {
		return fmt.Errorf("not connected")
	}
	return wait(t.client.Publish(topic, qos, retain, payload))
}

// Subscribe passes a nil callback so messages reach the default publish handler.
func (t *PahoTransport) Subscribe(pattern string, qos byte) error {
	if !t.client.IsConnectionOpen() {
		return fmt.Errorf("not connected")
	}
	return wait(t.client.Subscribe(pattern, qos, nil))
}

func (t *PahoTransport) Unsubscribe(pattern string) error {
	return wait(t.client.Unsubscribe(pattern))
}

func wait(token paho.Token) error {
	if !token.WaitTimeout(config.MQTTOperationTimeout) {
		return fmt.Errorf("timed out after %s", config.MQTTOperationTimeout)
	}
	return token.Error()
}
