// Package mqtttest provides an in-memory mqtt.Transport for tests.
package mqtttest

import (
	"context"
	"errors"
	"sync"
)

// Published is one message sent through the transport.
type Published struct {
	Topic   string
	QoS     byte
	Retain  bool
	Payload []byte
}

// Transport records wire operations and lets tests inject inbound messages.
type Transport struct {
	mu          sync.Mutex
	connected   bool
	published   []Published
	subscribed  []string
	unsubscribe []string
	failTopics  map[string]bool
	failSub     bool

	onMessage func(topic string, payload []byte)
	onConnect func()
}

func NewTransport() *Transport {
	return &Transport{failTopics: make(map[string]bool)}
}

func (t *Transport) SetCallbacks(onMessage func(topic string, payload []byte), onConnect func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = onMessage
	t.onConnect = onConnect
}

func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	t.connected = true
	onConnect := t.onConnect
	t.mu.Unlock()

	if onConnect != nil {
		onConnect()
	}
	return nil
}

func (t *Transport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Publish(topic string, qos byte, retain bool, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failTopics[topic] {
		return errors.New("publish rejected")
	}
	t.published = append(t.published, Published{Topic: topic, QoS: qos, Retain: retain, Payload: payload})
	return nil
}

func (t *Transport) Subscribe(pattern string, qos byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failSub {
		return errors.New("subscribe rejected")
	}
	t.subscribed = append(t.subscribed, pattern)
	return nil
}

func (t *Transport) Unsubscribe(pattern string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unsubscribe = append(t.unsubscribe, pattern)
	return nil
}

// Deliver injects an inbound message as if it arrived from the broker.
func (t *Transport) Deliver(topic string, payload []byte) {
	t.mu.Lock()
	onMessage := t.onMessage
	t.mu.Unlock()

	if onMessage != nil {
		onMessage(topic, payload)
	}
}

// Reconnect simulates the broker connection coming back.
func (t *Transport) Reconnect() {
	t.mu.Lock()
	t.connected = true
	onConnect := t.onConnect
	t.mu.Unlock()

	if onConnect != nil {
		onConnect()
	}
}

// FailPublish makes every publish to topic return an error.
func (t *Transport) FailPublish(topic string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failTopics[topic] = true
}

// FailSubscribe makes every subscribe return an error.
func (t *Transport) FailSubscribe(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failSub = fail
}

func (t *Transport) Published() []Published {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Published(nil), t.published...)
}

// PublishedTopics returns the topics of every successful publish, in order.
func (t *Transport) PublishedTopics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	topics := make([]string, len(t.published))
	for i, p := range t.published {
		topics[i] = p.Topic
	}
	return topics
}

func (t *Transport) Subscribed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.subscribed...)
}

func (t *Transport) Unsubscribed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.unsubscribe...)
}

func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.published = nil
	t.subscribed = nil
	t.unsubscribe = nil
}
