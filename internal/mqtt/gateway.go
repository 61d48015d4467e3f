package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fleetsync/orchestrator-go/internal/metrics"
)

// Message is an inbound transport message.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler processes one inbound message. Returned errors are logged by the gateway.
type Handler func(ctx context.Context, msg Message) error

type SubscribeOptions struct {
	QoS byte
}

type PublishOptions struct {
	QoS    byte
	Retain bool
}

// Transport is the wire connection the gateway drives.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	Publish(topic string, qos byte, retain bool, payload []byte) error
	Subscribe(pattern string, qos byte) error
	Unsubscribe(pattern string) error
	// SetCallbacks installs the inbound message and (re)connect callbacks before Connect.
	SetCallbacks(onMessage func(topic string, payload []byte), onConnect func())
}

// TransportError describes a failed wire operation.
type TransportError struct {
	Op    string
	Topic string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mqtt %s %s: %v", e.Op, e.Topic, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type subscription struct {
	handlers []Handler
	opts     SubscribeOptions
}

// Gateway owns the transport and routes inbound messages to every matching handler.
type Gateway struct {
	transport Transport
	subs      map[string]*subscription
	mu        sync.RWMutex
}

func NewGateway(transport Transport) *Gateway {
	g := &Gateway{
		transport: transport,
		subs:      make(map[string]*subscription),
	}
	transport.SetCallbacks(g.dispatch, g.resubscribe)
	return g
}

func (g *Gateway) Connect(ctx context.Context) error {
	if err := g.transport.Connect(ctx); err != nil {
		return &TransportError{Op: "connect", Err: err}
	}
	return nil
}

func (g *Gateway) Close() {
	g.transport.Disconnect()
}

func (g *Gateway) IsConnected() bool {
	return g.transport.IsConnected()
}

// Subscribe registers handler for pattern. A pattern that is already registered
// gains the handler without a second wire subscription. While the transport is
// disconnected the pattern stays registered and is subscribed on connect.
func (g *Gateway) Subscribe(pattern string, handler Handler, opts SubscribeOptions) error {
	if !ValidPattern(pattern) {
		return &TransportError{Op: "subscribe", Topic: pattern, Err: fmt.Errorf("invalid topic filter")}
	}

	if g.appendHandler(pattern, handler) {
		return nil
	}

	// Registered before the wire subscribe so a concurrent reconnect picks it up.
	g.mu.Lock()
	g.subs[pattern] = &subscription{handlers: []Handler{handler}, opts: opts}
	g.mu.Unlock()

	// The wire subscribe waits for the broker ack; inbound dispatch must not block on it.
	if err := g.transport.Subscribe(pattern, opts.QoS); err != nil {
		if !g.transport.IsConnected() {
			log.Warn().Err(err).Str("pattern", pattern).Msg("mqtt not connected, subscription deferred")
			return nil
		}

		g.mu.Lock()
		delete(g.subs, pattern)
		g.mu.Unlock()

		log.Error().Err(err).Str("pattern", pattern).Msg("mqtt subscribe failed")
		return &TransportError{Op: "subscribe", Topic: pattern, Err: err}
	}

	log.Info().Str("pattern", pattern).Uint8("qos", opts.QoS).Msg("mqtt subscribed")
	return nil
}

func (g *Gateway) appendHandler(pattern string, handler Handler) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	sub, ok := g.subs[pattern]
	if !ok {
		return false
	}

	sub.handlers = append(sub.handlers, handler)
	log.Debug().
		Str("pattern", pattern).
		Int("handlerCount", len(sub.handlers)).
		Msg("handler added to existing subscription")
	return true
}

func (g *Gateway) Unsubscribe(pattern string) error {
	g.mu.Lock()
	_, ok := g.subs[pattern]
	delete(g.subs, pattern)
	g.mu.Unlock()

	if !ok {
		return nil
	}

	if err := g.transport.Unsubscribe(pattern); err != nil {
		log.Error().Err(err).Str("pattern", pattern).Msg("mqtt unsubscribe failed")
		return &TransportError{Op: "unsubscribe", Topic: pattern, Err: err}
	}

	log.Info().Str("pattern", pattern).Msg("mqtt unsubscribed")
	return nil
}

// Publish sends payload to topic. []byte and json.RawMessage are sent as-is;
// anything else is JSON-encoded. Errors are logged and returned, never retried.
func (g *Gateway) Publish(ctx context.Context, topic string, payload any, opts PublishOptions) error {
	data, err := encodePayload(payload)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("failed to encode mqtt payload")
		return &TransportError{Op: "publish", Topic: topic, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return &TransportError{Op: "publish", Topic: topic, Err: err}
	}

	if err := g.transport.Publish(topic, opts.QoS, opts.Retain, data); err != nil {
		metrics.RecordPublish(false)
		log.Warn().
			Err(err).
			Str("topic", topic).
			Uint8("qos", opts.QoS).
			Msg("mqtt publish failed")
		return &TransportError{Op: "publish", Topic: topic, Err: err}
	}

	metrics.RecordPublish(true)
	log.Debug().Str("topic", topic).Int("bytes", len(data)).Msg("mqtt published")
	return nil
}

// Patterns returns the registered subscription patterns.
func (g *Gateway) Patterns() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	patterns := make([]string, 0, len(g.subs))
	for p := range g.subs {
		patterns = append(patterns, p)
	}
	return patterns
}

func (g *Gateway) dispatch(topic string, payload []byte) {
	metrics.RecordMessageReceived()

	g.mu.RLock()
	var handlers []Handler
	for pattern, sub := range g.subs {
		if Matches(pattern, topic) {
			handlers = append(handlers, sub.handlers...)
		}
	}
	g.mu.RUnlock()

	if len(handlers) == 0 {
		log.Debug().Str("topic", topic).Msg("no handler for mqtt message")
		return
	}

	msg := Message{Topic: topic, Payload: payload}
	for _, h := range handlers {
		g.invoke(h, msg)
	}
}

func (g *Gateway) invoke(h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordHandlerFailure()
			log.Error().
				Interface("panic", r).
				Str("topic", msg.Topic).
				Msg("mqtt handler panicked")
		}
	}()

	if err := h(context.Background(), msg); err != nil {
		metrics.RecordHandlerFailure()
		log.Warn().Err(err).Str("topic", msg.Topic).Msg("mqtt handler failed")
	}
}

func (g *Gateway) resubscribe() {
	g.mu.RLock()
	pending := make(map[string]SubscribeOptions, len(g.subs))
	for pattern, sub := range g.subs {
		pending[pattern] = sub.opts
	}
	g.mu.RUnlock()

	for pattern, opts := range pending {
		if err := g.transport.Subscribe(pattern, opts.QoS); err != nil {
			log.Error().Err(err).Str("pattern", pattern).Msg("mqtt resubscribe failed")
			continue
		}
		log.Debug().Str("pattern", pattern).Msg("mqtt resubscribed")
	}

	log.Info().Int("patterns", len(pending)).Msg("mqtt connected")
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}
