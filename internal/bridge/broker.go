package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetsync/orchestrator-go/internal/mqtt"
	redisclient "github.com/fleetsync/orchestrator-go/internal/redis"
)

const (
	EventCommand       = "command"
	EventDeviceOnline  = "device_online"
	EventDeviceOffline = "device_offline"
	EventDeviceStatus  = "device_status"

	clientBufferSize = 100
)

// Event is one message mirrored to fallback observers.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// NewEvent builds an event, JSON-encoding data unless it is already raw JSON.
func NewEvent(eventType, topic string, data any) (Event, error) {
	var raw json.RawMessage
	switch d := data.(type) {
	case json.RawMessage:
		raw = d
	case []byte:
		raw = d
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		raw = encoded
	}

	return Event{
		Type:      eventType,
		Topic:     topic,
		Data:      raw,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

type Client struct {
	// Filter is a topic pattern; empty accepts every event.
	Filter string
	Events chan Event
	Done   chan struct{}
}

// Accepts reports whether the event passes the client's topic filter.
func (c *Client) Accepts(event Event) bool {
	if c.Filter == "" {
		return true
	}
	return event.Topic != "" && mqtt.Matches(c.Filter, event.Topic)
}

// Broker fans bridge events out through redis to every connected observer.
type Broker struct {
	redis   *redisclient.Client
	clients map[*Client]bool
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(filter string) *Client {
	client := &Client{
		Filter: filter,
		Events: make(chan Event, clientBufferSize),
		Done:   make(chan struct{}),
	}

	if b.redis != nil {
		b.once.Do(func() { go b.subscribeToRedis() })
	}

	b.mu.Lock()
	b.clients[client] = true
	clientCount := len(b.clients)
	b.mu.Unlock()

	log.Info().
		Str("filter", filter).
		Int("clientCount", clientCount).
		Msg("bridge client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client.Done)

		log.Info().
			Str("filter", client.Filter).
			Int("clientCount", len(b.clients)).
			Msg("bridge client unsubscribed")
	}
}

// Publish sends event to every orchestrator instance through the redis channel.
func (b *Broker) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, redisclient.BridgeChannel, data).Err()
}

func (b *Broker) subscribeToRedis() {
	pubsub := b.redis.Subscribe(b.ctx, redisclient.BridgeChannel)
	defer pubsub.Close()

	log.Debug().
		Str("channel", redisclient.BridgeChannel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal bridge event")
				continue
			}

			b.broadcast(event)
		}
	}
}

func (b *Broker) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients {
		if !client.Accepts(event) {
			continue
		}

		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("type", event.Type).
				Str("topic", event.Topic).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for client := range b.clients {
		close(client.Done)
	}
	b.clients = make(map[*Client]bool)
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
