package authbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultChannel is the Redis pub/sub channel shared by every context of one
// portal deployment.
const DefaultChannel = "mosaic:authbus"

// redisEnvelope wraps a message with the sender's port ID so receivers can
// suppress self-delivery. Redis pub/sub itself echoes publications back to
// the publishing connection's subscriptions.
type redisEnvelope struct {
	Sender string          `json:"sender"`
	Data   json.RawMessage `json:"data"`
}

// RedisPort is a Port over a Redis pub/sub channel. Each port carries a
// unique sender ID; inbound envelopes bearing the port's own ID are dropped.
type RedisPort struct {
	client   *redis.Client
	channel  string
	senderID string
	log      *logrus.Logger

	mu       sync.Mutex
	handlers map[int]func([]byte)
	nextID   int
	closed   bool

	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisPort attaches a new port to the given channel. An empty channel
// name selects DefaultChannel.
func NewRedisPort(ctx context.Context, client *redis.Client, channel string, log *logrus.Logger) (*RedisPort, error) {
	if log == nil {
		log = logrus.New()
	}
	if channel == "" {
		channel = DefaultChannel
	}

	pubsub := client.Subscribe(ctx, channel)

	// Force the subscription to be established before the port is handed
	// out, so a publish immediately after construction is not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	p := &RedisPort{
		client:   client,
		channel:  channel,
		senderID: uuid.NewString(),
		log:      log,
		handlers: make(map[int]func([]byte)),
		pubsub:   pubsub,
		done:     make(chan struct{}),
	}

	go p.readLoop()
	return p, nil
}

// Publish broadcasts to every other port on the channel.
func (p *RedisPort) Publish(ctx context.Context, data []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("publish on closed port")
	}

	envelope, err := json.Marshal(redisEnvelope{
		Sender: p.senderID,
		Data:   json.RawMessage(data),
	})
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, envelope).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.channel, err)
	}
	return nil
}

// Subscribe registers a handler and returns its unsubscribe function.
func (p *RedisPort) Subscribe(handler func(data []byte)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.handlers[id] = handler

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
	}
}

// Close detaches the port and stops its read loop.
func (p *RedisPort) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.handlers = make(map[int]func([]byte))
	p.mu.Unlock()

	close(p.done)
	return p.pubsub.Close()
}

func (p *RedisPort) readLoop() {
	ch := p.pubsub.Channel()
	for {
		select {
		case <-p.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			p.dispatch([]byte(msg.Payload))
		}
	}
}

func (p *RedisPort) dispatch(payload []byte) {
	var envelope redisEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		p.log.WithError(err).Warn("Dropping undecodable bus envelope")
		return
	}
	if envelope.Sender == p.senderID {
		// Self-delivery suppression.
		return
	}

	p.mu.Lock()
	handlers := make([]func([]byte), 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(envelope.Data)
	}
}
