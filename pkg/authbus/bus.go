package authbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Bus publishes and consumes typed auth events over a Port. One Bus belongs
// to one context (the host shell or one fragment), identified by appName.
type Bus struct {
	port    Port
	appName string
	log     *logrus.Logger

	onDrop func(reason string)
}

// SetDropObserver registers a callback invoked whenever an inbound message
// is dropped before reaching any subscriber. The reason is "undecodable"
// or "invalid". Set it before Subscribe.
func (b *Bus) SetDropObserver(fn func(reason string)) {
	b.onDrop = fn
}

// NewBus wraps a port with the typed event schema.
func NewBus(port Port, appName string, log *logrus.Logger) *Bus {
	if log == nil {
		log = logrus.New()
	}
	return &Bus{
		port:    port,
		appName: appName,
		log:     log,
	}
}

// AppName returns the publishing context's name.
func (b *Bus) AppName() string {
	return b.appName
}

// Publish broadcasts an event of the given type. A nil payload is allowed
// for tags that carry none (signed-out).
func (b *Bus) Publish(ctx context.Context, eventType EventType, payload interface{}) error {
	ev := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		AppName:   b.appName,
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding %s payload: %w", eventType, err)
		}
		ev.Payload = raw
	}

	data, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", eventType, err)
	}

	b.log.WithFields(logrus.Fields{
		"type": string(eventType),
		"app":  b.appName,
	}).Debug("Publishing auth event")

	return b.port.Publish(ctx, data)
}

// PublishSignedIn broadcasts a signed-in event.
func (b *Bus) PublishSignedIn(ctx context.Context, payload SignedInPayload) error {
	return b.Publish(ctx, EventSignedIn, payload)
}

// PublishSignedOut broadcasts a signed-out event.
func (b *Bus) PublishSignedOut(ctx context.Context) error {
	return b.Publish(ctx, EventSignedOut, nil)
}

// PublishTokenAcquired broadcasts a token-acquired event.
func (b *Bus) PublishTokenAcquired(ctx context.Context, payload TokenAcquiredPayload) error {
	return b.Publish(ctx, EventTokenAcquired, payload)
}

// PublishError broadcasts an error event.
func (b *Bus) PublishError(ctx context.Context, payload ErrorPayload) error {
	return b.Publish(ctx, EventError, payload)
}

// Subscribe registers a handler for validated inbound events and returns an
// unsubscribe function. Malformed messages are logged and dropped before
// they reach any handler; a bad payload must never crash a subscriber.
func (b *Bus) Subscribe(handler func(Event)) func() {
	return b.port.Subscribe(func(data []byte) {
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			b.log.WithError(&MalformedEventError{Reason: err.Error()}).
				Warn("Dropping undecodable auth event")
			b.recordDrop("undecodable")
			return
		}
		if err := ev.Validate(); err != nil {
			b.log.WithError(err).Warn("Dropping invalid auth event")
			b.recordDrop("invalid")
			return
		}
		handler(ev)
	})
}

func (b *Bus) recordDrop(reason string) {
	if b.onDrop != nil {
		b.onDrop(reason)
	}
}

// Close releases the underlying port.
func (b *Bus) Close() error {
	return b.port.Close()
}
