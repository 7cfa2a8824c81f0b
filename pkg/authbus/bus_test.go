package authbus

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestBusDeliversToOtherContexts(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()
	defer hub.Close()

	host := NewBus(hub.Attach(), "portal-shell", quietLogger())
	fragment := NewBus(hub.Attach(), "billing-app", quietLogger())

	var mu sync.Mutex
	var received []Event
	unsubscribe := fragment.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev)
	})
	defer unsubscribe()

	err := host.PublishSignedIn(ctx, SignedInPayload{
		LoginHint:     "ada@example.com",
		HomeAccountID: "acct-1.tenant",
		ClientID:      "portal-shell",
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, EventSignedIn, received[0].Type)
	assert.Equal(t, "portal-shell", received[0].AppName)

	payload, err := received[0].SignedIn()
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", payload.LoginHint)
}

func TestBusSelfDeliverySuppressed(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()
	defer hub.Close()

	host := NewBus(hub.Attach(), "portal-shell", quietLogger())

	delivered := 0
	unsubscribe := host.Subscribe(func(ev Event) {
		delivered++
	})
	defer unsubscribe()

	require.NoError(t, host.PublishSignedOut(ctx))
	require.NoError(t, host.PublishSignedOut(ctx))

	assert.Zero(t, delivered, "a publisher's own subscribers must never see its events")
}

func TestBusMalformedEventsDropped(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()
	defer hub.Close()

	publisher := hub.Attach()
	subscriber := NewBus(hub.Attach(), "billing-app", quietLogger())

	delivered := 0
	unsubscribe := subscriber.Subscribe(func(ev Event) {
		delivered++
	})
	defer unsubscribe()

	malformed := [][]byte{
		[]byte("not json"),
		[]byte(`{"type":"signed-in"}`), // missing timestamp, appName, payload
		[]byte(`{"type":"teleported","timestamp":"2026-01-02T15:04:05Z","appName":"x"}`), // unknown tag
		mustMarshal(t, Event{
			Type:      EventSignedIn,
			Timestamp: time.Now(),
			AppName:   "x",
			Payload:   json.RawMessage(`{"loginHint":""}`), // missing required fields
		}),
	}
	for _, data := range malformed {
		require.NoError(t, publisher.Publish(ctx, data))
	}

	assert.Zero(t, delivered, "malformed events must be absorbed, not delivered")

	// A valid event still gets through afterward
	valid := mustMarshal(t, Event{
		Type:      EventSignedOut,
		Timestamp: time.Now(),
		AppName:   "portal-shell",
	})
	require.NoError(t, publisher.Publish(ctx, valid))
	assert.Equal(t, 1, delivered)
}

func TestBusDropObserverSeesReasons(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()
	defer hub.Close()

	publisher := hub.Attach()
	subscriber := NewBus(hub.Attach(), "billing-app", quietLogger())

	var reasons []string
	subscriber.SetDropObserver(func(reason string) {
		reasons = append(reasons, reason)
	})
	unsubscribe := subscriber.Subscribe(func(ev Event) {})
	defer unsubscribe()

	require.NoError(t, publisher.Publish(ctx, []byte("not json")))
	require.NoError(t, publisher.Publish(ctx, []byte(`{"type":"signed-in"}`)))

	valid := mustMarshal(t, Event{
		Type:      EventSignedOut,
		Timestamp: time.Now(),
		AppName:   "portal-shell",
	})
	require.NoError(t, publisher.Publish(ctx, valid))

	assert.Equal(t, []string{"undecodable", "invalid"}, reasons)
}

func TestMemoryHubAttachAfterCloseReturnsClosedPort(t *testing.T) {
	hub := NewMemoryHub()
	hub.Close()

	port := hub.Attach()

	err := port.Publish(context.Background(), []byte("late"))
	require.Error(t, err, "a port attached after hub close must not look functional")
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()
	defer hub.Close()

	host := NewBus(hub.Attach(), "portal-shell", quietLogger())
	fragment := NewBus(hub.Attach(), "billing-app", quietLogger())

	delivered := 0
	unsubscribe := fragment.Subscribe(func(ev Event) {
		delivered++
	})

	require.NoError(t, host.PublishSignedOut(ctx))
	assert.Equal(t, 1, delivered)

	unsubscribe()
	require.NoError(t, host.PublishSignedOut(ctx))
	assert.Equal(t, 1, delivered, "no delivery after unsubscribe")
}

func TestBusMultipleFragmentsAllReceive(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()
	defer hub.Close()

	host := NewBus(hub.Attach(), "portal-shell", quietLogger())

	counts := make([]int, 3)
	for i := 0; i < 3; i++ {
		i := i
		fragment := NewBus(hub.Attach(), "fragment", quietLogger())
		unsubscribe := fragment.Subscribe(func(ev Event) {
			counts[i]++
		})
		defer unsubscribe()
	}

	require.NoError(t, host.PublishSignedOut(ctx))

	for i, c := range counts {
		assert.Equal(t, 1, c, "fragment %d", i)
	}
}

func mustMarshal(t *testing.T, ev Event) []byte {
	t.Helper()
	data, err := json.Marshal(&ev)
	require.NoError(t, err)
	return data
}
