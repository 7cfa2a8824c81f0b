package authbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisPort(t *testing.T, mr *miniredis.Miniredis) *RedisPort {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	port, err := NewRedisPort(context.Background(), client, "", quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { port.Close() })
	return port
}

func TestRedisPortCrossProcessDelivery(t *testing.T) {
	mr := miniredis.RunT(t)

	hostPort := newTestRedisPort(t, mr)
	fragmentPort := newTestRedisPort(t, mr)

	var mu sync.Mutex
	var received [][]byte
	unsubscribe := fragmentPort.Subscribe(func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, data)
	})
	defer unsubscribe()

	require.NoError(t, hostPort.Publish(context.Background(), []byte(`{"hello":"fragment"}`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.JSONEq(t, `{"hello":"fragment"}`, string(received[0]))
	mu.Unlock()
}

func TestRedisPortSelfDeliverySuppressed(t *testing.T) {
	mr := miniredis.RunT(t)

	hostPort := newTestRedisPort(t, mr)
	fragmentPort := newTestRedisPort(t, mr)

	var selfDelivered, otherDelivered int
	var mu sync.Mutex

	unsubSelf := hostPort.Subscribe(func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		selfDelivered++
	})
	defer unsubSelf()

	unsubOther := fragmentPort.Subscribe(func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		otherDelivered++
	})
	defer unsubOther()

	require.NoError(t, hostPort.Publish(context.Background(), []byte(`{}`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return otherDelivered == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Zero(t, selfDelivered, "publisher's own subscribers must not receive the message")
	mu.Unlock()
}

func TestRedisPortPublishAfterClose(t *testing.T) {
	mr := miniredis.RunT(t)

	port := newTestRedisPort(t, mr)
	require.NoError(t, port.Close())

	err := port.Publish(context.Background(), []byte(`{}`))
	assert.Error(t, err)

	// Closing twice is safe
	assert.NoError(t, port.Close())
}
