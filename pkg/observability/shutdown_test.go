package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestShutdownRunsRegisteredFuncs(t *testing.T) {
	sm := NewShutdownManager(silentLogger(), nil, time.Second)

	var ran atomic.Int64
	sm.Register(func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	sm.Register(func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, int64(2), ran.Load())
}

func TestShutdownReportsErrors(t *testing.T) {
	sm := NewShutdownManager(silentLogger(), nil, time.Second)
	sm.Register(func(ctx context.Context) error {
		return errors.New("close failed")
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 errors")
}

func TestShutdownTimesOut(t *testing.T) {
	sm := NewShutdownManager(silentLogger(), nil, 50*time.Millisecond)
	sm.Register(func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestShutdownStopsServer(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(silentLogger(), server, time.Second)

	// Shutdown on a never-started server returns immediately.
	require.NoError(t, sm.Shutdown())
}
