package async

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSafeGoRunsTask(t *testing.T) {
	done := make(chan struct{})
	SafeGo(context.Background(), discardLogger(), time.Second, "test", func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestSafeGoRecoversPanic(t *testing.T) {
	ran := make(chan struct{})
	SafeGo(context.Background(), discardLogger(), time.Second, "test", func(ctx context.Context) error {
		defer close(ran)
		panic("boom")
	})

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
	// Reaching here without the test binary dying is the assertion.
}

func TestSafeGoEnforcesTimeout(t *testing.T) {
	expired := make(chan struct{})
	SafeGo(context.Background(), discardLogger(), 10*time.Millisecond, "test", func(ctx context.Context) error {
		<-ctx.Done()
		close(expired)
		return ctx.Err()
	})

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("context never expired")
	}
}

func TestBatchRunsAllItems(t *testing.T) {
	var ran atomic.Int64
	errs := Batch(context.Background(), 4, time.Second, []int{1, 2, 3, 4, 5, 6, 7, 8}, func(ctx context.Context, n int) error {
		ran.Add(1)
		return nil
	})

	assert.Empty(t, errs)
	assert.Equal(t, int64(8), ran.Load())
}

func TestBatchCollectsErrors(t *testing.T) {
	errs := Batch(context.Background(), 2, time.Second, []int{1, 2, 3, 4}, func(ctx context.Context, n int) error {
		if n%2 == 0 {
			return errors.New("even")
		}
		return nil
	})

	assert.Len(t, errs, 2)
}

func TestBatchRecoversPanics(t *testing.T) {
	errs := Batch(context.Background(), 2, time.Second, []int{1, 2}, func(ctx context.Context, n int) error {
		if n == 1 {
			panic("boom")
		}
		return nil
	})

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "panic")
}

func TestBatchHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := Batch(ctx, 1, time.Second, []int{1, 2, 3}, func(ctx context.Context, n int) error {
		return nil
	})
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[len(errs)-1], context.Canceled)
}
