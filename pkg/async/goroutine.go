package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo runs fn in a goroutine with a timeout, panic recovery, and error
// logging. Use it for fire-and-forget work whose failure should be logged,
// not crash the process.
func SafeGo(parent context.Context, log *logrus.Logger, timeout time.Duration, task string, fn func(context.Context) error) {
	if log == nil {
		log = logrus.New()
	}
	go func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.WithFields(logrus.Fields{
					"task":  task,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("Panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			log.WithError(err).WithField("task", task).Error("Background task failed")
		}
	}()
}

// Batch runs fn over items with at most workers concurrent executions and
// returns the errors encountered, in no particular order.
func Batch[T any](ctx context.Context, workers int, timeout time.Duration, items []T, fn func(context.Context, T) error) []error {
	if workers < 1 {
		workers = 1
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	sem := make(chan struct{}, workers)

	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			record(err)
			break
		}
		select {
		case <-ctx.Done():
			record(ctx.Err())
			wg.Wait()
			return errs
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					record(fmt.Errorf("panic: %v", r))
				}
			}()

			taskCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := fn(taskCtx, item); err != nil {
				record(err)
			}
		}(item)
	}

	wg.Wait()
	return errs
}
