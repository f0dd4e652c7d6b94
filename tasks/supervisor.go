// Package tasks runs gpiod's background work: the extra sequence, melody
// playback and deferred all-off timers. Every goroutine is started through a
// Supervisor so shutdown can cancel and wait for all of them.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/gpiod/logger"
)

// ErrShutdownTimeout is returned by Shutdown when tasks outlive the timeout.
var ErrShutdownTimeout = errors.New("tasks: shutdown timed out")

// Supervisor starts named tasks and waits for them on shutdown. A task error
// or panic is logged and does not affect other tasks.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu     sync.Mutex
	closed bool

	active atomic.Int64
	log    logger.Logger
}

// NewSupervisor creates a Supervisor whose tasks observe a context derived
// from parent.
//
// Parameters:
//   - parent: Context whose cancellation also cancels every task
//   - log: Logger for task failures
//
// Returns:
//   - A Supervisor accepting tasks until Shutdown is called
func NewSupervisor(parent context.Context, log logger.Logger) *Supervisor {
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{ctx: ctx, cancel: cancel, log: log}
}

// Go starts fn in its own goroutine. It returns false, without starting
// anything, once Shutdown has begun.
//
// Parameters:
//   - name: Task name used in logs
//   - fn: Task body; ctx is cancelled on shutdown
//
// Returns:
//   - true if the task was started
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.log.Warn("task refused during shutdown", logger.F("task", name))
		return false
	}

	s.active.Add(1)
	s.group.Go(func() (err error) {
		defer s.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task %s panicked: %v", name, r)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("task failed", logger.F("task", name), logger.Err(err))
			}
			err = nil
		}()

		return fn(s.ctx)
	})

	return true
}

// Active returns the number of running tasks.
func (s *Supervisor) Active() int {
	return int(s.active.Load())
}

// Shutdown refuses new tasks, cancels running ones and waits for them.
//
// Parameters:
//   - timeout: Maximum time to wait; 0 waits indefinitely
//
// Returns:
//   - ErrShutdownTimeout if tasks were still running when timeout elapsed
func (s *Supervisor) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %d still running", ErrShutdownTimeout, s.Active())
	}
}
