package runner

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTestTimeout is the cancellation cause of a test whose deadline passed
var ErrTestTimeout = errors.New("test timed out")

// Supervisor owns the deadline timer of the current test
type Supervisor struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Arm derives the test context. With d > 0 the context is cancelled with
// ErrTestTimeout once d elapses, unless Disarm is called first. The returned
// cancel func releases the context and must always be called.
func (s *Supervisor) Arm(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	s.Disarm()

	ctx, cancel := context.WithCancelCause(ctx)
	s.mu.Lock()
	if d > 0 {
		s.timer = time.AfterFunc(d, func() {
			cancel(ErrTestTimeout)
		})
	}
	s.mu.Unlock()

	return ctx, func() {
		s.Disarm()
		cancel(nil)
	}
}

// Disarm stops the timer. It reports whether a pending deadline was cancelled.
func (s *Supervisor) Disarm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return false
	}
	stopped := s.timer.Stop()
	s.timer = nil
	return stopped
}

// timedOut is true when err or the context cause is the deadline
func timedOut(ctx context.Context, err error) bool {
	if errors.Is(err, ErrTestTimeout) {
		return true
	}
	return ctx.Err() != nil && errors.Is(context.Cause(ctx), ErrTestTimeout)
}
