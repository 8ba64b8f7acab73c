// Package supervisor manages named goroutines tied to a shared context:
// panic recovery, optional cancel-on-first-error, restart loops with
// backoff, and timeout-aware waiting on shutdown.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "tellbot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	errOnce  sync.Once
	firstErr atomic.Value // stores error
	wg       sync.WaitGroup
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels every goroutine once the first one fails.
func WithCancelOnError(v bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = v }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, log: logx.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first goroutine error, if any.
func (s *Supervisor) Err() error {
	if v := s.firstErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Go runs fn in a goroutine under the supervisor context. Panics are
// recovered and reported as errors.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.run(name, fn); err != nil {
			s.report(name, err)
		}
	}()
}

// Go0 is Go for functions without an error result.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// GoRestart keeps fn running until the context is done, restarting with
// exponential backoff between min and max after each exit.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, min, max time.Duration) {
	if min <= 0 {
		min = 500 * time.Millisecond
	}
	if max < min {
		max = min
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		delay := min
		for {
			start := time.Now()
			if err := s.run(name, fn); err != nil {
				s.report(name, err)
			}
			if s.ctx.Err() != nil {
				return
			}
			// A long healthy run resets the backoff.
			if time.Since(start) > max {
				delay = min
			}
			s.log.Warn("goroutine exited, restarting",
				logx.String("name", name), logx.Duration("delay", delay))
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > max {
				delay = max
			}
		}
	}()
}

func (s *Supervisor) run(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", name, r)
			s.log.Error("goroutine panicked",
				logx.String("name", name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	return fn(s.ctx)
}

func (s *Supervisor) report(name string, err error) {
	s.errOnce.Do(func() { s.firstErr.Store(err) })
	s.log.Error("goroutine failed", logx.String("name", name), logx.Err(err))
	if s.cancelOnErr {
		s.cancel()
	}
}

// Wait blocks until every goroutine has returned or ctx expires.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
