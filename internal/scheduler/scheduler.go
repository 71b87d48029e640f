// Package scheduler runs a job on a fixed interval in the background.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"murmur/internal/middleware"
)

// Job is one unit of periodic work. It must honour ctx.
type Job func(ctx context.Context)

// Scheduler fires Job every interval. Each run gets its own goroutine and
// its own timeout, so a slow run may overlap the next tick.
type Scheduler struct {
	name      string
	interval  time.Duration
	timeout   time.Duration
	immediate bool
	job       Job

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimeout bounds each run. Zero means the run only ends with Stop.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithImmediate controls whether Start runs the job once before the first tick.
func WithImmediate(run bool) Option {
	return func(s *Scheduler) { s.immediate = run }
}

// WithName labels log lines from this scheduler.
func WithName(name string) Option {
	return func(s *Scheduler) { s.name = name }
}

// New returns a stopped Scheduler. interval must be positive.
func New(interval time.Duration, job Job, opts ...Option) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}
	if job == nil {
		return nil, fmt.Errorf("scheduler job is nil")
	}
	s := &Scheduler{
		name:      "scheduler",
		interval:  interval,
		immediate: true,
		job:       job,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the ticker loop. Runs inherit ctx's values; cancelling ctx
// stops the loop like Stop does. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	middleware.Logger.Info("scheduler started",
		slog.String("scheduler", s.name),
		slog.Duration("interval", s.interval),
	)

	go s.loop(loopCtx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.immediate {
		s.fire(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

// fire starts one run without waiting for it.
func (s *Scheduler) fire(ctx context.Context) {
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.RunOnce(ctx)
	}()
}

// RunOnce runs the job synchronously with the configured timeout. A panic in
// the job is logged and swallowed.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.ErrorContext(ctx, "scheduler job panicked",
				slog.String("scheduler", s.name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	s.job(ctx)
}

// Stop halts the ticker, cancels in-flight runs and waits for them to return,
// bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	finished := make(chan struct{})
	go func() {
		s.running.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		middleware.Logger.Info("scheduler stopped", slog.String("scheduler", s.name))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler %s: waiting for running jobs: %w", s.name, ctx.Err())
	}
}
