package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/cartwatch/pkg/logger"
	"github.com/angelmondragon/cartwatch/pkg/metrics"
	"go.uber.org/multierr"
)

const defaultInterval = 10 * time.Minute

// ErrCycleSkipped is returned by RunNow when another run holds the lock.
var ErrCycleSkipped = errors.New("another run holds the lock")

// ServiceParams configure the scheduler.
type ServiceParams struct {
	Logger       *logger.Logger
	Registry     *Registry
	Lock         Lock
	Metrics      *metrics.CronJobMetrics
	InitialDelay time.Duration
	Interval     time.Duration
}

// Service runs registered jobs once after InitialDelay and then every Interval.
type Service struct {
	logg         *logger.Logger
	registry     *Registry
	lock         Lock
	metrics      *metrics.CronJobMetrics
	initialDelay time.Duration
	interval     time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService builds a scheduler. A nil Lock falls back to an in-process lock.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.InitialDelay < 0 {
		return nil, fmt.Errorf("initial delay must not be negative")
	}
	lock := params.Lock
	if lock == nil {
		lock = NewLocalLock()
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:         params.Logger,
		registry:     registry,
		lock:         lock,
		metrics:      params.Metrics,
		initialDelay: params.InitialDelay,
		interval:     interval,
	}, nil
}

// Start launches the schedule in a background goroutine. Calling Start on a
// running service does nothing.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go func() {
		defer close(done)
		_ = s.Run(runCtx)
	}()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"initial_delay": s.initialDelay.String(),
		"interval":      s.interval.String(),
	}), "scheduler started")
}

// Stop ends the schedule and waits for an in-flight cycle to finish. It is
// safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logg.Info(context.Background(), "scheduler stopped")
}

// Run blocks, running cycles on the schedule until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	delay := time.NewTimer(s.initialDelay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-delay.C:
	}
	_ = s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "scheduler context canceled")
			return ctx.Err()
		case <-ticker.C:
			_ = s.runCycle(ctx)
		}
	}
}

// RunNow runs one cycle synchronously and returns the combined job errors.
func (s *Service) RunNow(ctx context.Context) error {
	return s.runCycle(ctx)
}

// runCycle runs every job once under the lock. Jobs run on a context that
// ignores cancellation so a shutdown lets the current copy finish.
func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		s.logg.Error(ctx, "failed to acquire scheduler lock", err)
		return fmt.Errorf("lock acquire: %w", err)
	}
	jobs := s.registry.Jobs()
	if !locked {
		s.logg.Info(ctx, "another run holds the lock; skipping this cycle")
		for _, job := range jobs {
			s.metrics.IncSkipped(job.Name())
		}
		return ErrCycleSkipped
	}
	runCtx := context.WithoutCancel(ctx)
	defer func() {
		if relErr := s.lock.Release(runCtx); relErr != nil {
			s.logg.Error(runCtx, "failed to release scheduler lock", relErr)
		}
	}()

	var errs error
	for _, job := range jobs {
		errs = multierr.Append(errs, s.runJob(runCtx, job))
	}
	return errs
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	jobCtx := s.logg.WithJob(ctx, job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")
	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
			s.logg.Error(jobCtx, "job panicked", err)
			s.metrics.IncFailure(job.Name())
		}
	}()

	err = job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(job.Name())
		return err
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(job.Name())
	return nil
}
