package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// IntervalScheduler implements periodic scheduling using time.Ticker
type IntervalScheduler struct {
	config Config
	runner Runner

	// Runtime state
	mu          sync.RWMutex
	running     bool
	stopped     bool      // Track if stopped to prevent restart
	stopOnce    sync.Once // Ensure Stop() is idempotent
	closeOnce   sync.Once // Ensure stoppedChan is closed exactly once
	stopChan    chan struct{}
	stoppedChan chan struct{}
	trigger     chan struct{}

	// Statistics
	stats struct {
		lastRunTime    time.Time
		nextRunTime    time.Time
		totalRuns      int
		successfulRuns int
		failedRuns     int
		lastError      string
	}
}

var _ Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler creates a new interval-based scheduler
func NewIntervalScheduler(config Config, runner Runner) (*IntervalScheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", config.Interval)
	}
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if len(config.Targets) == 0 {
		return nil, fmt.Errorf("no watch targets configured")
	}

	return &IntervalScheduler{
		config:      config,
		runner:      runner,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
		trigger:     make(chan struct{}, 1),
	}, nil
}

// Start begins the scheduling loop
func (s *IntervalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if s.stopped {
		return fmt.Errorf("scheduler cannot be restarted after stop")
	}

	s.running = true
	s.stats.nextRunTime = time.Now().Add(s.config.Interval)
	if s.config.RunOnStart {
		s.stats.nextRunTime = time.Now()
		s.Trigger()
	}

	go s.run(ctx)
	return nil
}

// Trigger requests an immediate pass. Requests made while one is already
// pending are coalesced.
func (s *IntervalScheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Done is closed when the scheduling loop has exited
func (s *IntervalScheduler) Done() <-chan struct{} {
	return s.stoppedChan
}

// run is the main scheduling loop
func (s *IntervalScheduler) run(ctx context.Context) {
	defer s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.running = false
		s.mu.Unlock()
		close(s.stoppedChan)
	})

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-s.trigger:
			s.executePass(ctx)
		case <-ticker.C:
			s.executePass(ctx)
		}
	}
}

// executePass runs every target and keeps going past failures
func (s *IntervalScheduler) executePass(ctx context.Context) {
	s.mu.Lock()
	s.stats.lastRunTime = time.Now()
	s.stats.totalRuns++
	s.stats.nextRunTime = time.Now().Add(s.config.Interval)
	s.mu.Unlock()

	var errs []error
	for _, target := range s.config.Targets {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := s.runTarget(ctx, target); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(errs) > 0 {
		s.stats.failedRuns++
		s.stats.lastError = errors.Join(errs...).Error()
		return
	}
	s.stats.successfulRuns++
	s.stats.lastError = ""
}

func (s *IntervalScheduler) runTarget(ctx context.Context, target Target) error {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}
	return s.runner.Run(ctx, target)
}

// Stop gracefully stops the scheduler
func (s *IntervalScheduler) Stop() error {
	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.RUnlock()

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	<-s.stoppedChan
	return nil
}

// Status returns the current scheduler status
func (s *IntervalScheduler) Status() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Status{
		Running:        s.running,
		LastRunTime:    s.stats.lastRunTime,
		NextRunTime:    s.stats.nextRunTime,
		TotalRuns:      s.stats.totalRuns,
		SuccessfulRuns: s.stats.successfulRuns,
		FailedRuns:     s.stats.failedRuns,
		LastError:      s.stats.lastError,
	}
}
