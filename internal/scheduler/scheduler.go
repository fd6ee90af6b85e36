// Package scheduler triggers background reconcile passes.
package scheduler

import (
	"context"
	"time"
)

// Scheduler defines the interface for watch schedulers
type Scheduler interface {
	// Start begins the scheduling loop
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler
	Stop() error

	// Status returns the current scheduler status
	Status() *Status
}

// Status represents the current state of a scheduler
type Status struct {
	Running        bool
	LastRunTime    time.Time
	NextRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastError      string
}

// Target is one watched container of one account
type Target struct {
	Account string
	Path    string
}

// String returns account:path
func (t Target) String() string {
	return t.Account + ":" + t.Path
}

// Config contains scheduler configuration
type Config struct {
	// Interval specifies the duration between passes
	Interval time.Duration

	// Timeout bounds one target's pass; zero means no limit
	Timeout time.Duration

	// RunOnStart runs a pass immediately instead of waiting one interval
	RunOnStart bool

	// Targets are reconciled in order on every pass
	Targets []Target
}

// Runner reconciles one target
type Runner interface {
	Run(ctx context.Context, target Target) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context, target Target) error

// Run implements Runner
func (f RunnerFunc) Run(ctx context.Context, target Target) error {
	return f(ctx, target)
}
