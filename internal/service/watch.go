package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/Syncenum/internal/account"
	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/logger"
	"github.com/Ning0612/Syncenum/internal/scheduler"
	"github.com/Ning0612/Syncenum/internal/store"
)

// WatchOptions configure the background watcher
type WatchOptions struct {
	Interval   time.Duration
	Timeout    time.Duration
	RunOnStart bool

	// History records every pass when set
	History store.History

	Logger logger.Logger
}

// Watcher periodically reconciles the watched paths of every account.
// Merges register their changes with each account's tracker, so pending
// change sets fill up between enumerations.
type Watcher struct {
	mu        sync.RWMutex
	registry  *account.Registry
	opts      WatchOptions
	log       logger.Logger
	scheduler *scheduler.IntervalScheduler
}

// WatchStatus represents the current watcher status
type WatchStatus struct {
	Running        bool
	Targets        []scheduler.Target
	SchedulerStats *scheduler.Status
	LastRuns       []store.RunRecord
}

// NewWatcher creates a watcher over the accounts of reg
func NewWatcher(reg *account.Registry, opts WatchOptions) (*Watcher, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	log := opts.Logger
	if log == nil {
		log = &logger.NullLogger{}
	}
	return &Watcher{registry: reg, opts: opts, log: log}, nil
}

// Targets lists the watched paths of every account. An account without
// watch paths is watched at its home path.
func (w *Watcher) Targets() []scheduler.Target {
	var targets []scheduler.Target
	for _, name := range w.registry.Names() {
		c, err := w.registry.Get(name)
		if err != nil {
			continue
		}
		paths := c.Account.Watch
		if len(paths) == 0 {
			paths = []string{c.Account.HomePath()}
		}
		for _, p := range paths {
			targets = append(targets, scheduler.Target{Account: name, Path: domain.CleanPath(p)})
		}
	}
	return targets
}

// Start starts the scheduling loop in the background
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.scheduler != nil {
		return fmt.Errorf("watcher is already running")
	}

	sched, err := scheduler.NewIntervalScheduler(scheduler.Config{
		Interval:   w.opts.Interval,
		Timeout:    w.opts.Timeout,
		RunOnStart: w.opts.RunOnStart,
		Targets:    w.Targets(),
	}, w)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	w.scheduler = sched
	w.log.Info("Watcher started", "interval", w.opts.Interval.String(), "targets", len(w.Targets()))
	return nil
}

// Done is closed when the scheduling loop exits; nil before Start
func (w *Watcher) Done() <-chan struct{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.scheduler == nil {
		return nil
	}
	return w.scheduler.Done()
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.scheduler == nil {
		return fmt.Errorf("watcher is not running")
	}
	// 迴圈可能已因 ctx 取消結束
	if err := w.scheduler.Stop(); err != nil {
		<-w.scheduler.Done()
	}
	w.scheduler = nil
	w.log.Info("Watcher stopped")
	return nil
}

// Status returns the current watcher status
func (w *Watcher) Status(ctx context.Context) *WatchStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := &WatchStatus{
		Running: w.scheduler != nil,
		Targets: w.Targets(),
	}
	if w.scheduler != nil {
		status.SchedulerStats = w.scheduler.Status()
	}
	if w.opts.History != nil {
		for _, name := range w.registry.Names() {
			runs, err := w.opts.History.GetHistory(ctx, name, 1)
			if err == nil {
				status.LastRuns = append(status.LastRuns, runs...)
			}
		}
	}
	return status
}

// Run reconciles one target and records the pass. Implements scheduler.Runner.
func (w *Watcher) Run(ctx context.Context, target scheduler.Target) error {
	c, err := w.registry.Get(target.Account)
	if err != nil {
		return err
	}

	record := store.RunRecord{
		Account:   target.Account,
		Path:      target.Path,
		StartTime: time.Now(),
		Status:    store.RunSuccess,
	}

	result, err := c.Engine.Reconcile(ctx, target.Path)
	record.EndTime = time.Now()
	if err != nil {
		record.Status = store.RunFailed
		record.Error = err.Error()
		c.Logger().Warn("Watch pass failed", "path", target.Path, "error", err)
	} else {
		record.Updated = len(result.Updated)
		record.Deleted = len(result.Deleted)
		if result.Changed {
			c.Logger().Info("Watch pass merged changes",
				"path", target.Path,
				"updated", record.Updated,
				"deleted", record.Deleted,
			)
		}
	}

	w.saveRun(ctx, record)
	return err
}

func (w *Watcher) saveRun(ctx context.Context, record store.RunRecord) {
	if w.opts.History == nil {
		return
	}
	// 取消後仍要寫入紀錄
	if err := w.opts.History.SaveRun(context.WithoutCancel(ctx), record); err != nil {
		w.log.Warn("Failed to save run record", "account", record.Account, "path", record.Path, "error", err)
	}
}
