package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Ning0612/Syncenum/internal/lock"
	"github.com/Ning0612/Syncenum/internal/metrics"
	"github.com/Ning0612/Syncenum/internal/service"
	"github.com/Ning0612/Syncenum/internal/store"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reconcile watched paths periodically",
	Long: `Run in the foreground and reconcile the watched paths of every account on
an interval. Only one watcher may run per data directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var reg *prometheus.Registry
		if enabled, _ := cmd.Flags().GetBool("metrics"); enabled {
			reg = prometheus.NewRegistry()
		}
		return runWatch(ctx, reg)
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "override the configured watch interval")
	watchCmd.Flags().Bool("metrics", false, "expose Prometheus metrics (also enabled by metrics.enabled)")
}

func runWatch(ctx context.Context, reg *prometheus.Registry) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if reg == nil && cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
	}
	var registerer prometheus.Registerer
	if reg != nil {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		registerer = reg
	}

	dirLock, err := lock.NewDirLock(cfg.DataDir)
	if err != nil {
		return err
	}
	if err := dirLock.Acquire("watch"); err != nil {
		var held *lock.HeldError
		if errors.As(err, &held) {
			return fmt.Errorf("another watcher is running: %w", err)
		}
		return err
	}
	defer dirLock.Release()

	a, err := setup(ctx, setupOptions{cfg: cfg, watch: true, registry: registerer})
	if err != nil {
		return err
	}
	defer a.Close()

	if reg != nil {
		addr := a.cfg.Metrics.Addr
		srv := metrics.NewServer(addr, reg)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		a.log.Info("Metrics server listening", "addr", srv.Addr())
	}

	interval := a.cfg.Watch.Interval
	if watchInterval > 0 {
		interval = watchInterval
	}
	opts := service.WatchOptions{
		Interval:   interval,
		Timeout:    a.cfg.Watch.Timeout,
		RunOnStart: a.cfg.Watch.RunOnStart,
		Logger:     a.log,
	}
	if h, ok := a.store.(store.History); ok {
		opts.History = h
	}

	w, err := service.NewWatcher(a.registry, opts)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		a.log.Info("Shutdown requested")
	case <-w.Done():
	}
	return w.Stop()
}
