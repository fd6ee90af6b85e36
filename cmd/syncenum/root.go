package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Ning0612/Syncenum/internal/account"
	"github.com/Ning0612/Syncenum/internal/config"
	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/logger"
	"github.com/Ning0612/Syncenum/internal/metrics"
	"github.com/Ning0612/Syncenum/internal/store"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "syncenum",
	Short: "Enumerate remote file listings and track incremental changes",
	Long: `syncenum keeps a local metadata cache of remote listings (local disk,
Google Drive, S3) and serves paged enumerations and change sets from it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: search standard paths)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	rootCmd.AddCommand(enumerateCmd, watchCmd, favoriteCmd, tagCmd, versionCmd)
}

// app holds the components shared by the commands
type app struct {
	cfg      *config.Config
	store    store.Store
	registry *account.Registry
	log      logger.Logger
}

type setupOptions struct {
	// cfg is loaded from --config when nil
	cfg      *config.Config
	watch    bool
	registry prometheus.Registerer
}

func setup(ctx context.Context, opts setupOptions) (*app, error) {
	cfg := opts.cfg
	if cfg == nil {
		var err error
		if cfg, err = loadConfig(); err != nil {
			return nil, err
		}
	}

	lc := cfg.LoggerConfig()
	if logLevel != "" {
		lc.Level = logger.ParseLevel(logLevel)
	}
	if opts.watch {
		lc = lc.ForWatch()
	}
	if err := logger.Init(lc); err != nil {
		return nil, err
	}
	log := logger.Get()

	st, err := account.OpenStore(cfg)
	if err != nil {
		_ = logger.Shutdown()
		return nil, err
	}

	reg := account.NewRegistry(st, account.Options{
		Retry:   cfg.Retry,
		Logger:  log,
		Metrics: metrics.New(opts.registry),
	})

	a := &app{cfg: cfg, store: st, registry: reg, log: log}
	for _, acct := range cfg.Accounts {
		if _, err := reg.Add(ctx, acct); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if errors.Is(err, domain.ErrConfigNotFound) {
		return nil, fmt.Errorf("%w (pass --config or create config.yaml)", err)
	}
	return cfg, err
}

// account returns the context of a configured account
func (a *app) account(name string) (*account.Context, error) {
	return a.registry.Get(name)
}

func (a *app) Close() {
	if err := a.registry.Close(); err != nil {
		a.log.Warn("Failed to close listers", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("Failed to close store", "error", err)
	}
	_ = logger.Shutdown()
}
