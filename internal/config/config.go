package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/logger"
	"github.com/Ning0612/Syncenum/internal/retry"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreBadger = "badger"
)

// Config represents the complete configuration for syncenum
type Config struct {
	// DataDir holds the metadata store, run history and the watcher lock
	DataDir string `mapstructure:"data_dir" validate:"required"`

	Store    StoreConfig      `mapstructure:"store"`
	Accounts []domain.Account `mapstructure:"accounts" validate:"required,min=1,dive"`
	Retry    retry.Config     `mapstructure:"retry"`
	Watch    WatchConfig      `mapstructure:"watch"`
	Logging  LoggingConfig    `mapstructure:"logging"`
	Metrics  MetricsConfig    `mapstructure:"metrics"`
}

// StoreConfig selects the metadata store backend
type StoreConfig struct {
	Type string `mapstructure:"type" validate:"oneof=memory sqlite badger"`

	// Path overrides the backend location under DataDir
	Path string `mapstructure:"path"`
}

// WatchConfig configures the background watcher
type WatchConfig struct {
	Interval   time.Duration `mapstructure:"interval" validate:"gte=0"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// LoggingConfig is the file representation of logger.Config
type LoggingConfig struct {
	Level   string   `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format  string   `mapstructure:"format" validate:"omitempty,oneof=text json"`
	Outputs []string `mapstructure:"outputs" validate:"dive,oneof=stdout stderr file"`

	File struct {
		Path       string `mapstructure:"path"`
		MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
		MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
		MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
		Compress   bool   `mapstructure:"compress"`
	} `mapstructure:"file"`

	Watch struct {
		Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
		File  string `mapstructure:"file"`
	} `mapstructure:"watch"`
}

// MetricsConfig configures Prometheus exposition for the watcher
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

var validate = validator.New()

// Validate checks struct tags first, then the rules tags cannot express
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	names := make(map[string]bool)
	for i, a := range c.Accounts {
		if names[a.Name] {
			return fmt.Errorf("%w: accounts[%d]: duplicate account name: %s", domain.ErrConfigInvalid, i, a.Name)
		}
		names[a.Name] = true

		if !a.Transport.Type.IsValid() {
			return fmt.Errorf("%w: account %s: %w: %s", domain.ErrConfigInvalid, a.Name, domain.ErrTransportNotFound, a.Transport.Type)
		}
		for _, p := range a.Watch {
			if p == "" {
				return fmt.Errorf("%w: account %s: empty watch path", domain.ErrConfigInvalid, a.Name)
			}
		}
	}

	if c.Retry.MaxWait > 0 && c.Retry.InitialWait > c.Retry.MaxWait {
		return fmt.Errorf("%w: retry.initial_wait exceeds retry.max_wait", domain.ErrConfigInvalid)
	}
	return nil
}

// formatValidationError reports the first failed tag with its field path
func formatValidationError(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		e := errs[0]
		return fmt.Errorf("%w: %s: validation failed on '%s' tag (value: %v)",
			domain.ErrConfigInvalid, e.Namespace(), e.Tag(), e.Value())
	}
	return fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
}

// GetAccount returns an account by name
func (c *Config) GetAccount(name string) (*domain.Account, error) {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, name)
}

// StorePath returns the backend location, defaulting under DataDir
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return ExpandPath(c.Store.Path)
	}
	switch c.Store.Type {
	case StoreBadger:
		return filepath.Join(c.DataDir, "badger")
	default:
		return c.DataDir
	}
}

// LoggerConfig converts the logging section to a logger.Config
func (c *Config) LoggerConfig() logger.Config {
	lc := logger.Config{
		Level:  logger.ParseLevel(c.Logging.Level),
		Format: logger.ParseFormat(c.Logging.Format),
		File: logger.FileConfig{
			Path:       ExpandPath(c.Logging.File.Path),
			MaxSizeMB:  c.Logging.File.MaxSizeMB,
			MaxAgeDays: c.Logging.File.MaxAgeDays,
			MaxBackups: c.Logging.File.MaxBackups,
			Compress:   c.Logging.File.Compress,
		},
	}
	for _, o := range c.Logging.Outputs {
		out := logger.ParseOutput(o)
		if out == logger.OutputFile {
			lc.File.Enabled = c.Logging.File.Path != ""
		}
		lc.Outputs = append(lc.Outputs, logger.OutputConfig{Type: out})
	}
	if c.Logging.Watch.Level != "" || c.Logging.Watch.File != "" {
		lc.Watch = logger.WatchConfig{
			Enabled:  true,
			Level:    logger.ParseLevel(c.Logging.Watch.Level),
			FilePath: ExpandPath(c.Logging.Watch.File),
		}
		if c.Logging.Watch.Level == "" {
			lc.Watch.Level = lc.Level
		}
	}
	return lc
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}
