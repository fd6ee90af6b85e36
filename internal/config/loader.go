package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/retry"
)

// EnvPrefix prefixes environment overrides, e.g. SYNCENUM_STORE_TYPE
const EnvPrefix = "SYNCENUM"

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "syncenum"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "syncenum"))
		paths = append(paths, filepath.Join(homeDir, ".syncenum"))
	}
	return paths
}

// DefaultDataDir returns the per-user data directory
func DefaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "syncenum")
	}
	return filepath.Join(os.TempDir(), "syncenum")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	r := retry.DefaultConfig()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("store.type", StoreSQLite)
	v.SetDefault("retry.max_attempts", r.MaxAttempts)
	v.SetDefault("retry.initial_wait", r.InitialWait)
	v.SetDefault("retry.max_wait", r.MaxWait)
	v.SetDefault("retry.multiplier", r.Multiplier)
	v.SetDefault("retry.jitter", r.Jitter)
	v.SetDefault("watch.interval", "5m")
	v.SetDefault("watch.timeout", "2m")
	v.SetDefault("watch.run_on_start", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputs", []string{"stderr"})
	v.SetDefault("logging.file.max_size_mb", 10)
	v.SetDefault("logging.file.max_age_days", 30)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("metrics.addr", "127.0.0.1:9464")
}

// Load reads and parses a configuration file.
// If path is empty, searches default locations for config.yaml
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(ExpandPath(path))
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	return decode(v)
}

// LoadFromString parses configuration from a YAML string
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	cfg.DataDir = ExpandPath(cfg.DataDir)
	for i := range cfg.Accounts {
		a := &cfg.Accounts[i]
		if a.PageSize == 0 {
			a.PageSize = domain.DefaultPageSize
		}
		a.Home = domain.CleanPath(a.Home)
		if a.Transport.Type == domain.TransportLocal {
			a.Transport.Root = ExpandPath(a.Transport.Root)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
