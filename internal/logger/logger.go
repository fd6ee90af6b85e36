package logger

import (
	"fmt"
	"os"
	"sync"
)

// LegacyEnv selects the plain-text fallback logger when set to "true"
const LegacyEnv = "SYNCENUM_USE_LEGACY_LOGGER"

// global 只由 CLI 使用；核心元件透過建構子取得 Logger
var global struct {
	sync.RWMutex
	current Logger
}

// Init installs the process-wide logger. It fails when one is already
// installed until Shutdown is called.
func Init(config Config) error {
	global.Lock()
	defer global.Unlock()

	if global.current != nil {
		return fmt.Errorf("logger already initialized; call Shutdown() before re-initializing")
	}

	l, err := build(config)
	if err != nil {
		return err
	}
	global.current = l
	return nil
}

func build(config Config) (Logger, error) {
	if os.Getenv(LegacyEnv) == "true" {
		l := NewLegacyLogger()
		l.SetLevel(config.Level)
		return l, nil
	}
	l, err := NewSlogLogger(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create slog logger: %w", err)
	}
	return l, nil
}

// Get returns the process-wide logger, or a NullLogger before Init
func Get() Logger {
	global.RLock()
	defer global.RUnlock()
	if global.current == nil {
		return &NullLogger{}
	}
	return global.current
}

// With 建立帶 context 的子 logger
func With(args ...any) Logger {
	return Get().With(args...)
}

// Sync 強制 flush
func Sync() error {
	return Get().Sync()
}

// Shutdown closes the process-wide logger. Safe to call more than once.
func Shutdown() error {
	global.Lock()
	l := global.current
	global.current = nil
	global.Unlock()

	if l == nil {
		return nil
	}
	return l.Shutdown()
}

// SetLevel changes the level of the process-wide logger
func SetLevel(level Level) {
	if l, ok := Get().(interface{ SetLevel(Level) }); ok {
		l.SetLevel(level)
	}
}

// NullLogger discards everything
type NullLogger struct{}

func (n *NullLogger) Debug(msg string, args ...any) {}
func (n *NullLogger) Info(msg string, args ...any)  {}
func (n *NullLogger) Warn(msg string, args ...any)  {}
func (n *NullLogger) Error(msg string, args ...any) {}
func (n *NullLogger) With(args ...any) Logger       { return n }
func (n *NullLogger) Sync() error                   { return nil }
func (n *NullLogger) Shutdown() error               { return nil }
