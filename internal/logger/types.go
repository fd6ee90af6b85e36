package logger

import (
	"io"
	"strings"
)

// Logger 統一日誌介面
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	Sync() error     // 強制 flush
	Shutdown() error // 優雅關閉
}

// Level 日誌級別
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel parses a string into a Level (case-insensitive)
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format 日誌格式
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// String returns the string representation of the format
func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// ParseFormat parses a string into a Format (case-insensitive)
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// Output 日誌輸出目標
type Output int

const (
	OutputStdout Output = iota
	OutputStderr
	OutputFile
)

// ParseOutput parses an output name; unknown names map to stderr
func ParseOutput(s string) Output {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stdout":
		return OutputStdout
	case "file":
		return OutputFile
	default:
		return OutputStderr
	}
}

// Config 日誌配置
type Config struct {
	Level   Level
	Format  Format
	Outputs []OutputConfig
	File    FileConfig

	// Watch overrides level and file for the long-running watcher
	Watch WatchConfig
}

// OutputConfig 輸出配置
type OutputConfig struct {
	Type   Output
	Writer io.Writer // 可選，用於測試
}

// FileConfig 檔案日誌配置
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int  // 單位：MB
	MaxAgeDays int  // 保留天數
	MaxBackups int  // 保留備份數
	Compress   bool // 是否壓縮
}

// WatchConfig watch 模式專用配置
type WatchConfig struct {
	Enabled  bool
	Level    Level
	FilePath string
}

// ForWatch returns the config used by the watch command. When the override
// is enabled its level applies and its file path replaces the regular one.
func (c Config) ForWatch() Config {
	if !c.Watch.Enabled {
		return c
	}
	out := c
	out.Level = c.Watch.Level
	if c.Watch.FilePath != "" {
		out.File.Enabled = true
		out.File.Path = c.Watch.FilePath
		hasFile := false
		for _, o := range c.Outputs {
			if o.Type == OutputFile {
				hasFile = true
			}
		}
		if !hasFile {
			out.Outputs = append(append([]OutputConfig(nil), c.Outputs...), OutputConfig{Type: OutputFile})
		}
	}
	return out
}
