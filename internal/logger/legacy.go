package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// LegacyLogger 簡易 logger（fmt 輸出，用於回退）
type LegacyLogger struct {
	mu     *sync.Mutex
	level  *Level
	out    io.Writer
	fields string
}

// NewLegacyLogger 建立寫到 stderr 的 legacy logger
func NewLegacyLogger() *LegacyLogger {
	return NewLegacyLoggerTo(os.Stderr)
}

// NewLegacyLoggerTo 建立寫到 out 的 legacy logger
func NewLegacyLoggerTo(out io.Writer) *LegacyLogger {
	level := LevelInfo
	return &LegacyLogger{mu: &sync.Mutex{}, level: &level, out: out}
}

// SetLevel 設定日誌級別，子 logger 共用
func (l *LegacyLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.level = level
}

func (l *LegacyLogger) write(level Level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < *l.level {
		return
	}
	fmt.Fprintf(l.out, "[%s] %s%s%s\n", strings.ToUpper(level.String()), msg, l.fields, renderArgs(args))
}

func renderArgs(args []any) string {
	var b strings.Builder
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return b.String()
}

func (l *LegacyLogger) Debug(msg string, args ...any) { l.write(LevelDebug, msg, args) }
func (l *LegacyLogger) Info(msg string, args ...any)  { l.write(LevelInfo, msg, args) }
func (l *LegacyLogger) Warn(msg string, args ...any)  { l.write(LevelWarn, msg, args) }
func (l *LegacyLogger) Error(msg string, args ...any) { l.write(LevelError, msg, args) }

// With 建立帶固定欄位的子 logger
func (l *LegacyLogger) With(args ...any) Logger {
	child := *l
	child.fields = l.fields + renderArgs(args)
	return &child
}

// Sync 強制 flush
func (l *LegacyLogger) Sync() error {
	return nil
}

// Shutdown 優雅關閉
func (l *LegacyLogger) Shutdown() error {
	return nil
}
