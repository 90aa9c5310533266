// Package logx provides component-scoped logging with env-controlled
// debug output and a bounded in-memory buffer of recent entries.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger writes leveled, component-tagged lines to stderr.
type Logger struct {
	component string
	logger    *log.Logger
}

// Entry is a structured copy of a log line kept in the recent-entry buffer.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

type ringBuffer struct {
	entries []Entry
	mu      sync.RWMutex
	maxSize int
}

var (
	debugMu      sync.RWMutex
	debugEnabled bool
	debugDomains map[string]bool // nil means all domains

	buffer = &ringBuffer{maxSize: 1000}
)

func init() { //nolint:gochecknoinits // env-driven debug setup
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugEnabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugDomains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			debugDomains[strings.TrimSpace(d)] = true
		}
	}
}

// NewLogger creates a logger tagged with the given component name.
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0), // stderr keeps stdout clean for CLI output
	}
}

// SetDebug overrides the env-derived debug setting.
func SetDebug(enabled bool) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugEnabled = enabled
}

// DebugEnabledFor reports whether debug logging is active for a component.
func DebugEnabledFor(component string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debugEnabled {
		return false
	}
	if debugDomains == nil {
		return true
	}
	return debugDomains[component]
}

func (b *ringBuffer) add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
}

// RecentEntries returns a copy of buffered log entries, optionally
// filtered by component.
func RecentEntries(component string) []Entry {
	buffer.mu.RLock()
	defer buffer.mu.RUnlock()
	out := make([]Entry, 0, len(buffer.entries))
	for _, e := range buffer.entries {
		if component != "" && !strings.EqualFold(e.Component, component) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (l *Logger) log(level Level, format string, args ...any) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", ts, l.component, level, msg)
	buffer.add(Entry{Timestamp: ts, Component: l.component, Level: string(level), Message: msg})
}

// Debug logs at DEBUG level when debug output is enabled for the component.
func (l *Logger) Debug(format string, args ...any) {
	if !DebugEnabledFor(l.component) {
		return
	}
	l.log(LevelDebug, format, args...)
}

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...any) { l.log(LevelInfo, format, args...) }

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...any) { l.log(LevelWarn, format, args...) }

// Error logs at ERROR level.
func (l *Logger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

// Component returns the component tag.
func (l *Logger) Component() string { return l.component }

var defaultLogger = NewLogger("system")

// Infof logs to the default system logger.
func Infof(format string, args ...any) { defaultLogger.Info(format, args...) }

// Warnf logs to the default system logger.
func Warnf(format string, args ...any) { defaultLogger.Warn(format, args...) }

// Errorf logs and returns the formatted error:
//
//	return logx.Errorf("load config: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err and returns the wrapped error. Returns nil
// when err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
