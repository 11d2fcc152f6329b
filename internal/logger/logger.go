// Package logger provides a minimal leveled logger shared by all components.
// Output goes to stderr by default; SetFile mirrors output to a log file so
// headless runs can be inspected after the fact.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents logging verbosity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu      sync.Mutex
	level   = LevelInfo
	out     io.Writer = os.Stderr
	logFile *os.File
)

// SetLevel sets the minimum level that will be emitted.
// Accepts "debug", "info", "warn", "error" (case-insensitive).
func SetLevel(name string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(name) {
	case "debug":
		level = LevelDebug
	case "warn":
		level = LevelWarn
	case "error":
		level = LevelError
	default:
		level = LevelInfo
	}
}

// SetFile mirrors log output to the given file path, creating it if needed.
func SetFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	out = io.MultiWriter(os.Stderr, f)
	return nil
}

// Close closes the log file if one was configured.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
		out = os.Stderr
	}
}

// Debug logs a debug-level message.
func Debug(format string, args ...any) { emit(LevelDebug, "DEBUG", format, args...) }

// Info logs an info-level message.
func Info(format string, args ...any) { emit(LevelInfo, "INFO", format, args...) }

// Warn logs a warning-level message.
func Warn(format string, args ...any) { emit(LevelWarn, "WARN", format, args...) }

// Error logs an error-level message.
func Error(format string, args ...any) { emit(LevelError, "ERROR", format, args...) }

func emit(lvl Level, tag, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if lvl < level {
		return
	}
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(out, "%s [%s] %s\n", ts, tag, fmt.Sprintf(format, args...))
}
