// Package logging provides structured logging for the arraymon daemon.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports text and JSON output
// formats, an "auto" mode that picks text on terminals and JSON otherwise,
// configurable log levels, and component-based loggers.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, logging.FormatAuto)
//
//	// Get a component logger
//	log := logging.Component("scheduler")
//	log.Info("cycle complete", "due", 3, "elapsed_ms", 412)
package logging

import (
	"context"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Output formats accepted by Init.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Init initializes the global logger with the specified level and format.
// FormatAuto selects text output when stdout is a terminal and JSON otherwise,
// so interactive runs stay readable while service logs stay machine-parseable.
func Init(level slog.Level, format string) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	useJSON := format == FormatJSON
	if format == FormatAuto {
		useJSON = !term.IsTerminal(int(os.Stdout.Fd()))
	}

	var handler slog.Handler
	if useJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel maps a config-file level string to a slog.Level.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new logger with additional attributes.
// These attributes are included in every log entry from the returned logger.
func With(args ...any) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, FormatText)
	}
	return Logger.With(args...)
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("reconciler")
//	log.Info("started") // Output: time=... level=INFO component=reconciler msg=started
func Component(name string) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, FormatText)
	}
	return Logger.With("component", name)
}

// WithContext returns a logger that includes collection-scoped context values.
func WithContext(ctx context.Context) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, FormatText)
	}

	logger := Logger

	if sysID, ok := ctx.Value(contextKeySystemID).(string); ok {
		logger = logger.With("sys_id", sysID)
	}
	if class, ok := ctx.Value(contextKeyClass).(string); ok {
		logger = logger.With("class", class)
	}
	if cycle, ok := ctx.Value(contextKeyCycle).(uint64); ok {
		logger = logger.With("cycle", cycle)
	}

	return logger
}

// Context key types for type-safe context value extraction.
type contextKey int

const (
	contextKeySystemID contextKey = iota
	contextKeyClass
	contextKeyCycle
)

// ContextWithSystemID adds a storage-system ID to the context for logging.
func ContextWithSystemID(ctx context.Context, sysID string) context.Context {
	return context.WithValue(ctx, contextKeySystemID, sysID)
}

// ContextWithClass adds a metric-class name to the context for logging.
func ContextWithClass(ctx context.Context, class string) context.Context {
	return context.WithValue(ctx, contextKeyClass, class)
}

// ContextWithCycle adds a scheduler cycle number to the context for logging.
func ContextWithCycle(ctx context.Context, cycle uint64) context.Context {
	return context.WithValue(ctx, contextKeyCycle, cycle)
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, FormatText)
	}
	Logger.Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, FormatText)
	}
	Logger.Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, FormatText)
	}
	Logger.Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, FormatText)
	}
	Logger.Error(msg, args...)
}
