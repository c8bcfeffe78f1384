package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var (
	// Logger is the process-wide slog logger
	Logger *slog.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
)

// Init configures the global logger from LOG_LEVEL and LOG_FORMAT.
// Level defaults to info and format defaults to json.
func Init() {
	InitWith(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// InitWith configures the global logger with an explicit level and format.
func InitWith(levelStr, format string) {
	InitWriter(os.Stdout, levelStr, format)
}

// InitWriter is InitWith targeting an arbitrary writer.
func InitWriter(w io.Writer, levelStr, format string) {
	if levelStr == "" {
		levelStr = "info"
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(levelStr)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text", "console":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)

	Logger.Debug("Logger initialized", "level", levelStr, "format", format)
}

// ParseLevel maps a level name to a slog.Level, falling back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return Logger.With(args...)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}
