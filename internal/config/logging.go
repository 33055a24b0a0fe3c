package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// parseLogLevel converts a string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogLevel returns the log level from LOG_LEVEL, INFO when unset or invalid
func GetLogLevel() slog.Level {
	return parseLogLevel(os.Getenv("LOG_LEVEL"))
}

// NewLogger creates the process logger
// HTTP mode logs JSON to stdout. Stdio mode logs text to stderr so stdout stays
// reserved for MCP frames.
func NewLogger(isStdioMode bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: GetLogLevel()}

	if isStdioMode {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// NewTextLogger creates a text logger at the LOG_LEVEL level, used by the CLI subcommands
func NewTextLogger(output io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: GetLogLevel()}))
}

// NewTestLogger creates a text logger at an explicit level
// An empty level falls back to LOG_LEVEL
func NewTestLogger(output io.Writer, level string) *slog.Logger {
	logLevel := GetLogLevel()
	if level != "" {
		logLevel = parseLogLevel(level)
	}
	return slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: logLevel}))
}

// WithRequest tags a logger with a fresh request_id and the estimation path
func WithRequest(logger *slog.Logger, path string) (*slog.Logger, string) {
	id := uuid.NewString()
	return logger.With("request_id", id, "path", path), id
}
