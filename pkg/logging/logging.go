// Package logging configures log/slog for momosync binaries.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logging configuration options.
type Config struct {
	// Level is the minimum log level to output.
	Level slog.Level
	// JSON switches from logfmt-style text to JSON lines.
	JSON bool
	// AddSource records the caller's file and line.
	AddSource bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns a configuration read from the process environment.
func DefaultConfig() Config {
	return ConfigFromEnv(os.Getenv)
}

// ConfigFromEnv builds a configuration from:
//
//	LOG_LEVEL   DEBUG, INFO, WARN or ERROR (default INFO)
//	LOG_FORMAT  "json" for JSON output, anything else for text
//	LOG_SOURCE  "true" or "1" to add source locations
func ConfigFromEnv(getenv func(string) string) Config {
	source := strings.ToLower(strings.TrimSpace(getenv("LOG_SOURCE")))

	return Config{
		Level:     ParseLevel(getenv("LOG_LEVEL")),
		JSON:      strings.EqualFold(strings.TrimSpace(getenv("LOG_FORMAT")), "json"),
		AddSource: source == "true" || source == "1",
		Output:    os.Stderr,
	}
}

// ParseLevel converts a level name to slog.Level. Empty and unknown values
// map to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger for cfg without touching the slog default.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// Setup builds a logger with New and installs it as the slog default, so
// components constructed with a nil logger share it.
func Setup(cfg Config) *slog.Logger {
	logger := New(cfg)
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
