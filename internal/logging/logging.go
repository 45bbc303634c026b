// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mcp-watch/mcpwatch/internal/config"
)

// Setup creates and sets the default slog logger on stderr. JSON records are
// emitted when forceJSON is set, or whenever the stdout sink is enabled:
// that sink streams NDJSON events on stdout, and diagnostics must stay
// machine-separable from it.
func Setup(cfg *config.Config, level string, forceJSON bool) {
	h := handler(os.Stderr, forceJSON || stdoutStreams(cfg), ParseLevel(level))
	slog.SetDefault(slog.New(h))
}

// stdoutStreams reports whether the stdout sink will occupy stdout with an
// NDJSON event stream.
func stdoutStreams(cfg *config.Config) bool {
	return cfg != nil && cfg.Stdout.Enabled
}

func handler(w io.Writer, asJSON bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if asJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel converts a string ("debug", "info", "warn", "error") to a
// slog.Level. Unknown strings default to LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
