// Package log configures the process-wide structured logger shared by
// the loom binaries.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default logger. Every record carries the service
// name so interleaved worker and dispatcher output stays attributable.
func Setup(logLevel string) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	})

	slog.SetDefault(slog.New(handler).With("service", "loom"))
}

// ParseLevel maps the log-level flag onto slog levels. Unknown values
// fall back to info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
