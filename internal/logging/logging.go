package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New initializes the process-wide slog logger and installs it as the default.
// LOG_FORMAT selects the handler ("json" for production, anything else gets
// human-readable text) and LOG_LEVEL the minimum level (default debug).
func New() {
	opts := &slog.HandlerOptions{Level: levelFromEnv()}

	var handler slog.Handler
	switch os.Getenv("LOG_FORMAT") {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		opts.AddSource = true
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
