package logging

import (
	"log/slog"
	"os"
)

// Init installs the default slog logger. Level comes from LOG_LEVEL; the
// default only surfaces warnings and errors so CLI output stays clean.
func Init() {
	level := slog.LevelWarn

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}
