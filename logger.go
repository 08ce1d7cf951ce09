package hlsgrab

import (
	"log/slog"
	"os"
)

// newLogger creates a logger for internal use, honoring the Debug/Verbose/
// Silent trio the way the teacher's CLI downloader does.
func newLogger(c Config) *slog.Logger {
	level := slog.LevelWarn
	if c.Debug {
		level = slog.LevelDebug
	}
	if c.Verbose {
		level = slog.LevelInfo
	}
	if c.Silent {
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	})
	return slog.New(handler)
}
