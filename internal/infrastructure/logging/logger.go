package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/config"
)

const serviceName = "cloud4rpi"

// Logger is the daemon's structured logger. The level can be changed while
// running and is shared by every child created with With.
type Logger struct {
	*slog.Logger

	level  *slog.LevelVar
	closer io.Closer
}

// New builds the logger described by cfg. When the log file cannot be
// opened it logs to stderr instead and says so in its first entry.
func New(cfg config.LoggingConfig, version string) *Logger {
	w, closer, err := openOutput(cfg)
	l := NewWithWriter(cfg, version, w)
	l.closer = closer
	if err != nil {
		l.Warn("file logging unavailable, using stderr", "error", err)
	}
	return l
}

func openOutput(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return os.Stderr, nil, fmt.Errorf("opening log file %q: %w", cfg.File, err)
		}
		return f, f, nil
	default:
		return os.Stdout, nil, nil
	}
}

// NewWithWriter builds a logger on w; cfg.Output is not consulted.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(h).With("service", serviceName, "version", version),
		level:  level,
	}
}

// parseLevel maps debug, info, warn(ing) and error to slog levels. Anything
// else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// With returns a child logger carrying args on every entry.
//
//	log := logger.With("component", "spool")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// ToggleDebug switches between debug and the configured level, returning
// the new level.
func (l *Logger) ToggleDebug(configured string) slog.Level {
	next := slog.LevelDebug
	if l.level.Level() == slog.LevelDebug {
		next = parseLevel(configured)
	}
	l.level.Set(next)
	return next
}

// Close closes the log file, if New opened one. Children share it and must
// not be closed.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default is the logger used until the configuration is loaded: JSON on
// stdout at info.
func Default() *Logger {
	return NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "dev", os.Stdout)
}
