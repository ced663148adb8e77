package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/salsowa/smarthome-core/internal/infrastructure/config"
)

const serviceName = "smarthome"

// Logger is a slog.Logger that stamps every entry with the service name and
// build version. It is safe for concurrent use.
type Logger struct {
	*slog.Logger
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// parseLevel maps a configured level name onto slog, case-insensitively.
// Unknown names mean info.
func parseLevel(name string) slog.Level {
	if lvl, ok := levels[strings.ToLower(name)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// New returns a Logger writing to the stream named by cfg.Output: "stderr",
// or stdout for anything else.
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return NewWithWriter(w, cfg, version)
}

// NewWithWriter returns a Logger writing to w, ignoring cfg.Output.
// cfg.Format "text" selects logfmt-style output; anything else is JSON.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	l := slog.New(h).With("service", serviceName, "version", version)
	return &Logger{Logger: l}
}

// With returns a child Logger carrying args on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the logger used until the configuration has been read.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}
