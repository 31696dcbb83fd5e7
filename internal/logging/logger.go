// Package logging builds the agent's structured logger: log/slog fronting
// either stdout/stderr or a rotated file via lumberjack, matching the
// ambient logging stack carried by every component in this module.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/siemagent/agent/internal/config"
)

// Options configures the logger; normally built from config.Bootstrap.
type Options struct {
	Level    string
	Format   string // "json" or "text"
	Output   string // "stdout", "stderr", or "file"
	Filename string
}

// FromBootstrap adapts the bootstrap configuration into logger Options.
func FromBootstrap(b config.Bootstrap) Options {
	return Options{
		Level:    b.LogLevel,
		Format:   b.LogFormat,
		Output:   b.LogOutput,
		Filename: b.LogFilename,
	}
}

// New builds a *slog.Logger per opts. AddSource is enabled only at Debug
// level, mirroring the teacher's logger construction.
func New(opts Options) *slog.Logger {
	level := ParseLevel(opts.Level)
	writer := setupWriter(opts)

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(writer, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	}
	return slog.New(handler)
}

// ParseLevel maps the spec's six-value LogLevel enum (§3) onto slog's four
// levels: Trace and Information alias to Debug and Info, Critical aliases
// to Error, since slog has no native levels for them.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "information", "info", "":
		return slog.LevelInfo
	case "warning", "warn":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupWriter(opts Options) io.Writer {
	switch strings.ToLower(opts.Output) {
	case "file":
		if opts.Filename == "" {
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   opts.Filename,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	case "stderr":
		return os.Stderr
	default:
		return os.Stdout
	}
}
