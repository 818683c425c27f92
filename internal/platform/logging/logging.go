// Package logging provides the process-wide structured logger. Domain
// packages depend on the narrow printf-style interface defined alongside
// their models, and this package supplies the slog-backed implementation.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config captures logging configuration options.
type Config struct {
	Level    string
	Format   string // "json" or "text"
	Dir      string
	Filename string
}

// Logger wraps slog with the printf-style API used across the domains.
type Logger struct {
	slogger *slog.Logger
	level   slog.Level
	closer  io.Closer
}

// New creates a Logger writing to stdout and, when Dir is set, to a log file.
func New(cfg Config) (*Logger, error) {
	level := parseLevel(cfg.Level)

	var out io.Writer = os.Stdout
	var closer io.Closer
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		name := cfg.Filename
		if name == "" {
			name = "signage-agent.log"
		}
		file, err := os.OpenFile(
			filepath.Join(cfg.Dir, name),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND,
			0o644,
		)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return &Logger{
		slogger: slog.New(handler),
		level:   level,
		closer:  closer,
	}, nil
}

// NewDefault builds a stdout text logger at info level, mainly for tests.
func NewDefault() *Logger {
	logger, _ := New(Config{Level: "info", Format: "text"})
	return logger
}

// Slog exposes the underlying structured logger for new integrations.
func (l *Logger) Slog() *slog.Logger {
	return l.slogger
}

func (l *Logger) Debug(format string, args ...any) {
	l.slogger.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any) {
	l.slogger.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.slogger.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.slogger.Error(fmt.Sprintf(format, args...))
}

// Close releases the log file when one was opened.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// MaskSecret partially masks a credential so it can appear in diagnostics
// without leaking the full value.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "***"
	}
	return s[:2] + "***" + s[len(s)-2:]
}
