// Package logging provides the process-wide leveled logger. Output goes to
// stdout and, when a directory is configured, to a log file as well.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config captures logging configuration options.
type Config struct {
	Level    string
	Dir      string
	Filename string
}

// Logger wraps slog with the printf-style API used across the service.
type Logger struct {
	slogger *slog.Logger
	level   slog.Level
	file    *os.File
	mu      sync.Mutex
}

// New creates a Logger writing to stdout and, when cfg.Dir is set, to
// cfg.Dir/cfg.Filename.
func New(cfg Config) (*Logger, error) {
	level := parseLevel(cfg.Level)

	var writers []io.Writer
	writers = append(writers, os.Stdout)

	var file *os.File
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		name := cfg.Filename
		if name == "" {
			name = "server.log"
		}
		f, err := os.OpenFile(filepath.Join(cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: level,
	})

	return &Logger{
		slogger: slog.New(handler),
		level:   level,
		file:    file,
	}, nil
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

// Slog exposes the structured logger for integrations that want it directly.
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

// InfoTag prefixes the message with a module tag, e.g. "[HTTP] ...".
func (l *Logger) InfoTag(tag, format string, args ...any) {
	l.slogger.Info(fmt.Sprintf("[%s] %s", tag, fmt.Sprintf(format, args...)))
}

func (l *Logger) WarnTag(tag, format string, args ...any) {
	l.slogger.Warn(fmt.Sprintf("[%s] %s", tag, fmt.Sprintf(format, args...)))
}

func (l *Logger) ErrorTag(tag, format string, args ...any) {
	l.slogger.Error(fmt.Sprintf("[%s] %s", tag, fmt.Sprintf(format, args...)))
}

// Close releases the log file handle if one is open.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
