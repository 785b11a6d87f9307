// Package logging configures slog for refvec: one append-only JSON log
// file under the data directory, mirrored to the console as text.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// LogFileName is the log file created inside the log directory.
const LogFileName = "refvec.log"

// Config contains logging configuration.
type Config struct {
	// Level is the minimum level written to the log file (debug, info, warn, error).
	Level string
	// FilePath is the log file. Empty disables file logging.
	FilePath string
	// MaxSizeMB rotates the file once it grows past this size. 0 never rotates.
	MaxSizeMB int
	// MaxFiles is the number of rotated files to keep.
	MaxFiles int
	// Console receives a text mirror of the log. Nil disables mirroring.
	Console io.Writer
	// ConsoleLevel is the minimum level mirrored to Console.
	ConsoleLevel string
}

// DefaultConfig returns file logging under dataDir with warnings mirrored
// to console.
func DefaultConfig(dataDir string, console io.Writer) Config {
	return Config{
		Level:        "info",
		FilePath:     LogPath(dataDir),
		MaxFiles:     3,
		Console:      console,
		ConsoleLevel: "warn",
	}
}

// Verbose raises both sinks to debug.
func (c Config) Verbose() Config {
	c.Level = "debug"
	c.ConsoleLevel = "debug"
	return c
}

// LogPath returns the log file path for a data directory.
func LogPath(dataDir string) string {
	return filepath.Join(dataDir, "logs", LogFileName)
}

// Setup builds a logger from cfg and returns it with a cleanup function
// that flushes and closes the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var handlers []slog.Handler
	cleanup := func() {}

	if cfg.FilePath != "" {
		writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level: parseLevel(cfg.Level),
		}))
		cleanup = func() {
			_ = writer.Sync()
			_ = writer.Close()
		}
	}

	if cfg.Console != nil {
		handlers = append(handlers, slog.NewTextHandler(cfg.Console, &slog.HandlerOptions{
			Level: parseLevel(cfg.ConsoleLevel),
		}))
	}

	if len(handlers) == 0 {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), cleanup, nil
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), cleanup, nil
	}
	return slog.New(teeHandler(handlers)), cleanup, nil
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether level names a known slog level.
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// teeHandler fans a record out to every handler that accepts its level.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
