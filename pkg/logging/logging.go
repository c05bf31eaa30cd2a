// Package logging builds the slog logger shared by the commands: text on
// stderr and, optionally, a size-rotated log file that always records debug
// output.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// MaxFileSize is the size in megabytes at which the log file is rotated
	MaxFileSize = 10
	// Backups is the number of rotated files kept
	Backups = 3
)

// Config selects where logs go
type Config struct {
	Debug bool
	// File is the log file path; empty disables file logging
	File   string
	Stderr io.Writer
}

// New returns the logger and a closer for the log file
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	console := slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.Debug,
	})
	if cfg.File == "" {
		return slog.New(console), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    MaxFileSize,
		MaxBackups: Backups,
	}
	file := slog.NewTextHandler(rotator, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	})
	return slog.New(tee{console, file}), rotator, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// tee sends each record to every handler that accepts its level
type tee []slog.Handler

func (t tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t tee) WithGroup(name string) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
