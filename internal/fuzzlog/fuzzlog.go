// Package fuzzlog provides the structured logger used across FluxFuzzer's
// fuzzing control loop. It is a thin wrapper over log/slog: text handler
// for interactive terminal runs, JSON handler for piped/background runs,
// with the fuzzing-specific fields (stage, entry id, exec count) attached
// as a sub-logger rather than formatted into the message string.
package fuzzlog

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps *slog.Logger with the handful of fuzzing-domain helpers the
// control loop calls at each stage transition.
type Logger struct {
	*slog.Logger
}

// Options configures New.
type Options struct {
	Writer    io.Writer
	JSON      bool
	Level     slog.Level
	AddSource bool
}

// DefaultOptions returns text-handler options writing to stderr at Info
// level, the default for an interactive run.
func DefaultOptions() Options {
	return Options{Writer: os.Stderr, Level: slog.LevelInfo}
}

// New builds a Logger from opts.
func New(opts Options) *Logger {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddSource}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(opts.Writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Writer, handlerOpts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// WithRun returns a logger tagged with this fuzzing session's output
// directory and target, attached to every subsequent record.
func (l *Logger) WithRun(outDir, target string) *Logger {
	return &Logger{Logger: l.Logger.With("out_dir", outDir, "target", target)}
}

// Stage logs a stage transition for one queue entry (deterministic, havoc,
// splice), the granularity AFL's own status screen reports at.
func (l *Logger) Stage(ctx context.Context, stage string, entryID int, execs int64) {
	l.Logger.InfoContext(ctx, "stage", "stage", stage, "entry_id", entryID, "total_execs", execs)
}

// NewPath logs a newly retained queue entry.
func (l *Logger) NewPath(ctx context.Context, entryID, sourceID int, op string) {
	l.Logger.InfoContext(ctx, "new path", "entry_id", entryID, "source_id", sourceID, "op", op)
}

// Crash logs a retained crash.
func (l *Logger) Crash(ctx context.Context, name string, signal int) {
	l.Logger.WarnContext(ctx, "crash", "name", name, "signal", signal)
}

// Hang logs a retained hang.
func (l *Logger) Hang(ctx context.Context, name string) {
	l.Logger.WarnContext(ctx, "hang", "name", name)
}

// Broken logs an entry being dropped after exhausting calibration retries.
func (l *Logger) Broken(ctx context.Context, entryID int) {
	l.Logger.WarnContext(ctx, "calibration broken, dropping entry", "entry_id", entryID)
}
