// Package logging configures the zerolog logger shared by the console,
// watcher, and supervisor binaries: console writer in development,
// JSON lines in production, with component/worker_id/task_id context
// fields attached the way a call site needs them.
package logging

import (
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Options controls how the base logger is constructed.
type Options struct {
	// Environment is "development" or "production", as loaded from config.
	Environment string
	Level       string
	Component   string
}

var levelByName = map[string]zerolog.Level{
	"DEBUG": zerolog.DebugLevel,
	"INFO":  zerolog.InfoLevel,
	"WARN":  zerolog.WarnLevel,
	"ERROR": zerolog.ErrorLevel,
}

// New builds a component-scoped logger. Production environments emit JSON
// lines (suitable for log shipping); development emits a colorized console
// writer, colors disabled automatically when stderr isn't a terminal.
func New(opts Options) zerolog.Logger {
	level, ok := levelByName[opts.Level]
	if !ok {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if opts.Environment == "production" {
		base = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	} else {
		noColor := !isatty.IsTerminal(os.Stderr.Fd())
		base = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    noColor,
		}).Level(level).With().Timestamp().Logger()
	}

	if opts.Component != "" {
		base = base.With().Str("component", opts.Component).Logger()
	}
	return base
}

// WithWorker attaches a worker_id field.
func WithWorker(l zerolog.Logger, workerID string) zerolog.Logger {
	return l.With().Str("worker_id", workerID).Logger()
}

// WithTask attaches a task_id field.
func WithTask(l zerolog.Logger, taskID string) zerolog.Logger {
	return l.With().Str("task_id", taskID).Logger()
}
