// Package logging builds the process-wide *slog.Logger handed to every
// component via constructor injection, a value rather than a global. The
// default handler is hermannm.dev/devlog, a human-readable development
// formatter over log/slog.
package logging

import (
	"io"
	"log/slog"
	"os"

	"hermannm.dev/devlog"
)

// Options controls the handler devlog builds.
type Options struct {
	// Level is the minimum level logged; nil defaults to slog.LevelInfo.
	Level slog.Leveler
	// Output defaults to os.Stderr.
	Output io.Writer
	// JSON switches to a plain slog.JSONHandler for production/non-tty
	// deployments, where devlog's colored output is undesirable.
	JSON bool
}

// New builds a *slog.Logger per opts.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = devlog.NewHandler(out, &devlog.Options{Level: level})
	}
	return slog.New(handler)
}
