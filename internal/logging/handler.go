// Package logging builds the slog handlers the CLI logs through.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
)

// MultiHandler fans records out to several handlers. Each handler keeps
// its own level.
type MultiHandler struct {
	handlers []slog.Handler
}

var _ slog.Handler = (*MultiHandler)(nil)

// NewMultiHandler returns a handler writing every record to each of hs.
func NewMultiHandler(hs ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: hs}
}

// Enabled reports whether any handler accepts level.
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: hs}
}

// Options configures New.
type Options struct {
	Stderr  io.Writer
	LogFile string // JSON log at debug level, "" for none
	Verbose bool
	Quiet   bool
}

// New returns the CLI logger: text on stderr at warn (info with Verbose,
// debug when both a log file and Verbose are given, error with Quiet),
// plus a JSON file when LogFile is set. The returned close func releases
// the file.
func New(opts Options) (*slog.Logger, func() error, error) {
	w := opts.Stderr
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelWarn
	switch {
	case opts.Quiet:
		level = slog.LevelError
	case opts.Verbose:
		level = slog.LevelInfo
	}

	var h slog.Handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	closeFn := func() error { return nil }

	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, err
		}
		jsonH := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
		h = NewMultiHandler(h, jsonH)
		closeFn = f.Close
	}
	return slog.New(h), closeFn, nil
}
