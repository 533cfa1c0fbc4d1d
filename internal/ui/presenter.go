// Package ui renders engine events and counters for the command line.
package ui

import (
	"io"
	"time"

	"github.com/bamsammich/widepath/internal/event"
	"github.com/bamsammich/widepath/internal/stats"
)

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan event.Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Stats     *stats.Collector
	// Op names the operation in the summary line.
	Op string
	// Root is stripped from event paths before printing.
	Root string
	// Interval between progress lines. Zero uses 5s.
	Interval time.Duration
	// Width truncates progress lines on a terminal. Zero disables it.
	Width int

	IsTTY      bool
	Quiet      bool
	Verbose    bool
	NoProgress bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return &quietPresenter{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &plainPresenter{
		w:          cfg.Writer,
		errW:       cfg.ErrWriter,
		stats:      cfg.Stats,
		op:         cfg.Op,
		root:       cfg.Root,
		interval:   interval,
		width:      cfg.Width,
		tty:        cfg.IsTTY,
		verbose:    cfg.Verbose,
		noProgress: cfg.NoProgress,
	}
}
