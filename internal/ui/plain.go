package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bamsammich/widepath/internal/event"
	"github.com/bamsammich/widepath/internal/stats"
)

// plainPresenter writes one line per finished entry to w and periodic
// progress to errW. On a terminal the progress line is redrawn in place.
type plainPresenter struct {
	w        io.Writer
	errW     io.Writer
	stats    *stats.Collector
	op       string
	root     string
	interval time.Duration
	width    int

	tty        bool
	verbose    bool
	noProgress bool
	drawn      bool // a progress line is on screen without a newline
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	next := time.Now().Add(p.interval)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearProgress()
				return nil
			}
			p.handleEvent(ev)
		case now := <-tick.C:
			p.stats.Tick()
			if !p.noProgress && !now.Before(next) {
				p.printProgress()
				next = now.Add(p.interval)
			}
		}
	}
}

func (p *plainPresenter) line(format string, args ...any) {
	p.clearProgress()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	path := StripRoot(p.root, ev.Path)
	switch ev.Type {
	case event.FileCopied, event.FileMoved:
		p.line("%s  %s  %s", path, FormatBytes(ev.Size), FormatRate(p.stats.RollingSpeed(5)))
	case event.LinkCreated:
		p.line("%s -> %s", path, ev.Target)
	case event.FileDeleted, event.DirRemoved:
		if p.verbose {
			p.line("delete: %s", path)
		}
	case event.MountPointSkipped:
		p.line("%s  mount point skipped", path)
	case event.EntryFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		p.line("%s  %s", path, errMsg)
	case event.VerifyFailed:
		p.line("MISMATCH: %s", path)
	case event.Retrying:
		if p.verbose {
			p.line("%s  retry %d: %v", path, ev.Attempt, ev.Error)
		}
	case event.AttributesCleared:
		if p.verbose {
			p.line("%s  attributes cleared", path)
		}
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	msg := fmt.Sprintf("progress: %s files %s folders %s %s",
		FormatCount(snap.Files),
		FormatCount(snap.Folders),
		FormatBytes(snap.Bytes),
		FormatRate(p.stats.RollingSpeed(10)),
	)
	if p.tty {
		if p.width > 1 && len(msg) >= p.width {
			msg = msg[:p.width-1]
		}
		fmt.Fprintf(p.errW, "\r\033[K%s", msg)
		p.drawn = true
		return
	}
	fmt.Fprintln(p.errW, msg)
}

func (p *plainPresenter) clearProgress() {
	if p.drawn {
		fmt.Fprint(p.errW, "\r\033[K")
		p.drawn = false
	}
}

func (p *plainPresenter) Summary() string {
	return completionSummary(p.op, p.stats.Snapshot())
}

// StripRoot returns path relative to root when it lies beneath it.
// Comparison ignores case like the Windows namespace.
func StripRoot(root, path string) string {
	root = strings.TrimSuffix(root, `\`)
	if root == "" || len(path) <= len(root) || !strings.EqualFold(path[:len(root)], root) || path[len(root)] != '\\' {
		return path
	}
	return path[len(root)+1:]
}
