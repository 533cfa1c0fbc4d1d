// Package engine copies, moves and deletes trees addressed by canonical
// paths. Operations are synchronous and never atomic across a subtree: a
// fatal error leaves whatever was already mutated in place, and the
// partial Result is returned together with the error.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bamsammich/widepath/internal/entry"
	"github.com/bamsammich/widepath/internal/event"
	"github.com/bamsammich/widepath/internal/fserr"
	"github.com/bamsammich/widepath/internal/native"
	"github.com/bamsammich/widepath/internal/pathname"
	"github.com/bamsammich/widepath/internal/retry"
	"github.com/bamsammich/widepath/internal/stats"
)

// Engine runs tree operations against one native backend. It holds no
// per-operation state; concurrent operations are safe when they touch
// disjoint subtrees and do not share a transaction.
type Engine struct {
	Native native.FS
	Canon  *pathname.Canonicalizer
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Events receives progress events. Sends never block; events are
	// dropped when the channel is full.
	Events chan<- event.Event
	// Limiter throttles native mutation calls. Nil means unlimited.
	Limiter *rate.Limiter
}

// New returns an Engine over fs. canon may be nil.
func New(fs native.FS, canon *pathname.Canonicalizer) *Engine {
	if fs == nil {
		panic("engine: nil native.FS")
	}
	if canon == nil {
		canon = &pathname.Canonicalizer{}
	}
	return &Engine{Native: fs, Canon: canon}
}

// Filters are caller hooks consulted per entry. Include decides whether an
// entry is acted on, Recurse whether a directory is expanded, and OnError
// whether a failed native call is swallowed (true) or aborts the whole
// operation (false). When OnError is set its decision is final;
// ContinueOnNotFound only applies without it.
type Filters struct {
	Include func(entry.Info) bool
	Recurse func(entry.Info) bool
	OnError func(path pathname.Path, err error) bool
}

func (f Filters) active() bool { return f.Include != nil || f.Recurse != nil }

// Result summarizes one operation.
type Result struct {
	TotalFiles         int64
	TotalFolders       int64
	TotalBytes         int64
	SkippedMountPoints int64
	Retries            int64
	// Failed counts entries whose failure the error filter swallowed.
	Failed  int64
	Elapsed time.Duration
	// ErrorCode is the native code of the terminal error, 0 on success.
	ErrorCode uint32
}

func (e *Engine) emit(ev event.Event) {
	if e.Events == nil {
		return
	}
	ev.Timestamp = time.Now()
	select {
	case e.Events <- ev:
	default:
	}
}

func (e *Engine) canon() *pathname.Canonicalizer {
	if e.Canon == nil {
		return &pathname.Canonicalizer{}
	}
	return e.Canon
}

// run is the state of one operation.
type run struct {
	start  time.Time
	e      *Engine
	tx     *native.Transaction
	stats  *stats.Collector
	log    *slog.Logger
	filter Filters
	policy retry.Policy
	op     string

	continueOnNotFound bool
	ignoreReadOnly     bool
}

func (e *Engine) newRun(op string, tx *native.Transaction, c *stats.Collector, policy retry.Policy) *run {
	if c == nil {
		c = stats.NewCollector()
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &run{
		start:  time.Now(),
		e:      e,
		tx:     tx,
		stats:  c,
		policy: policy,
		op:     op,
		log:    logger.With("op", op, "id", uuid.NewString()[:8]),
	}
}

// child returns a run sharing r's settings but counting into a private
// collector. Nested operations use it so their work is not reported as
// the parent's.
func (r *run) child(op string) *run {
	cp := *r
	cp.op = op
	cp.stats = stats.NewCollector()
	return &cp
}

// resolver returns an entry resolver whose lookups go through the retry
// policy.
func (r *run) resolver() *entry.Resolver {
	return entry.NewResolver(&retrying{FS: r.e.Native, r: r})
}

// call runs one native call under the retry policy.
func (r *run) call(ctx context.Context, op string, path pathname.Path, fn func() error) error {
	n, err := r.policy.Do(ctx, fn, func(attempt int, err error) {
		r.log.Debug("retrying", "call", op, "path", string(path), "attempt", attempt, "error", err)
		r.e.emit(event.Event{Type: event.Retrying, Path: string(path), Attempt: attempt, Error: err})
	})
	r.stats.AddRetries(int64(n))
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fserr.WithPath(err, op, string(path))
}

// mutate runs one native mutation: it checks for cancellation, waits for
// the limiter and applies the retry policy.
func (r *run) mutate(ctx context.Context, op string, path pathname.Path, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.call(ctx, op, path, func() error {
		if r.e.Limiter != nil {
			if err := r.e.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return fn()
	})
}

// handle applies the error policy to a failed entry and returns nil when
// the failure is swallowed.
func (r *run) handle(ctx context.Context, path pathname.Path, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if r.filter.OnError != nil {
		if r.filter.OnError(path, err) {
			r.failed(path, err)
			return nil
		}
		return err
	}
	if r.continueOnNotFound && fserr.Is(err, fserr.NotFound) {
		r.log.Debug("entry vanished", "path", string(path))
		return nil
	}
	return err
}

// walkOnError adapts the error filter for the walker so swallowed walk
// failures are counted like entry failures.
func (r *run) walkOnError() func(pathname.Path, error) bool {
	if r.filter.OnError == nil {
		return nil
	}
	return func(p pathname.Path, err error) bool {
		if r.filter.OnError(p, err) {
			r.failed(p, err)
			return true
		}
		return false
	}
}

func (r *run) failed(path pathname.Path, err error) {
	r.stats.AddFailed(1)
	r.log.Warn("entry failed", "path", string(path), "error", err)
	r.e.emit(event.Event{Type: event.EntryFailed, Path: string(path), Error: err})
}

// finish builds the Result and reports completion.
func (r *run) finish(err error) (Result, error) {
	s := r.stats.Snapshot()
	res := Result{
		TotalFiles:         s.Files,
		TotalFolders:       s.Folders,
		TotalBytes:         s.Bytes,
		SkippedMountPoints: s.SkippedMountPoints,
		Retries:            s.Retries,
		Failed:             s.Failed,
		Elapsed:            time.Since(r.start),
	}
	if err != nil {
		res.ErrorCode = fserr.CodeOf(err)
		r.log.Error(r.op+" failed", "error", err, "stats", s.String())
	} else {
		r.log.Info(r.op+" complete", "stats", s.String(), "elapsed", res.Elapsed)
	}
	r.e.emit(event.Event{Type: event.OperationComplete, Size: res.TotalBytes, Error: err})
	return res, err
}
