// Package walk enumerates a directory tree iteratively.
package walk

import (
	"context"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/bamsammich/widepath/internal/entry"
	"github.com/bamsammich/widepath/internal/fserr"
	"github.com/bamsammich/widepath/internal/native"
	"github.com/bamsammich/widepath/internal/pathname"
)

// Kinds restricts which entries are yielded. Recursion is unaffected.
type Kinds int

const (
	KindAll Kinds = iota
	KindFiles
	KindDirectories
)

// Options control a walk. The zero value walks immediate children only,
// yields everything and never enters reparse points.
type Options struct {
	Tx *native.Transaction
	// Canonicalizer builds child paths. Nil uses the default threshold.
	Canonicalizer *pathname.Canonicalizer

	// Include decides whether an entry is yielded.
	Include func(entry.Info) bool
	// Recurse decides whether a directory is expanded, independent of
	// whether it was yielded.
	Recurse func(entry.Info) bool
	// OnError is called when a native call fails. Returning true swallows
	// the error and continues; false aborts the walk.
	OnError func(path pathname.Path, err error) bool

	Kinds Kinds

	Recursive          bool
	ContinueOnNotFound bool
	FollowMountPoints  bool
	FollowSymlinks     bool
	// SkipReparsePoints hides reparse points entirely.
	SkipReparsePoints bool
}

type frame struct {
	path pathname.Path
	rel  string
}

// Walker yields the descendants of a root directory. The root itself is
// not yielded. Pending directories are kept on an explicit stack, so depth
// is bounded by memory, not by the call stack. A Walker is single-use.
type Walker struct {
	ctx      context.Context
	resolver *entry.Resolver
	canon    *pathname.Canonicalizer
	visited  map[uint64]struct{}
	err      error
	root     pathname.Path
	stack    []frame
	queue    []entry.Info
	cur      entry.Info
	opts     Options
	skipped  int
	started  bool
	done     bool
}

// New returns a Walker over root. No native call is made until Next.
func New(ctx context.Context, resolver *entry.Resolver, root pathname.Path, opts Options) *Walker {
	if resolver == nil {
		panic("walk: nil resolver")
	}
	canon := opts.Canonicalizer
	if canon == nil {
		canon = &pathname.Canonicalizer{}
	}
	return &Walker{
		ctx:      ctx,
		resolver: resolver,
		canon:    canon,
		root:     root,
		opts:     opts,
		visited:  make(map[uint64]struct{}),
	}
}

// Next advances to the next entry. It returns false when the walk is
// exhausted, cancelled or failed; check Err.
func (w *Walker) Next() bool {
	if w.done {
		return false
	}
	if err := w.ctx.Err(); err != nil {
		return w.fail(err)
	}
	if !w.started {
		w.started = true
		if !w.start() {
			return false
		}
	}

	for {
		for len(w.queue) > 0 {
			info := w.queue[0]
			w.queue = w.queue[1:]

			yield := w.include(info)
			w.schedule(info)
			if w.done {
				return false
			}
			if yield {
				w.cur = info
				return true
			}
		}

		if len(w.stack) == 0 {
			w.done = true
			return false
		}
		if err := w.ctx.Err(); err != nil {
			return w.fail(err)
		}
		f := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		if !w.expand(f) {
			return false
		}
	}
}

// Entry returns the entry Next advanced to.
func (w *Walker) Entry() entry.Info { return w.cur }

// Err returns the error that ended the walk, nil on normal exhaustion.
func (w *Walker) Err() error { return w.err }

// Skipped returns how many directory reparse points were reached but not
// entered.
func (w *Walker) Skipped() int { return w.skipped }

func (w *Walker) fail(err error) bool {
	w.err = err
	w.done = true
	return false
}

// handle routes a native failure through the error filter. It reports
// whether the walk continues.
func (w *Walker) handle(path pathname.Path, err error) bool {
	if w.opts.OnError != nil {
		if w.opts.OnError(path, err) {
			return true
		}
		return w.fail(err)
	}
	if w.opts.ContinueOnNotFound && fserr.Is(err, fserr.NotFound) {
		return true
	}
	return w.fail(err)
}

func (w *Walker) start() bool {
	_, found, err := w.resolver.Resolve(w.ctx, w.root, entry.ResolveOptions{
		Tx:                 w.opts.Tx,
		ContinueOnNotFound: w.opts.ContinueOnNotFound && w.opts.OnError == nil,
		ExpectDirectory:    true,
	})
	if err != nil {
		if w.handle(w.root, err) {
			w.done = true
		}
		return false
	}
	if !found {
		w.done = true
		return false
	}
	w.visit(w.root)
	return w.expand(frame{path: w.root})
}

func (w *Walker) expand(f frame) bool {
	entries, err := w.resolver.FS().ReadDir(w.ctx, f.path, w.opts.Tx)
	if err != nil {
		return w.handle(f.path, fserr.WithPath(err, "readdir", string(f.path)))
	}

	for _, e := range entries {
		child, err := w.canon.Child(f.path, e.Name)
		if err != nil {
			if !w.handle(f.path, err) {
				return false
			}
			continue
		}
		rel := e.Name
		if f.rel != "" {
			rel = f.rel + `\` + e.Name
		}
		w.queue = append(w.queue, entry.FromAttributes(child, rel, e.Attributes))
	}
	return true
}

func (w *Walker) include(info entry.Info) bool {
	switch {
	case w.opts.SkipReparsePoints && info.IsReparsePoint:
		return false
	case w.opts.Kinds == KindFiles && info.IsDirectory:
		return false
	case w.opts.Kinds == KindDirectories && !info.IsDirectory:
		return false
	case w.opts.Include != nil:
		return w.opts.Include(info)
	}
	return true
}

// schedule pushes info onto the pending stack when it may be expanded.
func (w *Walker) schedule(info entry.Info) {
	if !w.opts.Recursive || !info.IsDirectory {
		return
	}
	if w.opts.SkipReparsePoints && info.IsReparsePoint {
		return
	}
	if w.opts.Recurse != nil && !w.opts.Recurse(info) {
		return
	}
	policy := entry.FollowPolicy{
		FollowMountPoints: w.opts.FollowMountPoints,
		FollowSymlinks:    w.opts.FollowSymlinks,
	}
	if !entry.Descend(info, policy) {
		if info.IsReparsePoint {
			w.skipped++
		}
		return
	}

	if info.IsReparsePoint {
		target, ok := w.linkTarget(info)
		if !ok {
			return
		}
		if !w.visit(target) {
			w.skipped++
			return
		}
	} else {
		w.visit(info.Path)
	}
	w.stack = append(w.stack, frame{path: info.Path, rel: info.RelPath})
}

// linkTarget resolves the canonical target of a followed reparse point.
func (w *Walker) linkTarget(info entry.Info) (pathname.Path, bool) {
	target, err := w.resolver.FS().ReadLink(w.ctx, info.Path, w.opts.Tx)
	if err != nil {
		w.handle(info.Path, err)
		return "", false
	}
	if !pathname.Classify(target).Rooted {
		target = string(pathname.Regular(info.Path.Dir())) + `\` + target
	}
	canon, err := w.canon.Canonicalize(target, pathname.Options{})
	if err != nil {
		w.handle(info.Path, err)
		return "", false
	}
	return canon, true
}

// visit records p and reports whether it was new.
func (w *Walker) visit(p pathname.Path) bool {
	key := xxhash.Sum64String(strings.ToUpper(strings.TrimSuffix(string(pathname.Regular(p)), `\`)))
	if _, seen := w.visited[key]; seen {
		return false
	}
	w.visited[key] = struct{}{}
	return true
}
