package engine

import (
	"context"
	"fmt"

	"github.com/bamsammich/widepath/internal/entry"
	"github.com/bamsammich/widepath/internal/event"
	"github.com/bamsammich/widepath/internal/fserr"
	"github.com/bamsammich/widepath/internal/native"
	"github.com/bamsammich/widepath/internal/pathname"
	"github.com/bamsammich/widepath/internal/retry"
	"github.com/bamsammich/widepath/internal/stats"
	"github.com/bamsammich/widepath/internal/walk"
)

// DeleteArguments describe a delete. The engine only reads them.
type DeleteArguments struct {
	Path pathname.Path
	Tx   *native.Transaction
	// Stats receives live counters. Nil allocates a private collector.
	Stats   *stats.Collector
	Filters Filters

	Recursive bool
	// IgnoreReadOnly clears read-only, hidden and system attributes and
	// tries once more when a removal is refused.
	IgnoreReadOnly bool
	// ContinueOnNotFound treats entries that vanish before they are
	// removed as removed.
	ContinueOnNotFound bool
}

// Delete removes args.Path. A reparse point is unlinked itself and never
// traversed. A recursive delete walks the tree first, removing files as
// they are found and stacking directories, then removes the directories
// children first.
func (e *Engine) Delete(ctx context.Context, args DeleteArguments, policy retry.Policy) (Result, error) {
	r := e.newRun("delete", args.Tx, args.Stats, policy)
	r.filter = args.Filters
	r.continueOnNotFound = args.ContinueOnNotFound
	r.ignoreReadOnly = args.IgnoreReadOnly
	e.emit(event.Event{Type: event.OperationStarted, Path: string(args.Path)})

	path, err := e.canon().Canonicalize(string(args.Path), pathname.Options{})
	if err != nil {
		return r.finish(err)
	}
	r.log.Info("delete started", "path", string(path), "recursive", args.Recursive)
	return r.finish(r.delete(ctx, path, args.Recursive))
}

func (r *run) delete(ctx context.Context, path pathname.Path, recursive bool) error {
	info, found, err := r.resolver().Resolve(ctx, path, entry.ResolveOptions{
		Tx:                 r.tx,
		ContinueOnNotFound: r.continueOnNotFound && r.filter.OnError == nil,
	})
	if err != nil {
		return r.handle(ctx, path, err)
	}
	if !found {
		r.log.Debug("nothing to delete", "path", string(path))
		return nil
	}

	if !entry.Descend(info, entry.FollowPolicy{}) || !recursive {
		return r.removeOne(ctx, info, false)
	}
	return r.deleteTree(ctx, info)
}

// deleteTree removes a plain directory and everything beneath it.
func (r *run) deleteTree(ctx context.Context, root entry.Info) error {
	w := walk.New(ctx, r.resolver(), root.Path, walk.Options{
		Tx:                 r.tx,
		Canonicalizer:      r.e.canon(),
		Include:            r.filter.Include,
		Recurse:            r.filter.Recurse,
		OnError:            r.walkOnError(),
		Recursive:          true,
		ContinueOnNotFound: r.continueOnNotFound,
	})

	var dirs []entry.Info
	for w.Next() {
		info := w.Entry()
		if entry.Descend(info, entry.FollowPolicy{}) {
			dirs = append(dirs, info)
			continue
		}
		if err := r.removeOne(ctx, info, false); err != nil {
			return err
		}
	}
	if err := w.Err(); err != nil {
		return fmt.Errorf("walk %s: %w", root.Path, err)
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		if err := r.removeOne(ctx, dirs[i], r.filter.active()); err != nil {
			return err
		}
	}
	return r.removeOne(ctx, root, r.filter.active())
}

// removeOne removes a single entry, routing failures through the error
// policy. keepNonEmpty leaves directories that still hold entries the
// filters excluded.
func (r *run) removeOne(ctx context.Context, info entry.Info, keepNonEmpty bool) error {
	err := r.remove(ctx, info)
	switch {
	case err == nil:
		r.removed(info)
		return nil
	case keepNonEmpty && fserr.Is(err, fserr.DirectoryNotEmpty):
		r.log.Debug("directory kept", "path", string(info.Path))
		return nil
	}
	return r.handle(ctx, info.Path, err)
}

func (r *run) removed(info entry.Info) {
	if info.IsDirectory && !info.IsReparsePoint {
		r.stats.AddFolders(1)
		r.e.emit(event.Event{Type: event.DirRemoved, Path: string(info.Path)})
		return
	}
	r.stats.AddFiles(1)
	r.stats.AddBytes(info.Size)
	r.e.emit(event.Event{Type: event.FileDeleted, Path: string(info.Path), Size: info.Size})
}

// remove issues the native removal for info. When the call is refused and
// IgnoreReadOnly is set, the blocking attributes are cleared and the same
// removal is tried exactly once more.
func (r *run) remove(ctx context.Context, info entry.Info) error {
	op, fn := "remove", r.e.Native.RemoveFile
	if info.IsDirectory {
		op, fn = "rmdir", r.e.Native.RemoveDir
	}
	rm := func() error { return fn(ctx, info.Path, r.tx) }

	err := r.mutate(ctx, op, info.Path, rm)
	if err == nil || !r.refused(err) {
		return err
	}
	cleared, cerr := r.clearAttributes(ctx, info.Path, info.Attr, true)
	if cerr != nil || !cleared {
		return err
	}
	r.stats.AddRetries(1)
	return r.mutate(ctx, op, info.Path, rm)
}

// refused reports whether err may be caused by attributes IgnoreReadOnly
// is allowed to clear.
func (r *run) refused(err error) bool {
	return r.ignoreReadOnly && (fserr.Is(err, fserr.AccessDenied) || fserr.Is(err, fserr.ReadOnly))
}

const blockingAttrs = native.AttrReadOnly | native.AttrHidden | native.AttrSystem

// clearAttributes drops the read-only, hidden and system bits of path.
// When known is false the attributes are read first. It reports whether
// anything was cleared.
func (r *run) clearAttributes(ctx context.Context, path pathname.Path, attr native.Attr, known bool) (bool, error) {
	if !known {
		a, err := r.e.Native.Stat(ctx, path, r.tx)
		if err != nil {
			return false, err
		}
		attr = a.Attr
	}
	if attr&blockingAttrs == 0 {
		return false, nil
	}

	keep := attr &^ (blockingAttrs | native.AttrDirectory | native.AttrReparsePoint | native.AttrNormal)
	if keep == 0 {
		keep = native.AttrNormal
	}
	err := r.mutate(ctx, "setattr", path, func() error {
		return r.e.Native.SetAttributes(ctx, path, keep, r.tx)
	})
	if err != nil {
		return false, err
	}
	r.stats.AddAttributesCleared(1)
	r.log.Debug("attributes cleared", "path", string(path), "was", fmt.Sprintf("%#x", uint32(attr)))
	r.e.emit(event.Event{Type: event.AttributesCleared, Path: string(path)})
	return true, nil
}
