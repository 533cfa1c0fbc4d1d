package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/bamsammich/widepath/internal/entry"
	"github.com/bamsammich/widepath/internal/event"
	"github.com/bamsammich/widepath/internal/fserr"
	"github.com/bamsammich/widepath/internal/native"
	"github.com/bamsammich/widepath/internal/pathname"
	"github.com/bamsammich/widepath/internal/retry"
	"github.com/bamsammich/widepath/internal/stats"
	"github.com/bamsammich/widepath/internal/walk"
)

// MountPointPolicy decides what a copy does with a mount point found
// below the source root. A mount point is never copied as a regular
// directory.
type MountPointPolicy int

const (
	// MountPointSkip leaves the mount point out and reports it.
	MountPointSkip MountPointPolicy = iota
	// MountPointRecreate creates a junction with the same target at the
	// destination.
	MountPointRecreate
)

func (p MountPointPolicy) String() string {
	if p == MountPointRecreate {
		return "recreate"
	}
	return "skip"
}

// CopyMoveArguments describe a copy or move. Destination names the entry
// to create, not a directory to create it in. The engine only reads them.
type CopyMoveArguments struct {
	Source      pathname.Path
	Destination pathname.Path
	Tx          *native.Transaction
	// Stats receives live counters. Nil allocates a private collector.
	Stats       *stats.Collector
	Filters     Filters
	MountPoints MountPointPolicy

	// Recursive copies subdirectories; without it only the files directly
	// inside a source directory are copied.
	Recursive bool
	Overwrite bool
	// PreserveLinks recreates symbolic links at the destination. Without
	// it links are copied through to their targets.
	PreserveLinks      bool
	IgnoreReadOnly     bool
	ContinueOnNotFound bool
	// Verify compares content digests after every file copy when the
	// native backend implements native.Hasher.
	Verify bool
}

// copier carries the per-operation state of a copy.
type copier struct {
	*run
	args    CopyMoveArguments
	hasher  native.Hasher
	src     pathname.Path
	dst     pathname.Path
	created map[string]struct{} // upper-cased relative paths of ensured directories
	// caseRename is set for a move that only changes the letter case of
	// the source name.
	caseRename bool
}

func (e *Engine) newCopier(op string, args CopyMoveArguments, policy retry.Policy) *copier {
	r := e.newRun(op, args.Tx, args.Stats, policy)
	r.filter = args.Filters
	r.continueOnNotFound = args.ContinueOnNotFound
	r.ignoreReadOnly = args.IgnoreReadOnly
	c := &copier{run: r, args: args, created: make(map[string]struct{})}
	if args.Verify {
		if h, ok := e.Native.(native.Hasher); ok {
			c.hasher = h
		} else {
			r.log.Warn("native backend cannot hash; verification disabled")
		}
	}
	return c
}

// prepare canonicalizes both ends and resolves the source, which must
// exist.
func (c *copier) prepare(ctx context.Context) (entry.Info, error) {
	c.e.emit(event.Event{Type: event.OperationStarted, Path: string(c.args.Source), Target: string(c.args.Destination)})

	var err error
	if c.src, err = c.e.canon().Canonicalize(string(c.args.Source), pathname.Options{}); err != nil {
		return entry.Info{}, err
	}
	if c.dst, err = c.e.canon().Canonicalize(string(c.args.Destination), pathname.Options{}); err != nil {
		return entry.Info{}, err
	}
	move := c.op == "move"
	switch {
	case move && c.src != c.dst && pathname.Equal(c.src, c.dst):
		c.caseRename = true
	case pathname.Within(c.dst, c.src):
		return entry.Info{}, fserr.Errorf(fserr.InvalidPath, c.op, string(c.dst), "destination is inside the source")
	case move && pathname.Within(c.src, c.dst):
		return entry.Info{}, fserr.Errorf(fserr.InvalidPath, c.op, string(c.dst), "destination contains the source")
	}
	c.log.Info(c.op+" started", "src", string(c.src), "dst", string(c.dst))

	info, _, err := c.resolver().Resolve(ctx, c.src, entry.ResolveOptions{Tx: c.tx})
	return info, err
}

// Copy copies args.Source to args.Destination.
func (e *Engine) Copy(ctx context.Context, args CopyMoveArguments, policy retry.Policy) (Result, error) {
	c := e.newCopier("copy", args, policy)
	src, err := c.prepare(ctx)
	if err != nil {
		return c.finish(err)
	}
	return c.finish(c.copyRoot(ctx, src))
}

func (c *copier) copyRoot(ctx context.Context, src entry.Info) error {
	switch {
	case src.IsReparsePoint && c.args.PreserveLinks && (src.IsSymlink || src.IsMountPoint):
		if err := c.copyLink(ctx, src, c.dst); err != nil {
			return c.handle(ctx, src.Path, err)
		}
		return nil
	case !src.IsDirectory:
		if err := c.copyFile(ctx, src, c.dst); err != nil {
			return c.handle(ctx, src.Path, err)
		}
		return nil
	}
	return c.copyTree(ctx, src)
}

// copyTree replicates the directory src at c.dst. Each directory is
// created before anything inside it.
func (c *copier) copyTree(ctx context.Context, src entry.Info) error {
	if err := c.ensureDir(ctx, ""); err != nil {
		return err
	}

	opts := walk.Options{
		Tx:                 c.tx,
		Canonicalizer:      c.e.canon(),
		Include:            c.filter.Include,
		Recurse:            c.filter.Recurse,
		OnError:            c.walkOnError(),
		Recursive:          c.args.Recursive,
		ContinueOnNotFound: c.continueOnNotFound,
		FollowSymlinks:     !c.args.PreserveLinks,
	}
	if !c.args.Recursive {
		opts.Kinds = walk.KindFiles
	}
	w := walk.New(ctx, c.resolver(), src.Path, opts)
	for w.Next() {
		if err := c.copyEntry(ctx, w.Entry()); err != nil {
			return err
		}
	}
	if err := w.Err(); err != nil {
		return fmt.Errorf("walk %s: %w", src.Path, err)
	}
	return nil
}

func (c *copier) copyEntry(ctx context.Context, info entry.Info) error {
	if err := c.ensureParents(ctx, info.RelPath); err != nil {
		return err
	}
	dst, err := c.e.canon().Join(c.dst, info.RelPath)
	if err != nil {
		return c.handle(ctx, info.Path, err)
	}

	switch {
	case info.IsMountPoint:
		if c.args.MountPoints != MountPointRecreate {
			c.stats.AddSkippedMountPoints(1)
			c.log.Info("mount point skipped", "path", string(info.Path))
			c.e.emit(event.Event{Type: event.MountPointSkipped, Path: string(info.Path)})
			return nil
		}
		err = c.copyLink(ctx, info, dst)
	case info.IsSymlink && c.args.PreserveLinks:
		err = c.copyLink(ctx, info, dst)
	case info.IsDirectory:
		if info.IsReparsePoint && !info.IsSymlink {
			c.log.Warn("reparse point copied without its contents", "path", string(info.Path), "tag", fmt.Sprintf("%#x", uint32(info.Tag)))
		}
		return c.ensureDir(ctx, info.RelPath)
	default:
		err = c.copyFile(ctx, info, dst)
	}
	if err != nil {
		return c.handle(ctx, info.Path, err)
	}
	return nil
}

// ensureParents creates the destination directories above rel that the
// inclusion filter kept out of the walk.
func (c *copier) ensureParents(ctx context.Context, rel string) error {
	i := strings.LastIndexByte(rel, '\\')
	if i < 0 {
		return nil
	}
	parent := rel[:i]
	if _, ok := c.created[strings.ToUpper(parent)]; ok {
		return nil
	}
	if err := c.ensureParents(ctx, parent); err != nil {
		return err
	}
	return c.ensureDir(ctx, parent)
}

// ensureDir creates the destination directory for rel once. An existing
// directory is accepted so copies merge into existing trees.
func (c *copier) ensureDir(ctx context.Context, rel string) error {
	key := strings.ToUpper(rel)
	if _, ok := c.created[key]; ok {
		return nil
	}
	dst, err := c.e.canon().Join(c.dst, rel)
	if err != nil {
		return err
	}

	err = c.mutate(ctx, "mkdir", dst, func() error {
		return c.e.Native.CreateDir(ctx, dst, c.tx)
	})
	if fserr.Is(err, fserr.AlreadyExists) {
		a, serr := c.e.Native.Stat(ctx, dst, c.tx)
		if serr == nil && a.Attr.Has(native.AttrDirectory) && !a.Attr.Has(native.AttrReparsePoint) {
			err = nil
		}
	}
	if err != nil {
		return c.handle(ctx, dst, err)
	}

	c.created[key] = struct{}{}
	c.stats.AddFolders(1)
	c.e.emit(event.Event{Type: event.DirCreated, Path: string(dst)})
	return nil
}

// copyFile copies one file, clearing a read-only destination once when
// IgnoreReadOnly allows it.
func (c *copier) copyFile(ctx context.Context, info entry.Info, dst pathname.Path) error {
	cp := func() error { return c.e.Native.CopyFile(ctx, info.Path, dst, c.args.Overwrite, c.tx) }
	err := c.mutate(ctx, "copy", info.Path, cp)
	if err != nil && c.args.Overwrite && c.refused(err) {
		if cleared, cerr := c.clearAttributes(ctx, dst, 0, false); cerr == nil && cleared {
			c.stats.AddRetries(1)
			err = c.mutate(ctx, "copy", info.Path, cp)
		}
	}
	if err != nil {
		return err
	}

	c.stats.AddFiles(1)
	c.stats.AddBytes(info.Size)
	c.log.Debug("file copied", "src", string(info.Path), "dst", string(dst), "size", info.Size)
	c.e.emit(event.Event{Type: event.FileCopied, Path: string(info.Path), Target: string(dst), Size: info.Size})
	return c.verify(ctx, info.Path, dst)
}

// copyLink recreates a symbolic link or junction at dst with the same
// target.
func (c *copier) copyLink(ctx context.Context, info entry.Info, dst pathname.Path) error {
	var target string
	err := c.call(ctx, "readlink", info.Path, func() (err error) {
		target, err = c.e.Native.ReadLink(ctx, info.Path, c.tx)
		return err
	})
	if err != nil {
		return err
	}

	kind := native.LinkFile
	switch {
	case info.IsMountPoint:
		kind = native.LinkJunction
	case info.IsDirectory:
		kind = native.LinkDirectory
	}
	err = c.mutate(ctx, "link", dst, func() error {
		return c.e.Native.CreateLink(ctx, dst, target, kind, c.tx)
	})
	if err != nil {
		return err
	}

	c.stats.AddFiles(1)
	c.log.Debug("link created", "path", string(dst), "target", target, "kind", kind.String())
	c.e.emit(event.Event{Type: event.LinkCreated, Path: string(dst), Target: target})
	return nil
}
