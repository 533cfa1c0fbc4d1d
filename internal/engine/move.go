package engine

import (
	"context"

	"github.com/bamsammich/widepath/internal/entry"
	"github.com/bamsammich/widepath/internal/event"
	"github.com/bamsammich/widepath/internal/fserr"
	"github.com/bamsammich/widepath/internal/retry"
)

// Move moves args.Source to args.Destination with a single native move
// when both are on one volume. Across volumes it copies and then deletes
// the source; the result counts every entry once either way. With
// Overwrite, an existing destination directory is deleted completely
// before the move because the native move cannot replace a non-empty
// directory. A destination that contains the source is refused; one that
// differs from the source only in letter case renames it in place.
func (e *Engine) Move(ctx context.Context, args CopyMoveArguments, policy retry.Policy) (Result, error) {
	c := e.newCopier("move", args, policy)
	src, err := c.prepare(ctx)
	if err != nil {
		return c.finish(err)
	}
	return c.finish(c.moveRoot(ctx, src))
}

func (c *copier) moveRoot(ctx context.Context, src entry.Info) error {
	plainDir := src.IsDirectory && !src.IsReparsePoint
	if plainDir && c.args.Overwrite && !c.caseRename {
		if err := c.clearDestination(ctx); err != nil {
			return err
		}
	}

	mv := func() error { return c.e.Native.Move(ctx, src.Path, c.dst, c.args.Overwrite, c.tx) }
	err := c.mutate(ctx, "move", src.Path, mv)
	if err != nil && !plainDir && c.args.Overwrite && c.refused(err) {
		if cleared, cerr := c.clearAttributes(ctx, c.dst, 0, false); cerr == nil && cleared {
			c.stats.AddRetries(1)
			err = c.mutate(ctx, "move", src.Path, mv)
		}
	}

	switch {
	case err == nil:
		c.moved(src)
		return nil
	case fserr.Is(err, fserr.NotSameDevice):
		c.log.Info("volumes differ, copying then deleting the source", "src", string(src.Path), "dst", string(c.dst))
		return c.moveAcross(ctx, src)
	}
	return c.handle(ctx, src.Path, err)
}

func (c *copier) moved(src entry.Info) {
	if src.IsDirectory && !src.IsReparsePoint {
		c.stats.AddFolders(1)
	} else {
		c.stats.AddFiles(1)
		c.stats.AddBytes(src.Size)
	}
	c.e.emit(event.Event{Type: event.FileMoved, Path: string(src.Path), Target: string(c.dst), Size: src.Size})
}

// clearDestination deletes whatever exists at the destination.
func (c *copier) clearDestination(ctx context.Context) error {
	sub := c.child("delete")
	sub.filter = Filters{}
	sub.continueOnNotFound = true
	err := sub.delete(ctx, c.dst, true)
	c.stats.AddRetries(sub.stats.Snapshot().Retries)
	if err != nil {
		return err
	}
	c.log.Debug("destination cleared", "path", string(c.dst))
	return nil
}

// moveAcross emulates a move between volumes. Links and mount points are
// recreated rather than followed, since the source is removed afterwards.
// The source is kept when any entry failed to copy.
func (c *copier) moveAcross(ctx context.Context, src entry.Info) error {
	var err error
	switch {
	case src.IsReparsePoint && (src.IsSymlink || src.IsMountPoint):
		err = c.copyLink(ctx, src, c.dst)
	case !src.IsDirectory:
		err = c.copyFile(ctx, src, c.dst)
	default:
		c.args.Recursive = true
		c.args.PreserveLinks = true
		c.args.MountPoints = MountPointRecreate
		c.filter = Filters{OnError: c.filter.OnError}
		if err := c.copyTree(ctx, src); err != nil {
			return err
		}
	}
	if err != nil {
		// A swallowed failure leaves nothing to delete.
		return c.handle(ctx, src.Path, err)
	}

	if failed := c.stats.Snapshot().Failed; failed > 0 {
		c.log.Warn("source kept, some entries were not copied", "path", string(src.Path), "failed", failed)
		return nil
	}

	sub := c.child("delete")
	sub.filter = Filters{}
	sub.continueOnNotFound = true
	err = sub.delete(ctx, src.Path, true)
	c.stats.AddRetries(sub.stats.Snapshot().Retries)
	return err
}
