package engine

import (
	"context"

	"github.com/bamsammich/widepath/internal/native"
	"github.com/bamsammich/widepath/internal/pathname"
)

// retrying routes the read-only calls the walker and resolver make
// through the run's retry policy. Mutations go through run.mutate.
type retrying struct {
	native.FS
	r *run
}

func (f *retrying) Stat(ctx context.Context, p pathname.Path, tx *native.Transaction) (native.Attributes, error) {
	var a native.Attributes
	err := f.r.call(ctx, "stat", p, func() (err error) {
		a, err = f.FS.Stat(ctx, p, tx)
		return err
	})
	return a, err
}

func (f *retrying) ReadDir(ctx context.Context, dir pathname.Path, tx *native.Transaction) ([]native.DirEntry, error) {
	var entries []native.DirEntry
	err := f.r.call(ctx, "readdir", dir, func() (err error) {
		entries, err = f.FS.ReadDir(ctx, dir, tx)
		return err
	})
	return entries, err
}

func (f *retrying) ReadLink(ctx context.Context, p pathname.Path, tx *native.Transaction) (string, error) {
	var target string
	err := f.r.call(ctx, "readlink", p, func() (err error) {
		target, err = f.FS.ReadLink(ctx, p, tx)
		return err
	})
	return target, err
}
