// Package entry classifies a single filesystem object.
package entry

import (
	"context"
	"time"

	"github.com/bamsammich/widepath/internal/fserr"
	"github.com/bamsammich/widepath/internal/native"
	"github.com/bamsammich/widepath/internal/pathname"
)

// Info describes one filesystem object at the moment it was observed. It
// is never cached; the object may change before it is acted on.
type Info struct {
	ModTime time.Time
	Path    pathname.Path
	// RelPath is relative to the walk root, "" for the root itself.
	RelPath string
	Size    int64
	Attr    native.Attr
	Tag     native.ReparseTag

	IsDirectory    bool
	IsReparsePoint bool
	// IsMountPoint is set only for the mount-point tag, which covers volume
	// mount points and junctions. Symbolic links are not mount points.
	IsMountPoint bool
	IsSymlink    bool
	IsReadOnly   bool
	IsHidden     bool
}

// FromAttributes builds an Info from stat or enumeration data.
func FromAttributes(path pathname.Path, rel string, a native.Attributes) Info {
	reparse := a.Attr.Has(native.AttrReparsePoint)
	return Info{
		Path:           path,
		RelPath:        rel,
		Size:           a.Size,
		ModTime:        a.ModTime,
		Attr:           a.Attr,
		Tag:            a.Tag,
		IsDirectory:    a.Attr.Has(native.AttrDirectory),
		IsReparsePoint: reparse,
		IsMountPoint:   reparse && a.Tag == native.TagMountPoint,
		IsSymlink:      reparse && a.Tag == native.TagSymlink,
		IsReadOnly:     a.Attr.Has(native.AttrReadOnly),
		IsHidden:       a.Attr.Has(native.AttrHidden),
	}
}

// Kind is a short label for display: file, dir, symlink, junction or
// reparse.
func (i Info) Kind() string {
	switch {
	case i.IsMountPoint:
		return "junction"
	case i.IsSymlink:
		return "symlink"
	case i.IsReparsePoint:
		return "reparse"
	case i.IsDirectory:
		return "dir"
	}
	return "file"
}

// FollowPolicy selects which directory reparse points may be entered.
type FollowPolicy struct {
	FollowMountPoints bool
	FollowSymlinks    bool
}

// Descend reports whether the contents of info may be traversed. Plain
// directories always are; mount points and directory symbolic links only
// when the policy allows it; other reparse points never are.
func Descend(info Info, policy FollowPolicy) bool {
	switch {
	case !info.IsDirectory:
		return false
	case info.IsMountPoint:
		return policy.FollowMountPoints
	case info.IsSymlink:
		return policy.FollowSymlinks
	case info.IsReparsePoint:
		return false
	}
	return true
}

// ResolveOptions tune Resolve.
type ResolveOptions struct {
	Tx *native.Transaction
	// ContinueOnNotFound reports a missing path as (Info{}, false, nil).
	ContinueOnNotFound bool
	// ExpectDirectory fails with DirectoryExpectedButFileFound when the
	// path is not a directory.
	ExpectDirectory bool
}

// Resolver turns canonical paths into Info values.
type Resolver struct {
	fs native.FS
}

// NewResolver returns a Resolver over fs.
func NewResolver(fs native.FS) *Resolver {
	if fs == nil {
		panic("entry: nil native.FS")
	}
	return &Resolver{fs: fs}
}

// FS returns the backend the resolver queries.
func (r *Resolver) FS() native.FS { return r.fs }

// Resolve stats path with exactly one native call. found is false only
// when the path does not exist and ContinueOnNotFound is set. Access
// denied is always returned as an error.
func (r *Resolver) Resolve(ctx context.Context, path pathname.Path, opts ResolveOptions) (info Info, found bool, err error) {
	a, err := r.fs.Stat(ctx, path, opts.Tx)
	if err != nil {
		if opts.ContinueOnNotFound && fserr.Is(err, fserr.NotFound) {
			return Info{}, false, nil
		}
		return Info{}, false, fserr.WithPath(err, "stat", string(path))
	}

	info = FromAttributes(path, "", a)
	if opts.ExpectDirectory && !info.IsDirectory {
		return info, true, fserr.Errorf(fserr.DirectoryExpectedButFileFound, "stat", string(path),
			"expected a directory")
	}
	return info, true, nil
}
