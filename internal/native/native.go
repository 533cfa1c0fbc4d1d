// Package native defines the filesystem primitives the tree engines call
// and provides backends for them.
package native

import (
	"context"
	"time"

	"github.com/bamsammich/widepath/internal/pathname"
)

// Attr is a set of Win32 file attribute bits.
type Attr uint32

const (
	AttrReadOnly     Attr = 0x1
	AttrHidden       Attr = 0x2
	AttrSystem       Attr = 0x4
	AttrDirectory    Attr = 0x10
	AttrArchive      Attr = 0x20
	AttrNormal       Attr = 0x80
	AttrReparsePoint Attr = 0x400
)

// Has reports whether every bit of mask is set in a.
func (a Attr) Has(mask Attr) bool { return a&mask == mask }

// ReparseTag identifies the kind of a reparse point.
type ReparseTag uint32

const (
	// TagMountPoint covers both volume mount points and junctions.
	TagMountPoint ReparseTag = 0xA0000003
	TagSymlink    ReparseTag = 0xA000000C
)

// Attributes is the result of a stat call. Tag is zero unless Attr carries
// AttrReparsePoint.
type Attributes struct {
	ModTime time.Time
	Size    int64
	Attr    Attr
	Tag     ReparseTag
}

// DirEntry is one child returned by ReadDir.
type DirEntry struct {
	Name string
	Attributes
}

// LinkKind selects what CreateLink makes.
type LinkKind int

const (
	LinkFile LinkKind = iota
	LinkDirectory
	// LinkJunction creates a mount-point reparse point. The target must be
	// an absolute directory path.
	LinkJunction
)

func (k LinkKind) String() string {
	switch k {
	case LinkFile:
		return "file"
	case LinkDirectory:
		return "directory"
	case LinkJunction:
		return "junction"
	}
	return "unknown"
}

// Transaction is a caller-owned kernel transaction handle. It is passed
// through unchanged to every native call of one operation; the core never
// opens, commits or closes it.
type Transaction struct {
	Handle uintptr
}

// FS is the set of native primitives. Every call takes the transaction of
// the current operation, nil when there is none. Implementations report
// failures as *fserr.Error so callers can branch on the kind.
type FS interface {
	// Stat returns the attributes of path without following a final
	// reparse point.
	Stat(ctx context.Context, path pathname.Path, tx *Transaction) (Attributes, error)

	// ReadDir lists the immediate children of dir, excluding . and ..
	ReadDir(ctx context.Context, dir pathname.Path, tx *Transaction) ([]DirEntry, error)

	// CopyFile copies the contents of a single file, following a final
	// symbolic link.
	CopyFile(ctx context.Context, src, dst pathname.Path, overwrite bool, tx *Transaction) error

	// Move renames a file or directory. It fails with NotSameDevice when
	// src and dst are on different volumes.
	Move(ctx context.Context, src, dst pathname.Path, overwrite bool, tx *Transaction) error

	// RemoveFile deletes a file or a file symbolic link.
	RemoveFile(ctx context.Context, path pathname.Path, tx *Transaction) error

	// RemoveDir deletes an empty directory, a directory link or a junction.
	RemoveDir(ctx context.Context, path pathname.Path, tx *Transaction) error

	SetAttributes(ctx context.Context, path pathname.Path, attr Attr, tx *Transaction) error
	CreateDir(ctx context.Context, path pathname.Path, tx *Transaction) error

	// CreateLink creates link pointing at target.
	CreateLink(ctx context.Context, link pathname.Path, target string, kind LinkKind, tx *Transaction) error

	// ReadLink returns the target of a symbolic link or junction.
	ReadLink(ctx context.Context, path pathname.Path, tx *Transaction) (string, error)
}

// Hasher is implemented by backends that can digest a file's content.
// The digest is a hex-encoded BLAKE3 sum.
type Hasher interface {
	Hash(ctx context.Context, path pathname.Path, tx *Transaction) (string, error)
}
