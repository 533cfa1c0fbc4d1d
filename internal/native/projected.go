package native

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"

	"github.com/bamsammich/widepath/internal/fserr"
	"github.com/bamsammich/widepath/internal/pathname"
	"github.com/bamsammich/widepath/internal/platform"
)

// Compile-time interface checks.
var (
	_ FS     = (*Projected)(nil)
	_ Hasher = (*Projected)(nil)
)

// ntPrefix marks a link target as a junction, as in the substitute name
// of a mount-point reparse buffer.
const ntPrefix = `\??\`

var (
	errReadOnlyEntry = errors.New("entry is read-only")
	errNoTransaction = errors.New("transactions are not supported by the projected backend")
	errNoLinks       = errors.New("links are not supported by the underlying filesystem")
)

// Projected maps the Windows namespace onto an afero.Fs:
//
//	C:\dir\file               -> <root>/c/dir/file
//	\\server\share\file       -> <root>/unc/server/share/file
//	\\?\Volume{GUID}\file     -> <root>/volume/{guid}/file
//
// Each drive, share and volume is a separate device, so moves between them
// fail with NotSameDevice. A file is read-only when its owner-write bit is
// clear; names starting with a dot are hidden. Links need a filesystem that
// implements afero.Linker and afero.LinkReader. Transactions are refused.
type Projected struct {
	fs   afero.Fs
	root string
}

// NewProjected returns a backend storing its tree under root in fsys.
func NewProjected(fsys afero.Fs, root string) *Projected {
	if root == "" {
		root = "/"
	}
	return &Projected{fs: fsys, root: root}
}

// resolve maps a canonical path to its location in the projection and
// returns the device it lives on.
func (p *Projected) resolve(op string, name pathname.Path) (real, device string, err error) {
	s := string(pathname.Regular(name))
	cls := pathname.Classify(s)

	var rest string
	switch {
	case cls.Form == pathname.DriveAbsolute && cls.Rooted:
		device, rest = strings.ToLower(s[:1]), s[3:]
	case cls.Form == pathname.Device && len(s) >= 6 && s[5] == ':':
		device, rest = strings.ToLower(s[4:5]), strings.TrimPrefix(s[6:], `\`)
	case cls.Form == pathname.UNC:
		parts := strings.SplitN(s[2:], `\`, 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return "", "", fserr.Errorf(fserr.InvalidPath, op, string(name), "malformed share root")
		}
		device = "unc/" + strings.ToLower(parts[0]) + "/" + strings.ToLower(parts[1])
		if len(parts) == 3 {
			rest = parts[2]
		}
	case cls.Form == pathname.VolumeGUID:
		guid, tail, _ := strings.Cut(s[len(pathname.VolumePrefix)-1:], `\`)
		device, rest = "volume/"+strings.ToLower(guid), tail
	default:
		return "", "", fserr.Errorf(fserr.UnsupportedPath, op, string(name), "%s paths cannot be projected", cls.Form)
	}

	return path.Join(p.root, device, strings.ReplaceAll(rest, `\`, "/")), device, nil
}

func (p *Projected) fail(op string, name pathname.Path, err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	var le *os.LinkError
	if errors.As(err, &le) {
		err = le.Err
	}
	return fserr.WithPath(err, op, string(name))
}

func (p *Projected) checkTx(op string, name pathname.Path, tx *Transaction) error {
	if tx != nil {
		return fserr.New(fserr.NativeFailure, op, string(name), errNoTransaction)
	}
	return nil
}

func (p *Projected) lstat(real string) (os.FileInfo, error) {
	if l, ok := p.fs.(afero.Lstater); ok {
		fi, _, err := l.LstatIfPossible(real)
		return fi, err
	}
	return p.fs.Stat(real)
}

func (p *Projected) readlink(real string) (string, error) {
	r, ok := p.fs.(afero.LinkReader)
	if !ok {
		return "", errNoLinks
	}
	return r.ReadlinkIfPossible(real)
}

func attributesOf(fi os.FileInfo) Attributes {
	a := Attributes{Size: fi.Size(), ModTime: fi.ModTime()}
	if fi.IsDir() {
		a.Attr |= AttrDirectory
		a.Size = 0
	} else {
		a.Attr |= AttrArchive
	}
	if fi.Mode().Perm()&0o200 == 0 {
		a.Attr |= AttrReadOnly
	}
	if strings.HasPrefix(fi.Name(), ".") {
		a.Attr |= AttrHidden
	}
	return a
}

// attributes classifies fi, which was obtained without following links.
func (p *Projected) attributes(name pathname.Path, real string, fi os.FileInfo) (Attributes, error) {
	if fi.Mode()&fs.ModeSymlink == 0 {
		return attributesOf(fi), nil
	}

	target, err := p.readlink(real)
	if err != nil {
		return Attributes{}, err
	}
	a := Attributes{ModTime: fi.ModTime(), Attr: AttrReparsePoint, Tag: TagSymlink}
	if strings.HasPrefix(target, ntPrefix) {
		a.Attr |= AttrDirectory
		a.Tag = TagMountPoint
		return a, nil
	}
	if p.targetIsDir(name, target) {
		a.Attr |= AttrDirectory
	}
	return a, nil
}

// targetIsDir resolves a symbolic link target through the projection.
// Dangling targets count as files.
func (p *Projected) targetIsDir(link pathname.Path, target string) bool {
	abs := target
	if !pathname.Classify(target).Rooted {
		abs = string(pathname.Regular(link.Dir())) + `\` + target
	}
	var c pathname.Canonicalizer
	canon, err := c.Canonicalize(abs, pathname.Options{})
	if err != nil {
		return false
	}
	real, _, err := p.resolve("stat", canon)
	if err != nil {
		return false
	}
	fi, err := p.fs.Stat(real)
	return err == nil && fi.IsDir()
}

func (p *Projected) Stat(_ context.Context, name pathname.Path, tx *Transaction) (Attributes, error) {
	const op = "stat"
	if err := p.checkTx(op, name, tx); err != nil {
		return Attributes{}, err
	}
	real, _, err := p.resolve(op, name)
	if err != nil {
		return Attributes{}, err
	}
	fi, err := p.lstat(real)
	if err != nil {
		return Attributes{}, p.fail(op, name, err)
	}
	a, err := p.attributes(name, real, fi)
	if err != nil {
		return Attributes{}, p.fail(op, name, err)
	}
	return a, nil
}

func (p *Projected) ReadDir(_ context.Context, dir pathname.Path, tx *Transaction) ([]DirEntry, error) {
	const op = "readdir"
	if err := p.checkTx(op, dir, tx); err != nil {
		return nil, err
	}
	real, _, err := p.resolve(op, dir)
	if err != nil {
		return nil, err
	}
	fi, err := p.lstat(real)
	if err != nil {
		return nil, p.fail(op, dir, err)
	}
	if !fi.IsDir() {
		return nil, fserr.FromCode(fserr.CodeDirectory, op, string(dir), errors.New("not a directory"))
	}

	infos, err := afero.ReadDir(p.fs, real)
	if err != nil {
		return nil, p.fail(op, dir, err)
	}
	entries := make([]DirEntry, 0, len(infos))
	for _, info := range infos {
		child := pathname.Path(string(dir) + `\` + info.Name())
		if strings.HasSuffix(string(dir), `\`) {
			child = pathname.Path(string(dir) + info.Name())
		}
		a, err := p.attributes(child, path.Join(real, info.Name()), info)
		if err != nil {
			return nil, p.fail(op, child, err)
		}
		entries = append(entries, DirEntry{Name: info.Name(), Attributes: a})
	}
	return entries, nil
}

func (p *Projected) CopyFile(_ context.Context, src, dst pathname.Path, overwrite bool, tx *Transaction) error {
	const op = "copy"
	if err := p.checkTx(op, src, tx); err != nil {
		return err
	}
	srcReal, _, err := p.resolve(op, src)
	if err != nil {
		return err
	}
	dstReal, _, err := p.resolve(op, dst)
	if err != nil {
		return err
	}

	srcInfo, err := p.fs.Stat(srcReal)
	if err != nil {
		return p.fail(op, src, err)
	}
	if srcInfo.IsDir() {
		return fserr.FromCode(fserr.CodeAccessDenied, op, string(src), errors.New("source is a directory"))
	}
	if err := p.clearDestination(op, dst, dstReal, overwrite); err != nil {
		return err
	}

	in, err := p.fs.Open(srcReal)
	if err != nil {
		return p.fail(op, src, err)
	}
	defer in.Close()

	tmpReal := path.Join(path.Dir(dstReal),
		fmt.Sprintf(".%s.%s.widepath-tmp", path.Base(dstReal), uuid.New().String()[:8]))
	out, err := p.fs.OpenFile(tmpReal, os.O_WRONLY|os.O_CREATE|os.O_EXCL, srcInfo.Mode().Perm()|0o200)
	if err != nil {
		return p.fail(op, dst, err)
	}
	if err := copyData(out, in, srcInfo.Size()); err != nil {
		out.Close()
		_ = p.fs.Remove(tmpReal)
		return p.fail(op, dst, err)
	}
	if err := out.Close(); err != nil {
		_ = p.fs.Remove(tmpReal)
		return p.fail(op, dst, err)
	}
	if err := p.fs.Rename(tmpReal, dstReal); err != nil {
		_ = p.fs.Remove(tmpReal)
		return p.fail(op, dst, err)
	}
	_ = p.fs.Chtimes(dstReal, srcInfo.ModTime(), srcInfo.ModTime())
	if err := p.fs.Chmod(dstReal, srcInfo.Mode().Perm()); err != nil {
		return p.fail(op, dst, err)
	}
	return nil
}

// copyData hands host files to the kernel copy path and streams anything
// else.
func copyData(dst, src afero.File, size int64) error {
	dstFile, dok := dst.(*os.File)
	srcFile, sok := src.(*os.File)
	if dok && sok {
		_, err := platform.CopyData(dstFile, srcFile, size)
		return err
	}
	_, err := io.Copy(dst, src)
	return err
}

// clearDestination removes an existing file at dst when overwrite allows
// it. Directories and read-only files are never replaced.
func (p *Projected) clearDestination(op string, dst pathname.Path, dstReal string, overwrite bool) error {
	fi, err := p.lstat(dstReal)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return p.fail(op, dst, err)
	case !overwrite:
		return fserr.FromCode(fserr.CodeFileExists, op, string(dst), errors.New("destination exists"))
	case fi.IsDir():
		return fserr.FromCode(fserr.CodeAccessDenied, op, string(dst), errors.New("destination is a directory"))
	case fi.Mode()&fs.ModeSymlink == 0 && fi.Mode().Perm()&0o200 == 0:
		return fserr.FromCode(fserr.CodeAccessDenied, op, string(dst), errReadOnlyEntry)
	}
	if err := p.fs.Remove(dstReal); err != nil {
		return p.fail(op, dst, err)
	}
	return nil
}

func (p *Projected) Move(_ context.Context, src, dst pathname.Path, overwrite bool, tx *Transaction) error {
	const op = "move"
	if err := p.checkTx(op, src, tx); err != nil {
		return err
	}
	srcReal, srcDev, err := p.resolve(op, src)
	if err != nil {
		return err
	}
	dstReal, dstDev, err := p.resolve(op, dst)
	if err != nil {
		return err
	}
	if _, err := p.lstat(srcReal); err != nil {
		return p.fail(op, src, err)
	}
	if srcDev != dstDev {
		return fserr.FromCode(fserr.CodeNotSameDevice, op, string(src),
			fmt.Errorf("cannot move to %s", dst))
	}
	if !pathname.Equal(src, dst) {
		if err := p.clearDestination(op, dst, dstReal, overwrite); err != nil {
			return err
		}
	}
	if err := p.fs.Rename(srcReal, dstReal); err != nil {
		return p.fail(op, src, err)
	}
	return nil
}

func (p *Projected) RemoveFile(_ context.Context, name pathname.Path, tx *Transaction) error {
	const op = "remove"
	if err := p.checkTx(op, name, tx); err != nil {
		return err
	}
	real, _, err := p.resolve(op, name)
	if err != nil {
		return err
	}
	fi, err := p.lstat(real)
	if err != nil {
		return p.fail(op, name, err)
	}
	switch {
	case fi.IsDir():
		return fserr.FromCode(fserr.CodeAccessDenied, op, string(name), errors.New("entry is a directory"))
	case fi.Mode()&fs.ModeSymlink == 0 && fi.Mode().Perm()&0o200 == 0:
		return fserr.FromCode(fserr.CodeAccessDenied, op, string(name), errReadOnlyEntry)
	}
	if err := p.fs.Remove(real); err != nil {
		return p.fail(op, name, err)
	}
	return nil
}

func (p *Projected) RemoveDir(_ context.Context, name pathname.Path, tx *Transaction) error {
	const op = "rmdir"
	if err := p.checkTx(op, name, tx); err != nil {
		return err
	}
	real, _, err := p.resolve(op, name)
	if err != nil {
		return err
	}
	fi, err := p.lstat(real)
	if err != nil {
		return p.fail(op, name, err)
	}
	if fi.Mode()&fs.ModeSymlink != 0 {
		if err := p.fs.Remove(real); err != nil {
			return p.fail(op, name, err)
		}
		return nil
	}
	if !fi.IsDir() {
		return fserr.FromCode(fserr.CodeDirectory, op, string(name), errors.New("not a directory"))
	}
	if fi.Mode().Perm()&0o200 == 0 {
		return fserr.FromCode(fserr.CodeAccessDenied, op, string(name), errReadOnlyEntry)
	}
	empty, err := afero.IsEmpty(p.fs, real)
	if err != nil {
		return p.fail(op, name, err)
	}
	if !empty {
		return fserr.FromCode(fserr.CodeDirNotEmpty, op, string(name), errors.New("directory not empty"))
	}
	if err := p.fs.Remove(real); err != nil {
		return p.fail(op, name, err)
	}
	return nil
}

// SetAttributes maps AttrReadOnly onto the write bits. Other attributes
// have no projection and are ignored.
func (p *Projected) SetAttributes(_ context.Context, name pathname.Path, attr Attr, tx *Transaction) error {
	const op = "setattr"
	if err := p.checkTx(op, name, tx); err != nil {
		return err
	}
	real, _, err := p.resolve(op, name)
	if err != nil {
		return err
	}
	fi, err := p.lstat(real)
	if err != nil {
		return p.fail(op, name, err)
	}
	if fi.Mode()&fs.ModeSymlink != 0 {
		return nil
	}
	mode := fi.Mode().Perm()
	if attr.Has(AttrReadOnly) {
		mode &^= 0o222
	} else {
		mode |= 0o200
	}
	if err := p.fs.Chmod(real, mode); err != nil {
		return p.fail(op, name, err)
	}
	return nil
}

func (p *Projected) CreateDir(_ context.Context, name pathname.Path, tx *Transaction) error {
	const op = "mkdir"
	if err := p.checkTx(op, name, tx); err != nil {
		return err
	}
	real, _, err := p.resolve(op, name)
	if err != nil {
		return err
	}
	if _, err := p.lstat(path.Dir(real)); err != nil {
		return fserr.FromCode(fserr.CodePathNotFound, op, string(name), errors.New("parent does not exist"))
	}
	if _, err := p.lstat(real); err == nil {
		return fserr.FromCode(fserr.CodeAlreadyExists, op, string(name), errors.New("entry exists"))
	}
	if err := p.fs.Mkdir(real, 0o755); err != nil {
		return p.fail(op, name, err)
	}
	return nil
}

func (p *Projected) CreateLink(
	_ context.Context,
	link pathname.Path,
	target string,
	kind LinkKind,
	tx *Transaction,
) error {
	const op = "link"
	if err := p.checkTx(op, link, tx); err != nil {
		return err
	}
	real, _, err := p.resolve(op, link)
	if err != nil {
		return err
	}
	linker, ok := p.fs.(afero.Linker)
	if !ok {
		return fserr.New(fserr.NativeFailure, op, string(link), errNoLinks)
	}
	if kind == LinkJunction {
		if !pathname.Classify(target).Rooted {
			return fserr.Errorf(fserr.InvalidPath, op, string(link), "junction target %q is not absolute", target)
		}
		target = ntPrefix + string(pathname.Regular(pathname.Path(target)))
	}
	if _, err := p.lstat(real); err == nil {
		return fserr.FromCode(fserr.CodeAlreadyExists, op, string(link), errors.New("entry exists"))
	}
	if err := linker.SymlinkIfPossible(target, real); err != nil {
		return p.fail(op, link, err)
	}
	return nil
}

func (p *Projected) ReadLink(_ context.Context, name pathname.Path, tx *Transaction) (string, error) {
	const op = "readlink"
	if err := p.checkTx(op, name, tx); err != nil {
		return "", err
	}
	real, _, err := p.resolve(op, name)
	if err != nil {
		return "", err
	}
	fi, err := p.lstat(real)
	if err != nil {
		return "", p.fail(op, name, err)
	}
	if fi.Mode()&fs.ModeSymlink == 0 {
		return "", fserr.FromCode(fserr.CodeNotAReparsePoint, op, string(name), errors.New("not a link"))
	}
	target, err := p.readlink(real)
	if err != nil {
		return "", p.fail(op, name, err)
	}
	return strings.TrimPrefix(target, ntPrefix), nil
}

// Hash returns the hex BLAKE3 digest of a file.
func (p *Projected) Hash(_ context.Context, name pathname.Path, tx *Transaction) (string, error) {
	const op = "hash"
	if err := p.checkTx(op, name, tx); err != nil {
		return "", err
	}
	real, _, err := p.resolve(op, name)
	if err != nil {
		return "", err
	}
	f, err := p.fs.Open(real)
	if err != nil {
		return "", p.fail(op, name, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", p.fail(op, name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
