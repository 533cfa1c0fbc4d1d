//go:build windows

package native

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"
	"time"
	"unsafe"

	"github.com/Microsoft/go-winio"
	"github.com/zeebo/blake3"
	"golang.org/x/sys/windows"

	"github.com/bamsammich/widepath/internal/fserr"
	"github.com/bamsammich/widepath/internal/pathname"
)

// Compile-time interface checks.
var (
	_ FS     = (*Windows)(nil)
	_ Hasher = (*Windows)(nil)
)

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procCopyFileW                     = modkernel32.NewProc("CopyFileW")
	procCopyFileTransactedW           = modkernel32.NewProc("CopyFileTransactedW")
	procMoveFileTransactedW           = modkernel32.NewProc("MoveFileTransactedW")
	procDeleteFileTransactedW         = modkernel32.NewProc("DeleteFileTransactedW")
	procRemoveDirectoryTransactedW    = modkernel32.NewProc("RemoveDirectoryTransactedW")
	procCreateDirectoryTransactedW    = modkernel32.NewProc("CreateDirectoryTransactedW")
	procSetFileAttributesTransactedW  = modkernel32.NewProc("SetFileAttributesTransactedW")
	procGetFileAttributesTransactedW  = modkernel32.NewProc("GetFileAttributesTransactedW")
	procFindFirstFileTransactedW      = modkernel32.NewProc("FindFirstFileTransactedW")
	procCreateSymbolicLinkTransactedW = modkernel32.NewProc("CreateSymbolicLinkTransactedW")
	procCreateFileTransactedW         = modkernel32.NewProc("CreateFileTransactedW")
)

const (
	fsctlSetReparsePoint = 0x000900a4
	fsctlGetReparsePoint = 0x000900a8

	maxReparseBuffer = 16 * 1024

	copyFileFailIfExists = 0x1

	symlinkFlagDirectory        = 0x1
	symlinkFlagAllowUnprivilege = 0x2
)

// Windows calls the Win32 API directly. Paths are passed through as
// given, so extended-length paths reach the kernel unmodified. When a
// transaction is supplied the *Transacted entry points are used.
type Windows struct{}

// NewWindows returns the native Windows backend.
func NewWindows() *Windows { return &Windows{} }

func utf16(op string, name pathname.Path) (*uint16, error) {
	p, err := windows.UTF16PtrFromString(string(name))
	if err != nil {
		return nil, fserr.New(fserr.InvalidPath, op, string(name), err)
	}
	return p, nil
}

func failure(op string, name pathname.Path, err error) error {
	var errno windows.Errno
	if errors.As(err, &errno) {
		return fserr.FromCode(uint32(errno), op, string(name), err)
	}
	return fserr.WithPath(err, op, string(name))
}

// call runs a transacted entry point that returns a BOOL.
func call(proc *windows.LazyProc, args ...uintptr) error {
	r1, _, e := proc.Call(args...)
	if r1 == 0 {
		return e
	}
	return nil
}

func handleOf(tx *Transaction) uintptr { return tx.Handle }

// Stat issues one query. Named entries go through FindFirstFile, whose
// find data carries the attributes and the reparse tag together; roots,
// which FindFirstFile cannot address, use GetFileAttributesEx.
func (w *Windows) Stat(_ context.Context, name pathname.Path, tx *Transaction) (Attributes, error) {
	const op = "stat"
	p, err := utf16(op, name)
	if err != nil {
		return Attributes{}, err
	}
	if name.IsRoot() {
		return rootAttributes(op, name, p, tx)
	}

	var fd windows.Win32finddata
	h, err := findFirst(p, &fd, tx)
	if err != nil {
		return Attributes{}, failure(op, name, err)
	}
	windows.FindClose(h)
	return findAttributes(&fd), nil
}

func rootAttributes(op string, name pathname.Path, p *uint16, tx *Transaction) (Attributes, error) {
	var data windows.Win32FileAttributeData
	var err error
	if tx == nil {
		err = windows.GetFileAttributesEx(p, windows.GetFileExInfoStandard, (*byte)(unsafe.Pointer(&data)))
	} else {
		err = call(procGetFileAttributesTransactedW, uintptr(unsafe.Pointer(p)),
			uintptr(windows.GetFileExInfoStandard), uintptr(unsafe.Pointer(&data)), handleOf(tx))
	}
	if err != nil {
		return Attributes{}, failure(op, name, err)
	}
	return Attributes{
		Attr:    Attr(data.FileAttributes),
		Size:    int64(data.FileSizeHigh)<<32 | int64(data.FileSizeLow),
		ModTime: time.Unix(0, data.LastWriteTime.Nanoseconds()),
	}, nil
}

// findAttributes converts find data. Reserved0 holds the reparse tag when
// the reparse-point attribute is set.
func findAttributes(fd *windows.Win32finddata) Attributes {
	a := Attributes{
		Attr:    Attr(fd.FileAttributes),
		Size:    int64(fd.FileSizeHigh)<<32 | int64(fd.FileSizeLow),
		ModTime: time.Unix(0, fd.LastWriteTime.Nanoseconds()),
	}
	if a.Attr.Has(AttrReparsePoint) {
		a.Tag = ReparseTag(fd.Reserved0)
	}
	return a
}

func findFirst(p *uint16, fd *windows.Win32finddata, tx *Transaction) (windows.Handle, error) {
	if tx == nil {
		return windows.FindFirstFile(p, fd)
	}
	r1, _, e := procFindFirstFileTransactedW.Call(uintptr(unsafe.Pointer(p)), 0,
		uintptr(unsafe.Pointer(fd)), 0, 0, 0, handleOf(tx))
	if windows.Handle(r1) == windows.InvalidHandle {
		return windows.InvalidHandle, e
	}
	return windows.Handle(r1), nil
}

func (w *Windows) ReadDir(_ context.Context, dir pathname.Path, tx *Transaction) ([]DirEntry, error) {
	const op = "readdir"
	pattern := strings.TrimSuffix(string(dir), `\`) + `\*`
	p, err := utf16(op, pathname.Path(pattern))
	if err != nil {
		return nil, err
	}

	var fd windows.Win32finddata
	h, err := findFirst(p, &fd, tx)
	if err != nil {
		if errors.Is(err, windows.ERROR_FILE_NOT_FOUND) {
			return nil, nil
		}
		return nil, failure(op, dir, err)
	}
	defer windows.FindClose(h)

	var entries []DirEntry
	for {
		name := windows.UTF16ToString(fd.FileName[:])
		if name != "." && name != ".." {
			entries = append(entries, DirEntry{Name: name, Attributes: findAttributes(&fd)})
		}
		if err := windows.FindNextFile(h, &fd); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				return entries, nil
			}
			return nil, failure(op, dir, err)
		}
	}
}

func (w *Windows) CopyFile(_ context.Context, src, dst pathname.Path, overwrite bool, tx *Transaction) error {
	const op = "copy"
	from, err := utf16(op, src)
	if err != nil {
		return err
	}
	to, err := utf16(op, dst)
	if err != nil {
		return err
	}

	var failIfExists uintptr
	if !overwrite {
		failIfExists = 1
	}
	if tx == nil {
		err = call(procCopyFileW, uintptr(unsafe.Pointer(from)), uintptr(unsafe.Pointer(to)), failIfExists)
	} else {
		flags := uintptr(0)
		if !overwrite {
			flags = copyFileFailIfExists
		}
		err = call(procCopyFileTransactedW, uintptr(unsafe.Pointer(from)), uintptr(unsafe.Pointer(to)),
			0, 0, 0, flags, handleOf(tx))
	}
	if err != nil {
		return failure(op, src, err)
	}
	return nil
}

func (w *Windows) Move(_ context.Context, src, dst pathname.Path, overwrite bool, tx *Transaction) error {
	const op = "move"
	from, err := utf16(op, src)
	if err != nil {
		return err
	}
	to, err := utf16(op, dst)
	if err != nil {
		return err
	}

	var flags uint32
	if overwrite {
		flags |= windows.MOVEFILE_REPLACE_EXISTING
	}
	if tx == nil {
		err = windows.MoveFileEx(from, to, flags)
	} else {
		err = call(procMoveFileTransactedW, uintptr(unsafe.Pointer(from)), uintptr(unsafe.Pointer(to)),
			0, 0, uintptr(flags), handleOf(tx))
	}
	if err != nil {
		return failure(op, src, err)
	}
	return nil
}

func (w *Windows) RemoveFile(_ context.Context, name pathname.Path, tx *Transaction) error {
	const op = "remove"
	p, err := utf16(op, name)
	if err != nil {
		return err
	}
	if tx == nil {
		err = windows.DeleteFile(p)
	} else {
		err = call(procDeleteFileTransactedW, uintptr(unsafe.Pointer(p)), handleOf(tx))
	}
	if err != nil {
		return failure(op, name, err)
	}
	return nil
}

func (w *Windows) RemoveDir(_ context.Context, name pathname.Path, tx *Transaction) error {
	const op = "rmdir"
	p, err := utf16(op, name)
	if err != nil {
		return err
	}
	if tx == nil {
		err = windows.RemoveDirectory(p)
	} else {
		err = call(procRemoveDirectoryTransactedW, uintptr(unsafe.Pointer(p)), handleOf(tx))
	}
	if err != nil {
		return failure(op, name, err)
	}
	return nil
}

func (w *Windows) SetAttributes(_ context.Context, name pathname.Path, attr Attr, tx *Transaction) error {
	const op = "setattr"
	p, err := utf16(op, name)
	if err != nil {
		return err
	}
	if attr == 0 {
		attr = AttrNormal
	}
	if tx == nil {
		err = windows.SetFileAttributes(p, uint32(attr))
	} else {
		err = call(procSetFileAttributesTransactedW, uintptr(unsafe.Pointer(p)), uintptr(attr), handleOf(tx))
	}
	if err != nil {
		return failure(op, name, err)
	}
	return nil
}

func (w *Windows) CreateDir(_ context.Context, name pathname.Path, tx *Transaction) error {
	const op = "mkdir"
	p, err := utf16(op, name)
	if err != nil {
		return err
	}
	if tx == nil {
		err = windows.CreateDirectory(p, nil)
	} else {
		err = call(procCreateDirectoryTransactedW, 0, uintptr(unsafe.Pointer(p)), 0, handleOf(tx))
	}
	if err != nil {
		return failure(op, name, err)
	}
	return nil
}

func (w *Windows) CreateLink(
	ctx context.Context,
	link pathname.Path,
	target string,
	kind LinkKind,
	tx *Transaction,
) error {
	const op = "link"
	if kind == LinkJunction {
		return w.createJunction(ctx, link, target, tx)
	}

	p, err := utf16(op, link)
	if err != nil {
		return err
	}
	t, err := windows.UTF16PtrFromString(target)
	if err != nil {
		return fserr.New(fserr.InvalidPath, op, target, err)
	}
	flags := uint32(symlinkFlagAllowUnprivilege)
	if kind == LinkDirectory {
		flags |= symlinkFlagDirectory
	}
	if tx == nil {
		err = windows.CreateSymbolicLink(p, t, flags)
	} else {
		// CreateSymbolicLinkTransactedW returns BOOLEAN; only the low byte
		// is meaningful.
		r1, _, e := procCreateSymbolicLinkTransactedW.Call(uintptr(unsafe.Pointer(p)),
			uintptr(unsafe.Pointer(t)), uintptr(flags), handleOf(tx))
		if byte(r1) == 0 {
			err = e
		}
	}
	if err != nil {
		return failure(op, link, err)
	}
	return nil
}

// createJunction makes an empty directory and stamps a mount-point
// reparse buffer onto it.
func (w *Windows) createJunction(ctx context.Context, link pathname.Path, target string, tx *Transaction) error {
	const op = "link"
	if !pathname.Classify(target).Rooted {
		return fserr.Errorf(fserr.InvalidPath, op, string(link), "junction target %q is not absolute", target)
	}
	if err := w.CreateDir(ctx, link, tx); err != nil {
		return err
	}

	h, err := openReparse(link, windows.GENERIC_WRITE, tx)
	if err != nil {
		_ = w.RemoveDir(ctx, link, tx)
		return failure(op, link, err)
	}

	buf := winio.EncodeReparsePoint(&winio.ReparsePoint{
		Target:       string(pathname.Regular(pathname.Path(target))),
		IsMountPoint: true,
	})
	var n uint32
	err = windows.DeviceIoControl(h, fsctlSetReparsePoint, &buf[0], uint32(len(buf)), nil, 0, &n, nil)
	windows.CloseHandle(h)
	if err != nil {
		_ = w.RemoveDir(ctx, link, tx)
		return failure(op, link, err)
	}
	return nil
}

func openReparse(name pathname.Path, access uint32, tx *Transaction) (windows.Handle, error) {
	p, err := windows.UTF16PtrFromString(string(name))
	if err != nil {
		return windows.InvalidHandle, err
	}
	const share = windows.FILE_SHARE_READ | windows.FILE_SHARE_WRITE | windows.FILE_SHARE_DELETE
	const flags = windows.FILE_FLAG_OPEN_REPARSE_POINT | windows.FILE_FLAG_BACKUP_SEMANTICS
	return createFile(p, access, share, windows.OPEN_EXISTING, flags, tx)
}

func createFile(p *uint16, access, share, disposition, flags uint32, tx *Transaction) (windows.Handle, error) {
	if tx == nil {
		return windows.CreateFile(p, access, share, nil, disposition, flags, 0)
	}
	r1, _, e := procCreateFileTransactedW.Call(uintptr(unsafe.Pointer(p)), uintptr(access), uintptr(share),
		0, uintptr(disposition), uintptr(flags), 0, handleOf(tx), 0, 0)
	if windows.Handle(r1) == windows.InvalidHandle {
		return windows.InvalidHandle, e
	}
	return windows.Handle(r1), nil
}

func (w *Windows) ReadLink(_ context.Context, name pathname.Path, tx *Transaction) (string, error) {
	const op = "readlink"
	h, err := openReparse(name, windows.GENERIC_READ, tx)
	if err != nil {
		return "", failure(op, name, err)
	}
	defer windows.CloseHandle(h)

	buf := make([]byte, maxReparseBuffer)
	var n uint32
	if err := windows.DeviceIoControl(h, fsctlGetReparsePoint, nil, 0, &buf[0], uint32(len(buf)), &n, nil); err != nil {
		return "", failure(op, name, err)
	}
	rp, err := winio.DecodeReparsePoint(buf[:n])
	if err != nil {
		return "", fserr.New(fserr.NativeFailure, op, string(name), err)
	}
	return rp.Target, nil
}

// Hash returns the hex BLAKE3 digest of a file.
func (w *Windows) Hash(_ context.Context, name pathname.Path, tx *Transaction) (string, error) {
	const op = "hash"
	p, err := utf16(op, name)
	if err != nil {
		return "", err
	}
	h, err := createFile(p, windows.GENERIC_READ, windows.FILE_SHARE_READ,
		windows.OPEN_EXISTING, windows.FILE_ATTRIBUTE_NORMAL, tx)
	if err != nil {
		return "", failure(op, name, err)
	}
	f := os.NewFile(uintptr(h), string(name))
	defer f.Close()

	d := blake3.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(d, f, buf); err != nil {
		return "", failure(op, name, err)
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}
