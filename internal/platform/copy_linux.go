//go:build linux

package platform

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// copyData tries copy_file_range, then sendfile, then plain reads and
// writes. A mechanism is abandoned only if it failed before moving any data.
func copyData(dst, src *os.File, size int64) (Result, error) {
	res, err := copyFileRange(dst, src, size)
	if err == nil || !isFallbackErr(err) || res.Written > 0 {
		return res, err
	}
	res, err = copySendfile(dst, src, size)
	if err == nil || !isFallbackErr(err) || res.Written > 0 {
		return res, err
	}
	return copyReadWrite(dst, src, size)
}

//nolint:gosec // G115: fd values are small non-negative integers
func copyFileRange(dst, src *os.File, size int64) (Result, error) {
	var roff, woff int64
	res := Result{Method: CopyFileRange}
	for res.Written < size {
		n, err := unix.CopyFileRange(int(src.Fd()), &roff, int(dst.Fd()), &woff, int(size-res.Written), 0)
		if err != nil {
			return res, err
		}
		if n == 0 {
			break
		}
		res.Written += int64(n)
	}
	return res, nil
}

//nolint:gosec // G115: fd values are small non-negative integers
func copySendfile(dst, src *os.File, size int64) (Result, error) {
	if _, err := dst.Seek(0, 0); err != nil {
		return Result{}, err
	}
	var off int64
	res := Result{Method: Sendfile}
	for res.Written < size {
		n, err := unix.Sendfile(int(dst.Fd()), int(src.Fd()), &off, int(size-res.Written))
		if err != nil {
			return res, err
		}
		if n == 0 {
			break
		}
		res.Written += int64(n)
	}
	return res, nil
}

// isFallbackErr reports whether err means the mechanism is unavailable for
// this pair of files.
func isFallbackErr(err error) bool {
	for _, errno := range []error{unix.ENOSYS, unix.EXDEV, unix.EINVAL, unix.ENOTSUP, unix.EOPNOTSUPP} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
