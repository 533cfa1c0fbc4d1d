//go:build !windows

package fserr

import "syscall"

func kindOfErrno(errno syscall.Errno) Kind {
	switch errno {
	case syscall.ENOENT:
		return NotFound
	case syscall.EACCES, syscall.EPERM:
		return AccessDenied
	case syscall.EEXIST:
		return AlreadyExists
	case syscall.ENOTEMPTY:
		return DirectoryNotEmpty
	case syscall.ENOTDIR:
		return DirectoryExpectedButFileFound
	case syscall.EXDEV:
		return NotSameDevice
	case syscall.EROFS:
		return ReadOnly
	case syscall.EBUSY, syscall.ETXTBSY:
		return SharingViolation
	case syscall.EINVAL, syscall.ENAMETOOLONG:
		return InvalidPath
	default:
		return NativeFailure
	}
}
