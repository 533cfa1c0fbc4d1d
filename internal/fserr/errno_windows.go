package fserr

import "syscall"

func kindOfErrno(errno syscall.Errno) Kind {
	return KindForCode(uint32(errno))
}
