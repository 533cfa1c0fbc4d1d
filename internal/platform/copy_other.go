//go:build !linux

package platform

import "os"

func copyData(dst, src *os.File, size int64) (Result, error) {
	return copyReadWrite(dst, src, size)
}
