package platform

import (
	"errors"
	"io"
	"os"
	"sync"
)

const bufferSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// copyReadWrite copies with positioned reads and writes through a pooled
// buffer.
func copyReadWrite(dst, src *os.File, size int64) (Result, error) {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp

	res := Result{Method: ReadWrite}
	for res.Written < size {
		chunk := buf[:min(int64(len(buf)), size-res.Written)]
		n, err := src.ReadAt(chunk, res.Written)
		if n > 0 {
			if _, werr := dst.WriteAt(chunk[:n], res.Written); werr != nil {
				return res, werr
			}
			res.Written += int64(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}
