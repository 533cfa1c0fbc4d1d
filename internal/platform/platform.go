// Package platform copies file contents between open host files using the
// cheapest mechanism the kernel offers.
package platform

import "os"

// Method identifies which mechanism moved the data.
type Method int

const (
	ReadWrite     Method = iota
	CopyFileRange        // Linux copy_file_range(2)
	Sendfile             // Linux sendfile(2)
)

func (m Method) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case CopyFileRange:
		return "copy_file_range"
	case Sendfile:
		return "sendfile"
	default:
		return "unknown"
	}
}

// Result reports the outcome of CopyData.
type Result struct {
	Written int64
	Method  Method
}

// CopyData copies the first size bytes of src into dst, both addressed
// from offset zero. dst must be open for writing and is not truncated.
func CopyData(dst, src *os.File, size int64) (Result, error) {
	if size <= 0 {
		return Result{Method: ReadWrite}, nil
	}
	preallocate(dst, size)
	return copyData(dst, src, size)
}
