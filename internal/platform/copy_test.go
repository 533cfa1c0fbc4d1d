package platform

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openPair writes data to a source file and opens it together with an
// empty destination.
func openPair(t *testing.T, data []byte) (dst, src *os.File) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src"), data, 0o644))

	src, err := os.Open(filepath.Join(dir, "src"))
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	dst, err = os.OpenFile(filepath.Join(dir, "dst"), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { dst.Close() })
	return dst, src
}

func readBack(t *testing.T, f *os.File) []byte {
	t.Helper()
	require.NoError(t, f.Sync())
	got, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	return got
}

func TestCopyDataBasic(t *testing.T) {
	data := []byte("hello, widepath!")
	dst, src := openPair(t, data)

	res, err := CopyData(dst, src, int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), res.Written)
	assert.Equal(t, data, readBack(t, dst))
}

func TestCopyDataLarge(t *testing.T) {
	// Larger than the pooled buffer.
	data := make([]byte, 4*bufferSize+17)
	_, err := rand.Read(data)
	require.NoError(t, err)
	dst, src := openPair(t, data)

	res, err := CopyData(dst, src, int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), res.Written)
	assert.Equal(t, data, readBack(t, dst))
}

func TestCopyDataEmpty(t *testing.T) {
	dst, src := openPair(t, nil)

	res, err := CopyData(dst, src, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Written)
	assert.Equal(t, ReadWrite, res.Method)
	assert.Empty(t, readBack(t, dst))
}

func TestCopyDataShortSource(t *testing.T) {
	data := []byte("short")
	dst, src := openPair(t, data)

	res, err := CopyData(dst, src, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), res.Written)
	assert.Equal(t, data, readBack(t, dst)[:len(data)])
}

func TestCopyReadWrite(t *testing.T) {
	data := []byte("read-write fallback test")
	dst, src := openPair(t, data)

	res, err := copyReadWrite(dst, src, int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, ReadWrite, res.Method)
	assert.Equal(t, int64(len(data)), res.Written)
	assert.Equal(t, data, readBack(t, dst))
}

func TestMethodString(t *testing.T) {
	assert.Equal(t, "read_write", ReadWrite.String())
	assert.Equal(t, "copy_file_range", CopyFileRange.String())
	assert.Equal(t, "sendfile", Sendfile.String())
	assert.Equal(t, "unknown", Method(99).String())
}
