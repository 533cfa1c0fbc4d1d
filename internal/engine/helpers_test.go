package engine_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/widepath/internal/engine"
	"github.com/bamsammich/widepath/internal/event"
	"github.com/bamsammich/widepath/internal/fserr"
	"github.com/bamsammich/widepath/internal/native/nativetest"
	"github.com/bamsammich/widepath/internal/pathname"
	"github.com/bamsammich/widepath/internal/retry"
)

// newTree builds:
//
//	C:\src\a.txt           "alpha"
//	C:\src\sub\b.txt       "bravo!"
//	C:\src\sub\deep\c.txt  "c"
//	C:\src\mnt             -> D:\ (mount point)
//	D:\vol\x.txt           "x"
func newTree(t *testing.T) *nativetest.FS {
	t.Helper()
	fs := nativetest.New()
	fs.AddVolume(`D:\`)
	require.NoError(t, fs.WriteFile(`C:\src\a.txt`, []byte("alpha")))
	require.NoError(t, fs.WriteFile(`C:\src\sub\b.txt`, []byte("bravo!")))
	require.NoError(t, fs.WriteFile(`C:\src\sub\deep\c.txt`, []byte("c")))
	require.NoError(t, fs.WriteFile(`D:\vol\x.txt`, []byte("x")))
	require.NoError(t, fs.Junction(`C:\src\mnt`, `D:\`))
	return fs
}

var srcTree = []string{"a.txt", "mnt", "sub", `sub\b.txt`, `sub\deep`, `sub\deep\c.txt`}

func newEngine(fs *nativetest.FS) *engine.Engine {
	e := engine.New(fs, nil)
	e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return e
}

// fastRetry retries like the default policy without sleeping.
func fastRetry() retry.Policy { return retry.Policy{MaxAttempts: 3} }

func accessDenied() error {
	return fserr.FromCode(fserr.CodeAccessDenied, "", "", errors.New("access is denied"))
}

func sharingViolation() error {
	return fserr.FromCode(fserr.CodeSharingViolation, "", "", errors.New("file in use"))
}

func drain(ch chan event.Event) []event.Event {
	var out []event.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func types(evs []event.Event) []event.Type {
	out := make([]event.Type, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

// indexOf returns the position of the first call of op on p.
func indexOf(calls []nativetest.Call, op nativetest.Op, p pathname.Path) int {
	for i, c := range calls {
		if c.Op == op && pathname.Equal(c.Path, p) {
			return i
		}
	}
	return -1
}

func pathsOf(calls []nativetest.Call) []pathname.Path {
	out := make([]pathname.Path, len(calls))
	for i, c := range calls {
		out[i] = c.Path
	}
	return out
}
