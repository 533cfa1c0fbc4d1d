package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/widepath/internal/engine"
	"github.com/bamsammich/widepath/internal/entry"
	"github.com/bamsammich/widepath/internal/event"
	"github.com/bamsammich/widepath/internal/filter"
	"github.com/bamsammich/widepath/internal/fserr"
	"github.com/bamsammich/widepath/internal/native"
	"github.com/bamsammich/widepath/internal/native/nativetest"
	"github.com/bamsammich/widepath/internal/pathname"
	"github.com/bamsammich/widepath/internal/stats"
)

func TestCopy_Tree(t *testing.T) {
	fs := newTree(t)
	res, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
		Source:      `C:\src`,
		Destination: `C:\dst`,
		Recursive:   true,
	}, fastRetry())
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "sub", `sub\b.txt`, `sub\deep`, `sub\deep\c.txt`}, fs.Tree(`C:\dst`))
	assert.Equal(t, int64(3), res.TotalFiles)
	assert.Equal(t, int64(3), res.TotalFolders)
	assert.Equal(t, int64(12), res.TotalBytes)
	assert.Equal(t, int64(1), res.SkippedMountPoints)
	assert.Zero(t, res.ErrorCode)

	data, err := fs.ReadFile(`C:\dst\sub\b.txt`)
	require.NoError(t, err)
	assert.Equal(t, "bravo!", string(data))

	// The source is untouched.
	assert.Equal(t, srcTree, fs.Tree(`C:\src`))
}

func TestCopy_NeverDescendsMountPoints(t *testing.T) {
	fs := newTree(t)
	_, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
		Source:      `C:\src`,
		Destination: `C:\dst`,
		Recursive:   true,
	}, fastRetry())
	require.NoError(t, err)

	for _, c := range fs.CallsOf(nativetest.OpReadDir) {
		assert.False(t, pathname.Equal(c.Path, `C:\src\mnt`), "mount point was listed")
	}
	assert.False(t, fs.Exists(`C:\dst\mnt`))
}

func TestCopy_RecreatesMountPoints(t *testing.T) {
	fs := newTree(t)
	res, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
		Source:      `C:\src`,
		Destination: `C:\dst`,
		Recursive:   true,
		MountPoints: engine.MountPointRecreate,
	}, fastRetry())
	require.NoError(t, err)

	a, err := fs.Stat(context.Background(), `C:\dst\mnt`, nil)
	require.NoError(t, err)
	assert.True(t, a.Attr.Has(native.AttrReparsePoint))
	assert.Equal(t, native.TagMountPoint, a.Tag)

	target, err := fs.ReadLink(context.Background(), `C:\dst\mnt`, nil)
	require.NoError(t, err)
	assert.Equal(t, `D:\`, target)

	assert.Equal(t, int64(4), res.TotalFiles)
	assert.Zero(t, res.SkippedMountPoints)
}

func TestCopy_SymbolicLinks(t *testing.T) {
	setup := func(t *testing.T) *nativetest.FS {
		fs := newTree(t)
		require.NoError(t, fs.Symlink(`C:\src\link`, `C:\src\sub\deep`, true))
		return fs
	}

	t.Run("copied through", func(t *testing.T) {
		fs := setup(t)
		_, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
			Source:      `C:\src`,
			Destination: `C:\dst`,
			Recursive:   true,
		}, fastRetry())
		require.NoError(t, err)

		a, err := fs.Stat(context.Background(), `C:\dst\link`, nil)
		require.NoError(t, err)
		assert.False(t, a.Attr.Has(native.AttrReparsePoint))
		data, err := fs.ReadFile(`C:\dst\link\c.txt`)
		require.NoError(t, err)
		assert.Equal(t, "c", string(data))
	})

	t.Run("preserved", func(t *testing.T) {
		fs := setup(t)
		res, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
			Source:        `C:\src`,
			Destination:   `C:\dst`,
			Recursive:     true,
			PreserveLinks: true,
		}, fastRetry())
		require.NoError(t, err)

		a, err := fs.Stat(context.Background(), `C:\dst\link`, nil)
		require.NoError(t, err)
		assert.True(t, a.Attr.Has(native.AttrReparsePoint|native.AttrDirectory))
		assert.Equal(t, native.TagSymlink, a.Tag)
		target, err := fs.ReadLink(context.Background(), `C:\dst\link`, nil)
		require.NoError(t, err)
		assert.Equal(t, `C:\src\sub\deep`, target)
		assert.Equal(t, int64(4), res.TotalFiles)
	})
}

func TestCopy_SingleFile(t *testing.T) {
	fs := newTree(t)
	res, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
		Source:      `C:\src\a.txt`,
		Destination: `C:\copy.txt`,
	}, fastRetry())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.TotalFiles)
	assert.Equal(t, int64(5), res.TotalBytes)
	assert.Zero(t, res.TotalFolders)

	data, err := fs.ReadFile(`C:\copy.txt`)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
}

func TestCopy_NonRecursiveCopiesTopLevelFiles(t *testing.T) {
	fs := newTree(t)
	res, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
		Source:      `C:\src`,
		Destination: `C:\dst`,
	}, fastRetry())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, fs.Tree(`C:\dst`))
	assert.Equal(t, int64(1), res.TotalFiles)
	assert.Equal(t, int64(1), res.TotalFolders)
}

func TestCopy_SourceMissing(t *testing.T) {
	fs := newTree(t)
	res, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
		Source:             `C:\nope`,
		Destination:        `C:\dst`,
		ContinueOnNotFound: true,
	}, fastRetry())
	require.Error(t, err)
	assert.True(t, fserr.Is(err, fserr.NotFound))
	assert.Equal(t, fserr.CodeFileNotFound, res.ErrorCode)
	assert.False(t, fs.Exists(`C:\dst`))
}

func TestCopy_DestinationInsideSource(t *testing.T) {
	fs := newTree(t)
	_, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
		Source:      `C:\src`,
		Destination: `C:\SRC\sub\again`,
		Recursive:   true,
	}, fastRetry())
	require.Error(t, err)
	assert.True(t, fserr.Is(err, fserr.InvalidPath))
	assert.Empty(t, fs.CallsOf(nativetest.OpCreateDir, nativetest.OpCopyFile))
}

func TestCopy_ExistingDestinationFile(t *testing.T) {
	t.Run("without overwrite", func(t *testing.T) {
		fs := newTree(t)
		require.NoError(t, fs.WriteFile(`C:\copy.txt`, []byte("old")))
		res, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
			Source:      `C:\src\a.txt`,
			Destination: `C:\copy.txt`,
		}, fastRetry())
		require.Error(t, err)
		assert.True(t, fserr.Is(err, fserr.AlreadyExists))
		assert.Equal(t, fserr.CodeFileExists, res.ErrorCode)
	})

	t.Run("read-only without ignore", func(t *testing.T) {
		fs := newTree(t)
		require.NoError(t, fs.WriteFile(`C:\copy.txt`, []byte("old")))
		require.NoError(t, fs.SetAttr(`C:\copy.txt`, native.AttrReadOnly))
		_, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
			Source:      `C:\src\a.txt`,
			Destination: `C:\copy.txt`,
			Overwrite:   true,
		}, fastRetry())
		require.Error(t, err)
		assert.True(t, fserr.Is(err, fserr.AccessDenied))
		assert.Empty(t, fs.CallsOf(nativetest.OpSetAttributes))
	})

	t.Run("read-only cleared once", func(t *testing.T) {
		fs := newTree(t)
		require.NoError(t, fs.WriteFile(`C:\copy.txt`, []byte("old")))
		require.NoError(t, fs.SetAttr(`C:\copy.txt`, native.AttrReadOnly))
		collector := stats.NewCollector()
		res, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
			Source:         `C:\src\a.txt`,
			Destination:    `C:\copy.txt`,
			Stats:          collector,
			Overwrite:      true,
			IgnoreReadOnly: true,
		}, fastRetry())
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Retries)
		assert.Equal(t, int64(1), collector.Snapshot().AttributesCleared)
		assert.Len(t, fs.CallsOf(nativetest.OpCopyFile), 2)

		data, err := fs.ReadFile(`C:\copy.txt`)
		require.NoError(t, err)
		assert.Equal(t, "alpha", string(data))
	})
}

func TestCopy_IncludeFilterCreatesParents(t *testing.T) {
	fs := newTree(t)
	chain := filter.NewChain()
	require.NoError(t, chain.AddExclude("a.txt"))
	chain.SetSkipHidden(true)

	res, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
		Source:      `C:\src`,
		Destination: `C:\dst`,
		Recursive:   true,
		Filters: engine.Filters{Include: func(i entry.Info) bool {
			return !i.IsDirectory && chain.Entry(i)
		}},
	}, fastRetry())
	require.NoError(t, err)
	assert.Equal(t, []string{"sub", `sub\b.txt`, `sub\deep`, `sub\deep\c.txt`}, fs.Tree(`C:\dst`))
	assert.Equal(t, int64(2), res.TotalFiles)
	assert.Equal(t, int64(3), res.TotalFolders)
}

func TestCopy_ErrorFilter(t *testing.T) {
	t.Run("swallowed", func(t *testing.T) {
		fs := newTree(t)
		fs.Fail(nativetest.OpCopyFile, `C:\src\sub\b.txt`, accessDenied(), -1)
		var seen []pathname.Path
		res, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
			Source:      `C:\src`,
			Destination: `C:\dst`,
			Recursive:   true,
			Filters: engine.Filters{OnError: func(p pathname.Path, err error) bool {
				seen = append(seen, p)
				return fserr.Is(err, fserr.AccessDenied)
			}},
		}, fastRetry())
		require.NoError(t, err)
		assert.Equal(t, []pathname.Path{`C:\src\sub\b.txt`}, seen)
		assert.Equal(t, int64(1), res.Failed)
		assert.Equal(t, int64(2), res.TotalFiles)
		assert.Zero(t, res.ErrorCode)
	})

	t.Run("fatal without filter", func(t *testing.T) {
		fs := newTree(t)
		fs.Fail(nativetest.OpCopyFile, `C:\src\sub\b.txt`, accessDenied(), -1)
		res, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
			Source:      `C:\src`,
			Destination: `C:\dst`,
			Recursive:   true,
		}, fastRetry())
		require.Error(t, err)
		assert.Equal(t, fserr.CodeAccessDenied, res.ErrorCode)
		// Work done before the failure stays in place.
		assert.Equal(t, int64(1), res.TotalFiles)
		assert.True(t, fs.Exists(`C:\dst\a.txt`))
		assert.False(t, fs.Exists(`C:\dst\sub\deep\c.txt`))
	})

	t.Run("filter overrides continue on not found", func(t *testing.T) {
		fs := newTree(t)
		fs.Before(nativetest.OpCopyFile, `C:\src\a.txt`, func(f *nativetest.FS) { f.Delete(`C:\src\a.txt`) })
		_, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
			Source:             `C:\src`,
			Destination:        `C:\dst`,
			Recursive:          true,
			ContinueOnNotFound: true,
			Filters:            engine.Filters{OnError: func(pathname.Path, error) bool { return false }},
		}, fastRetry())
		require.Error(t, err)
		assert.True(t, fserr.Is(err, fserr.NotFound))
	})
}

func TestCopy_ContinueOnNotFound(t *testing.T) {
	fs := newTree(t)
	fs.Before(nativetest.OpCopyFile, `C:\src\a.txt`, func(f *nativetest.FS) { f.Delete(`C:\src\a.txt`) })
	res, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
		Source:             `C:\src`,
		Destination:        `C:\dst`,
		Recursive:          true,
		ContinueOnNotFound: true,
	}, fastRetry())
	require.NoError(t, err)
	assert.Zero(t, res.ErrorCode)
	assert.Equal(t, int64(2), res.TotalFiles)
	assert.Zero(t, res.Failed)
}

func TestCopy_RetriesSharingViolations(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		fs := newTree(t)
		fs.Fail(nativetest.OpCopyFile, `C:\src\a.txt`, sharingViolation(), 2)
		events := make(chan event.Event, 64)
		e := newEngine(fs)
		e.Events = events

		res, err := e.Copy(context.Background(), engine.CopyMoveArguments{
			Source:      `C:\src\a.txt`,
			Destination: `C:\copy.txt`,
		}, fastRetry())
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Retries)

		var attempts []int
		for _, ev := range drain(events) {
			if ev.Type == event.Retrying {
				attempts = append(attempts, ev.Attempt)
			}
		}
		assert.Equal(t, []int{2, 3}, attempts)
	})

	t.Run("exhausted", func(t *testing.T) {
		fs := newTree(t)
		fs.Fail(nativetest.OpCopyFile, `C:\src\a.txt`, sharingViolation(), -1)
		res, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
			Source:      `C:\src\a.txt`,
			Destination: `C:\copy.txt`,
		}, fastRetry())
		require.Error(t, err)
		assert.True(t, fserr.Is(err, fserr.SharingViolation))
		assert.Equal(t, fserr.CodeSharingViolation, res.ErrorCode)
		assert.Len(t, fs.CallsOf(nativetest.OpCopyFile), 3)
	})

	t.Run("not transient", func(t *testing.T) {
		fs := newTree(t)
		fs.Fail(nativetest.OpCopyFile, `C:\src\a.txt`, accessDenied(), 1)
		_, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
			Source:      `C:\src\a.txt`,
			Destination: `C:\copy.txt`,
		}, fastRetry())
		require.Error(t, err)
		assert.Len(t, fs.CallsOf(nativetest.OpCopyFile), 1)
	})
}

func TestCopy_PassesTransactionThrough(t *testing.T) {
	fs := newTree(t)
	tx := &native.Transaction{}
	_, err := newEngine(fs).Copy(context.Background(), engine.CopyMoveArguments{
		Source:      `C:\src`,
		Destination: `C:\dst`,
		Tx:          tx,
		Recursive:   true,
		MountPoints: engine.MountPointRecreate,
		Verify:      true,
	}, fastRetry())
	require.NoError(t, err)

	calls := fs.Calls()
	require.NotEmpty(t, calls)
	for _, c := range calls {
		assert.Same(t, tx, c.Tx, "%s %s", c.Op, c.Path)
	}
}

func TestCopy_Cancelled(t *testing.T) {
	fs := newTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(fs).Copy(ctx, engine.CopyMoveArguments{
		Source:      `C:\src`,
		Destination: `C:\dst`,
		Recursive:   true,
	}, fastRetry())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fs.CallsOf(nativetest.OpCreateDir, nativetest.OpCopyFile))
}

func TestCopy_Events(t *testing.T) {
	fs := newTree(t)
	events := make(chan event.Event, 64)
	e := newEngine(fs)
	e.Events = events

	_, err := e.Copy(context.Background(), engine.CopyMoveArguments{
		Source:      `C:\src`,
		Destination: `C:\dst`,
		Recursive:   true,
	}, fastRetry())
	require.NoError(t, err)

	evs := drain(events)
	require.NotEmpty(t, evs)
	got := types(evs)
	assert.Equal(t, event.OperationStarted, got[0])
	assert.Equal(t, event.OperationComplete, got[len(got)-1])
	assert.Contains(t, got, event.MountPointSkipped)
	assert.Contains(t, got, event.DirCreated)
	assert.Contains(t, got, event.FileCopied)
	for _, ev := range evs {
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestCopy_DropsEventsWhenChannelFull(t *testing.T) {
	fs := newTree(t)
	events := make(chan event.Event, 1)
	e := newEngine(fs)
	e.Events = events

	_, err := e.Copy(context.Background(), engine.CopyMoveArguments{
		Source:      `C:\src`,
		Destination: `C:\dst`,
		Recursive:   true,
	}, fastRetry())
	require.NoError(t, err)
	assert.Len(t, drain(events), 1)
}
