package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/widepath/internal/engine"
	"github.com/bamsammich/widepath/internal/entry"
	"github.com/bamsammich/widepath/internal/filter"
	"github.com/bamsammich/widepath/internal/fserr"
	"github.com/bamsammich/widepath/internal/native"
	"github.com/bamsammich/widepath/internal/native/nativetest"
	"github.com/bamsammich/widepath/internal/pathname"
	"github.com/bamsammich/widepath/internal/stats"
)

func TestDelete_PostOrder(t *testing.T) {
	fs := nativetest.New()
	require.NoError(t, fs.WriteFile(`C:\A\B\C.txt`, []byte("c")))

	res, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
		Path:      `C:\A`,
		Recursive: true,
	}, fastRetry())
	require.NoError(t, err)
	assert.False(t, fs.Exists(`C:\A`))
	assert.Equal(t, int64(1), res.TotalFiles)
	assert.Equal(t, int64(2), res.TotalFolders)

	calls := fs.CallsOf(nativetest.OpRemoveFile, nativetest.OpRemoveDir)
	file := indexOf(calls, nativetest.OpRemoveFile, `C:\A\B\C.txt`)
	b := indexOf(calls, nativetest.OpRemoveDir, `C:\A\B`)
	a := indexOf(calls, nativetest.OpRemoveDir, `C:\A`)
	require.NotEqual(t, -1, file)
	assert.Less(t, file, b)
	assert.Less(t, b, a)
}

func TestDelete_UnlinksMountPoints(t *testing.T) {
	fs := newTree(t)
	res, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
		Path:      `C:\src`,
		Recursive: true,
	}, fastRetry())
	require.NoError(t, err)

	assert.False(t, fs.Exists(`C:\src`))
	assert.True(t, fs.Exists(`D:\vol\x.txt`), "mount point target was traversed")
	for _, c := range fs.CallsOf(nativetest.OpReadDir) {
		assert.False(t, pathname.Equal(c.Path, `C:\src\mnt`))
	}
	assert.Equal(t, int64(4), res.TotalFiles)
	assert.Equal(t, int64(3), res.TotalFolders)
	assert.Equal(t, int64(12), res.TotalBytes)
}

func TestDelete_RootReparsePoint(t *testing.T) {
	fs := newTree(t)
	_, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
		Path:      `C:\src\mnt`,
		Recursive: true,
	}, fastRetry())
	require.NoError(t, err)

	assert.False(t, fs.Exists(`C:\src\mnt`))
	assert.True(t, fs.Exists(`D:\vol\x.txt`))
	assert.Empty(t, fs.CallsOf(nativetest.OpReadDir))
	assert.Equal(t, []pathname.Path{`C:\src\mnt`}, pathsOf(fs.CallsOf(nativetest.OpRemoveDir)))
}

func TestDelete_SymlinkNotFollowed(t *testing.T) {
	fs := newTree(t)
	require.NoError(t, fs.WriteFile(`C:\keep\k.txt`, []byte("k")))
	require.NoError(t, fs.Symlink(`C:\src\link`, `C:\keep`, true))

	_, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
		Path:      `C:\src`,
		Recursive: true,
	}, fastRetry())
	require.NoError(t, err)
	assert.True(t, fs.Exists(`C:\keep\k.txt`))
}

func TestDelete_NonRecursive(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		fs := newTree(t)
		res, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
			Path: `C:\src\a.txt`,
		}, fastRetry())
		require.NoError(t, err)
		assert.False(t, fs.Exists(`C:\src\a.txt`))
		assert.Equal(t, int64(1), res.TotalFiles)
		assert.Equal(t, int64(5), res.TotalBytes)
	})

	t.Run("non-empty directory", func(t *testing.T) {
		fs := newTree(t)
		res, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
			Path: `C:\src\sub`,
		}, fastRetry())
		require.Error(t, err)
		assert.True(t, fserr.Is(err, fserr.DirectoryNotEmpty))
		assert.Equal(t, fserr.CodeDirNotEmpty, res.ErrorCode)
		assert.True(t, fs.Exists(`C:\src\sub\b.txt`))
	})
}

func TestDelete_ContinueOnNotFound(t *testing.T) {
	vanish := func(fs *nativetest.FS) {
		fs.Before(nativetest.OpRemoveFile, `C:\src\sub\b.txt`, func(f *nativetest.FS) {
			f.Delete(`C:\src\sub\b.txt`)
		})
	}

	t.Run("entry vanished", func(t *testing.T) {
		fs := newTree(t)
		vanish(fs)
		res, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
			Path:               `C:\src`,
			Recursive:          true,
			ContinueOnNotFound: true,
		}, fastRetry())
		require.NoError(t, err)
		assert.Zero(t, res.ErrorCode)
		assert.False(t, fs.Exists(`C:\src`))
	})

	t.Run("entry vanished without flag", func(t *testing.T) {
		fs := newTree(t)
		vanish(fs)
		res, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
			Path:      `C:\src`,
			Recursive: true,
		}, fastRetry())
		require.Error(t, err)
		assert.True(t, fserr.Is(err, fserr.NotFound))
		assert.Equal(t, fserr.CodeFileNotFound, res.ErrorCode)
	})

	t.Run("target missing", func(t *testing.T) {
		fs := newTree(t)
		res, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
			Path:               `C:\gone`,
			Recursive:          true,
			ContinueOnNotFound: true,
		}, fastRetry())
		require.NoError(t, err)
		assert.Equal(t, engine.Result{Elapsed: res.Elapsed}, res)
	})

	t.Run("target missing without flag", func(t *testing.T) {
		fs := newTree(t)
		_, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
			Path: `C:\gone`,
		}, fastRetry())
		require.Error(t, err)
		assert.True(t, fserr.Is(err, fserr.NotFound))
	})
}

func TestDelete_ReadOnly(t *testing.T) {
	t.Run("refused without ignore", func(t *testing.T) {
		fs := newTree(t)
		require.NoError(t, fs.SetAttr(`C:\src\a.txt`, native.AttrReadOnly))
		res, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
			Path: `C:\src\a.txt`,
		}, fastRetry())
		require.Error(t, err)
		assert.True(t, fserr.Is(err, fserr.AccessDenied))
		assert.Equal(t, fserr.CodeAccessDenied, res.ErrorCode)
		assert.Empty(t, fs.CallsOf(nativetest.OpSetAttributes))
	})

	t.Run("cleared and retried", func(t *testing.T) {
		fs := newTree(t)
		require.NoError(t, fs.SetAttr(`C:\src\a.txt`, native.AttrReadOnly|native.AttrHidden))
		require.NoError(t, fs.SetAttr(`C:\src\sub`, native.AttrReadOnly))
		collector := stats.NewCollector()

		res, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
			Path:           `C:\src`,
			Stats:          collector,
			Recursive:      true,
			IgnoreReadOnly: true,
		}, fastRetry())
		require.NoError(t, err)
		assert.False(t, fs.Exists(`C:\src`))
		assert.Equal(t, int64(2), collector.Snapshot().AttributesCleared)
		assert.Equal(t, int64(2), res.Retries)

		var ops []nativetest.Op
		for _, c := range fs.CallsOf(nativetest.OpRemoveFile, nativetest.OpSetAttributes) {
			if pathname.Equal(c.Path, `C:\src\a.txt`) {
				ops = append(ops, c.Op)
			}
		}
		assert.Equal(t, []nativetest.Op{nativetest.OpRemoveFile, nativetest.OpSetAttributes, nativetest.OpRemoveFile}, ops)
	})

	t.Run("retried exactly once", func(t *testing.T) {
		fs := newTree(t)
		require.NoError(t, fs.SetAttr(`C:\src\a.txt`, native.AttrReadOnly))
		fs.Fail(nativetest.OpRemoveFile, `C:\src\a.txt`, accessDenied(), -1)

		_, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
			Path:           `C:\src\a.txt`,
			IgnoreReadOnly: true,
		}, fastRetry())
		require.Error(t, err)
		assert.True(t, fserr.Is(err, fserr.AccessDenied))
		assert.Len(t, fs.CallsOf(nativetest.OpRemoveFile), 2)
		assert.Len(t, fs.CallsOf(nativetest.OpSetAttributes), 1)
	})

	t.Run("nothing to clear", func(t *testing.T) {
		fs := newTree(t)
		fs.Fail(nativetest.OpRemoveFile, `C:\src\a.txt`, accessDenied(), -1)

		_, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
			Path:           `C:\src\a.txt`,
			IgnoreReadOnly: true,
		}, fastRetry())
		require.Error(t, err)
		assert.Len(t, fs.CallsOf(nativetest.OpRemoveFile), 1)
		assert.Empty(t, fs.CallsOf(nativetest.OpSetAttributes))
	})
}

func TestDelete_FiltersKeepExcludedEntries(t *testing.T) {
	fs := newTree(t)
	chain := filter.NewChain()
	require.NoError(t, chain.AddExclude("b.txt"))

	_, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
		Path:      `C:\src`,
		Recursive: true,
		Filters:   engine.Filters{Include: chain.Entry},
	}, fastRetry())
	require.NoError(t, err)

	assert.Equal(t, []string{`sub`, `sub\b.txt`}, fs.Tree(`C:\src`))
	assert.True(t, fs.Exists(`D:\vol\x.txt`))
}

func TestDelete_RecurseFilter(t *testing.T) {
	fs := newTree(t)
	res, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
		Path:      `C:\src`,
		Recursive: true,
		Filters: engine.Filters{
			Include: func(i entry.Info) bool { return !i.IsDirectory },
			Recurse: func(i entry.Info) bool { return i.RelPath != `sub` },
		},
	}, fastRetry())
	require.NoError(t, err)
	// Directories are never yielded, so only a.txt goes and the rest stays.
	assert.Equal(t, []string{"mnt", "sub", `sub\b.txt`, `sub\deep`, `sub\deep\c.txt`}, fs.Tree(`C:\src`))
	assert.Equal(t, int64(1), res.TotalFiles)
}

func TestDelete_ErrorFilterSwallows(t *testing.T) {
	fs := newTree(t)
	fs.Fail(nativetest.OpRemoveFile, `C:\src\sub\b.txt`, accessDenied(), -1)

	res, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
		Path:      `C:\src`,
		Recursive: true,
		Filters:   engine.Filters{OnError: func(pathname.Path, error) bool { return true }},
	}, fastRetry())
	require.NoError(t, err)
	// b.txt and the two directories above it could not be removed.
	assert.Equal(t, int64(3), res.Failed)
	assert.Equal(t, []string{`sub`, `sub\b.txt`}, fs.Tree(`C:\src`))
}

func TestDelete_RetriesSharingViolations(t *testing.T) {
	fs := newTree(t)
	fs.Fail(nativetest.OpRemoveDir, `C:\src\sub\deep`, sharingViolation(), 1)

	res, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
		Path:      `C:\src`,
		Recursive: true,
	}, fastRetry())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Retries)
	assert.False(t, fs.Exists(`C:\src`))
}

func TestDelete_PassesTransactionThrough(t *testing.T) {
	fs := newTree(t)
	require.NoError(t, fs.SetAttr(`C:\src\a.txt`, native.AttrReadOnly))
	tx := &native.Transaction{}

	_, err := newEngine(fs).Delete(context.Background(), engine.DeleteArguments{
		Path:           `C:\src`,
		Tx:             tx,
		Recursive:      true,
		IgnoreReadOnly: true,
	}, fastRetry())
	require.NoError(t, err)
	for _, c := range fs.Calls() {
		assert.Same(t, tx, c.Tx, "%s %s", c.Op, c.Path)
	}
}

func TestDelete_Cancelled(t *testing.T) {
	fs := newTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(fs).Delete(ctx, engine.DeleteArguments{
		Path:      `C:\src`,
		Recursive: true,
	}, fastRetry())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fs.CallsOf(nativetest.OpRemoveFile, nativetest.OpRemoveDir))
	assert.True(t, fs.Exists(`C:\src\a.txt`))
}
