// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package staging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/qiaobaojoe/house-file-courier/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forEachArea(t *testing.T, fn func(t *testing.T, a Area)) {
	t.Helper()

	t.Run("local", func(t *testing.T) {
		t.Parallel()
		l, err := NewLocal(LocalConfig{Root: t.TempDir()})
		require.NoError(t, err)
		fn(t, l)
	})
	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		fn(t, NewMemory())
	})
}

func readChunk(t *testing.T, a Area, id string, n int) string {
	t.Helper()
	rc, err := a.OpenChunk(context.Background(), id, n)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

// =============================================================================
// Area conformance
// =============================================================================

func TestArea_WriteAndOpen(t *testing.T) {
	t.Parallel()
	forEachArea(t, func(t *testing.T, a Area) {
		ctx := context.Background()

		n, err := a.WriteChunk(ctx, "u1", 1, strings.NewReader("hello"))
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
		assert.Equal(t, "hello", readChunk(t, a, "u1", 1))

		ok, err := a.HasChunk(ctx, "u1", 1)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = a.HasChunk(ctx, "u1", 2)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestArea_StagedChunkInvisibleUntilCommit(t *testing.T) {
	t.Parallel()
	forEachArea(t, func(t *testing.T, a Area) {
		ctx := context.Background()

		_, err := a.WriteChunk(ctx, "u1", 1, strings.NewReader("kept"))
		require.NoError(t, err)

		p, err := a.StageChunk(ctx, "u1", 1, strings.NewReader("next"))
		require.NoError(t, err)
		assert.Equal(t, int64(4), p.Size())
		assert.Equal(t, "kept", readChunk(t, a, "u1", 1))

		p2, err := a.StageChunk(ctx, "u1", 2, strings.NewReader("two"))
		require.NoError(t, err)
		ok, err := a.HasChunk(ctx, "u1", 2)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, p.Commit())
		assert.Equal(t, "next", readChunk(t, a, "u1", 1))

		require.NoError(t, p2.Discard())
		ok, err = a.HasChunk(ctx, "u1", 2)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestArea_CommitAfterRemove(t *testing.T) {
	t.Parallel()
	forEachArea(t, func(t *testing.T, a Area) {
		ctx := context.Background()

		p, err := a.StageChunk(ctx, "u1", 1, strings.NewReader("late"))
		require.NoError(t, err)
		require.NoError(t, a.Remove(ctx, "u1"))

		assert.ErrorIs(t, p.Commit(), ErrChunkNotFound)
		ok, err := a.HasChunk(ctx, "u1", 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestArea_OverwriteLatestWins(t *testing.T) {
	t.Parallel()
	forEachArea(t, func(t *testing.T, a Area) {
		ctx := context.Background()

		_, err := a.WriteChunk(ctx, "u1", 2, strings.NewReader("old"))
		require.NoError(t, err)
		_, err = a.WriteChunk(ctx, "u1", 2, strings.NewReader("new"))
		require.NoError(t, err)

		assert.Equal(t, "new", readChunk(t, a, "u1", 2))
	})
}

func TestArea_OpenMissing(t *testing.T) {
	t.Parallel()
	forEachArea(t, func(t *testing.T, a Area) {
		_, err := a.OpenChunk(context.Background(), "nobody", 1)
		assert.ErrorIs(t, err, ErrChunkNotFound)
	})
}

func TestArea_Remove(t *testing.T) {
	t.Parallel()
	forEachArea(t, func(t *testing.T, a Area) {
		ctx := context.Background()

		for i := 1; i <= 3; i++ {
			_, err := a.WriteChunk(ctx, "u1", i, strings.NewReader("x"))
			require.NoError(t, err)
		}
		_, err := a.WriteChunk(ctx, "u2", 1, strings.NewReader("y"))
		require.NoError(t, err)

		require.NoError(t, a.Remove(ctx, "u1"))
		require.NoError(t, a.Remove(ctx, "never-existed"))

		for i := 1; i <= 3; i++ {
			ok, err := a.HasChunk(ctx, "u1", i)
			require.NoError(t, err)
			assert.False(t, ok)
		}
		assert.Equal(t, "y", readChunk(t, a, "u2", 1))
	})
}

func TestArea_ConcurrentDistinctChunks(t *testing.T) {
	t.Parallel()
	forEachArea(t, func(t *testing.T, a Area) {
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 1; i <= 20; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := a.WriteChunk(ctx, "u1", n, strings.NewReader(strings.Repeat("z", n)))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		for i := 1; i <= 20; i++ {
			assert.Len(t, readChunk(t, a, "u1", i), i)
		}
	})
}

// =============================================================================
// Local specifics
// =============================================================================

func TestLocal_Layout(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	l, err := NewLocal(LocalConfig{Root: root})
	require.NoError(t, err)

	_, err = l.WriteChunk(context.Background(), "session-7", 3, strings.NewReader("abc"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "session-7", "3"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "session-7"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	p, err := l.StageChunk(context.Background(), "session-7", 4, strings.NewReader("d"))
	require.NoError(t, err)
	require.NoError(t, p.Discard())
	entries, err = os.ReadDir(filepath.Join(root, "session-7"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "discard removes the temp file")
}

func TestLocal_RejectsUnsafeIdentifier(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	l, err := NewLocal(LocalConfig{Root: root})
	require.NoError(t, err)

	for _, id := range []string{"", "..", "a/b", `a\b`, ".progress"} {
		_, err := l.WriteChunk(context.Background(), id, 1, strings.NewReader("x"))
		assert.ErrorIs(t, err, utils.ErrUnsafeName, "identifier %q", id)
	}
	assert.ErrorIs(t, l.Remove(context.Background(), ".."), utils.ErrUnsafeName)
}

func TestLocal_RequiresRoot(t *testing.T) {
	t.Parallel()

	_, err := NewLocal(LocalConfig{})
	assert.Error(t, err)
}

func TestLocal_LowDiskSpace(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	// No real filesystem has 100% free.
	minFree, err := utils.ParseMinFreeSpace("100")
	require.NoError(t, err)

	l, err := NewLocal(LocalConfig{Root: root, MinFree: minFree})
	require.NoError(t, err)

	_, err = l.WriteChunk(context.Background(), "u1", 1, strings.NewReader("x"))
	assert.ErrorIs(t, err, utils.ErrLowDiskSpace)

	_, statErr := os.Stat(filepath.Join(root, "u1"))
	assert.True(t, os.IsNotExist(statErr), "no staging dir created on refusal")
}

func TestLocal_CanceledContext(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	l, err := NewLocal(LocalConfig{Root: root})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.WriteChunk(ctx, "u1", 1, strings.NewReader("payload"))
	assert.ErrorIs(t, err, context.Canceled)

	ok, err := l.HasChunk(context.Background(), "u1", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
