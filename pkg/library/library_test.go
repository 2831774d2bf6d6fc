// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package library

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/qiaobaojoe/house-file-courier/pkg/notify"
	"github.com/qiaobaojoe/house-file-courier/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const abcSHA256 = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) Notify(_ context.Context, ev notify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []notify.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]notify.Event(nil), l.events...)
}

func newLibrary(t *testing.T) (*Library, *eventLog) {
	t.Helper()
	events := &eventLog{}
	l, err := New(Config{Dir: t.TempDir(), Sink: events})
	require.NoError(t, err)
	return l, events
}

// =============================================================================
// Save / List
// =============================================================================

func TestLibrary_SaveAndList(t *testing.T) {
	t.Parallel()

	l, events := newLibrary(t)
	ctx := context.Background()

	sf, err := l.Save(ctx, "b.txt", strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "b.txt", sf.Name)
	assert.Equal(t, int64(3), sf.Size)
	assert.Equal(t, abcSHA256, sf.SHA256)
	assert.False(t, sf.CreateTime.IsZero())

	_, err = l.Save(ctx, "a.txt", strings.NewReader("hello"))
	require.NoError(t, err)

	files, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.txt", files[0].Name)
	assert.Equal(t, int64(5), files[0].Size)
	assert.Equal(t, "b.txt", files[1].Name)

	got := events.all()
	require.Len(t, got, 2)
	assert.Equal(t, notify.EventFileUploaded, got[0].Type)
	assert.Equal(t, "b.txt", got[0].Data.Name)
	assert.Equal(t, int64(3), got[0].Data.Size)
	assert.Equal(t, abcSHA256, got[0].Data.SHA256)
	require.NotNil(t, got[0].Data.CreateTime)
}

func TestLibrary_SaveReplacesExisting(t *testing.T) {
	t.Parallel()

	l, _ := newLibrary(t)
	ctx := context.Background()

	_, err := l.Save(ctx, "f.txt", strings.NewReader("first version"))
	require.NoError(t, err)
	_, err = l.Save(ctx, "f.txt", strings.NewReader("v2"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(l.Dir(), "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestLibrary_NormalizesNames(t *testing.T) {
	t.Parallel()

	l, events := newLibrary(t)
	ctx := context.Background()

	sf, err := l.Save(ctx, "cafe\u0301.txt", strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9.txt", sf.Name)
	assert.Equal(t, "caf\u00e9.txt", events.all()[0].Data.Name)

	_, err = l.Save(ctx, "caf\u00e9.txt", strings.NewReader("abcd"))
	require.NoError(t, err)

	files, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1, "both spellings name the same file")
	assert.Equal(t, int64(4), files[0].Size)

	got, err := l.Stat(ctx, "cafe\u0301.txt")
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9.txt", got.Name)

	f, opened, err := l.Open(ctx, "cafe\u0301.txt")
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "caf\u00e9.txt", opened.Name)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))
}

func TestLibrary_ListSkipsDirsAndPartials(t *testing.T) {
	t.Parallel()

	l, _ := newLibrary(t)
	require.NoError(t, os.Mkdir(filepath.Join(l.Dir(), "subdir"), 0755))

	w, err := l.Create(context.Background(), "pending.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("half"))
	require.NoError(t, err)
	defer w.Abort()

	files, err := l.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLibrary_RejectsUnsafeNames(t *testing.T) {
	t.Parallel()

	l, events := newLibrary(t)
	for _, name := range []string{"", ".", "..", "../escape", "a/b", ".partial-notes.txt"} {
		_, err := l.Save(context.Background(), name, strings.NewReader("x"))
		assert.ErrorIs(t, err, utils.ErrUnsafeName, "name %q", name)
	}
	assert.Empty(t, events.all())
}

func TestLibrary_LowDiskSpace(t *testing.T) {
	t.Parallel()

	minFree, err := utils.ParseMinFreeSpace("100")
	require.NoError(t, err)
	l, err := New(Config{Dir: t.TempDir(), MinFree: minFree})
	require.NoError(t, err)

	_, err = l.Save(context.Background(), "x.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, utils.ErrLowDiskSpace)
}

// =============================================================================
// Writer
// =============================================================================

func TestWriter_AbortLeavesNothing(t *testing.T) {
	t.Parallel()

	l, _ := newLibrary(t)
	w, err := l.Create(context.Background(), "gone.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())
	require.NoError(t, w.Abort())

	entries, err := os.ReadDir(l.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriter_NotVisibleUntilCommit(t *testing.T) {
	t.Parallel()

	l, events := newLibrary(t)
	ctx := context.Background()

	w, err := l.Create(ctx, "report.pdf")
	require.NoError(t, err)
	for _, part := range []string{"A", "B", "C"} {
		_, err := w.Write([]byte(part))
		require.NoError(t, err)
	}

	_, err = l.Stat(ctx, "report.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	sf, err := w.Commit()
	require.NoError(t, err)
	assert.Equal(t, int64(3), sf.Size)
	assert.NoError(t, w.Abort(), "abort after commit is a no-op")

	got, err := l.Stat(ctx, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Size)

	// Commit alone does not announce.
	assert.Empty(t, events.all())

	_, err = w.Write([]byte("more"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

// =============================================================================
// Open / Delete
// =============================================================================

func TestLibrary_Open(t *testing.T) {
	t.Parallel()

	l, _ := newLibrary(t)
	ctx := context.Background()

	_, err := l.Save(ctx, "doc.txt", strings.NewReader("contents"))
	require.NoError(t, err)

	f, sf, err := l.Open(ctx, "doc.txt")
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(8), sf.Size)

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "contents", string(data))

	_, _, err = l.Open(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLibrary_Delete(t *testing.T) {
	t.Parallel()

	l, events := newLibrary(t)
	ctx := context.Background()

	_, err := l.Save(ctx, "old.txt", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, l.Delete(ctx, "old.txt"))
	assert.ErrorIs(t, l.Delete(ctx, "old.txt"), ErrNotFound)

	_, err = os.Stat(filepath.Join(l.Dir(), "old.txt"))
	assert.True(t, os.IsNotExist(err))

	got := events.all()
	require.Len(t, got, 2)
	assert.Equal(t, notify.EventFileDeleted, got[1].Type)
	assert.Equal(t, "old.txt", got[1].Data.Name)
}

func TestLibrary_DeleteDirectoryIsNotFound(t *testing.T) {
	t.Parallel()

	l, _ := newLibrary(t)
	require.NoError(t, os.Mkdir(filepath.Join(l.Dir(), "d"), 0755))
	assert.ErrorIs(t, l.Delete(context.Background(), "d"), ErrNotFound)
}

func TestNew_RequiresDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.Error(t, err)
}
