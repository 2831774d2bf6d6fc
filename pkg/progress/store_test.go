// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories builds every Store implementation against fresh state.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"leveldb": func(t *testing.T) Store {
			s, err := NewLevelDBStore(filepath.Join(t.TempDir(), "progress.db"), nil)
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return NewRedisStoreWithClient(client, "test:progress")
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range storeFactories() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			defer s.Close()
			fn(t, s)
		})
	}
}

func TestStore_GetUnknownIsEmpty(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Store) {
		r, err := s.Get(context.Background(), "never-started")
		require.NoError(t, err)
		assert.NotNil(t, r.ReceivedChunks)
		assert.Empty(t, r.ReceivedChunks)
		assert.False(t, r.Exists())
	})
}

func TestStore_RecordSubset(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		sess := Session{Identifier: "abc", Filename: "report.pdf", TotalChunks: 5}

		_, err := s.RecordChunk(ctx, sess, 2)
		require.NoError(t, err)
		r, err := s.RecordChunk(ctx, sess, 4)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 4}, r.ReceivedChunks)
		assert.False(t, r.Complete())

		got, err := s.Get(ctx, "abc")
		require.NoError(t, err)
		assert.ElementsMatch(t, []int{2, 4}, got.ReceivedChunks)
		assert.Equal(t, "report.pdf", got.Filename)
		assert.Equal(t, 5, got.TotalChunks)
	})
}

func TestStore_RecordIsIdempotent(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		sess := Session{Identifier: "dup", Filename: "a.bin", TotalChunks: 3}

		for i := 0; i < 3; i++ {
			r, err := s.RecordChunk(ctx, sess, 1)
			require.NoError(t, err)
			assert.Equal(t, []int{1}, r.ReceivedChunks)
		}
	})
}

func TestStore_FirstSessionLatches(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.RecordChunk(ctx, Session{Identifier: "latch", Filename: "first.txt", TotalChunks: 2}, 1)
		require.NoError(t, err)
		r, err := s.RecordChunk(ctx, Session{Identifier: "latch", Filename: "second.txt", TotalChunks: 9}, 2)
		require.NoError(t, err)

		assert.Equal(t, "first.txt", r.Filename)
		assert.Equal(t, 2, r.TotalChunks)
		assert.True(t, r.Complete())
	})
}

func TestStore_RejectsNonPositiveChunk(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.RecordChunk(context.Background(), Session{Identifier: "x", TotalChunks: 1}, 0)
		assert.ErrorIs(t, err, ErrInvalidChunk)
	})
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		sess := Session{Identifier: "gone", Filename: "f", TotalChunks: 1}

		_, err := s.RecordChunk(ctx, sess, 1)
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "gone"))

		r, err := s.Get(ctx, "gone")
		require.NoError(t, err)
		assert.Empty(t, r.ReceivedChunks)
		assert.False(t, r.Exists())

		// Deleting twice is fine.
		assert.NoError(t, s.Delete(ctx, "gone"))
	})
}

func TestStore_ConcurrentRecordsAreNotLost(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const total = 50
		sess := Session{Identifier: "race", Filename: "big.iso", TotalChunks: total}

		var wg sync.WaitGroup
		for n := 1; n <= total; n++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := s.RecordChunk(ctx, sess, n)
				assert.NoError(t, err)
			}(n)
		}
		wg.Wait()

		r, err := s.Get(ctx, "race")
		require.NoError(t, err)
		assert.Len(t, r.ReceivedChunks, total)
		assert.True(t, r.Complete())
	})
}

func TestNew_UnknownKind(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Kind: "etcd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown progress backend")
}

func TestNew_Memory(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Kind: KindMemory})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &MemoryStore{}, s)
}
