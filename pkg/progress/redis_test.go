// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := DefaultRedisConfig("localhost:6379")
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, "courier:progress", cfg.KeyPrefix)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
}

func TestNewRedisStore_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewRedisStore(RedisConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis address is required")
}

func TestNewRedisStore_Connects(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	s, err := NewRedisStore(DefaultRedisConfig(mr.Addr()))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.RecordChunk(context.Background(), Session{Identifier: "id", Filename: "f", TotalChunks: 2}, 1)
	require.NoError(t, err)
	assert.True(t, mr.Exists("courier:progress:{id}:set"))
	assert.True(t, mr.Exists("courier:progress:{id}:order"))
}

func TestRedisStore_KeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, "")
	defer s.Close()

	ctx := context.Background()
	sess := Session{Identifier: "ord", Filename: "x", TotalChunks: 4}
	for _, n := range []int{3, 1, 3, 4, 2} {
		_, err := s.RecordChunk(ctx, sess, n)
		require.NoError(t, err)
	}

	r, err := s.Get(ctx, "ord")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 4, 2}, r.ReceivedChunks)
	assert.True(t, r.Complete())
}

func TestRedisStore_CorruptEntry(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, "p")
	defer s.Close()

	_, err := mr.Push("p:{bad}:order", "not-a-number")
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "bad")
	assert.Error(t, err)
}
