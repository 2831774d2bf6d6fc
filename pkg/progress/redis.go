// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/qiaobaojoe/house-file-courier/pkg/logger"

	"github.com/redis/go-redis/v9"
)

func init() {
	Register(KindRedis, func(cfg Config) (Store, error) {
		return NewRedisStore(cfg.Redis)
	})
}

// RedisConfig configures the Redis progress store.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379").
	Addr string

	// Password is the Redis password (optional).
	Password string

	// DB is the Redis database number (default 0).
	DB int

	// KeyPrefix namespaces every key (default "courier:progress").
	KeyPrefix string

	// DialTimeout is the connection timeout (default 5s).
	DialTimeout time.Duration
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig(addr string) RedisConfig {
	return RedisConfig{
		Addr:        addr,
		KeyPrefix:   "courier:progress",
		DialTimeout: 5 * time.Second,
	}
}

// recordScript performs the set-union atomically on the server: the set
// deduplicates, the list keeps insertion order, the hash latches metadata.
var recordScript = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 1 then
  redis.call('RPUSH', KEYS[2], ARGV[1])
end
if ARGV[2] ~= '' then
  redis.call('HSETNX', KEYS[3], 'filename', ARGV[2])
end
if tonumber(ARGV[3]) > 0 then
  redis.call('HSETNX', KEYS[3], 'totalChunks', ARGV[3])
end
return redis.call('LRANGE', KEYS[2], 0, -1)
`)

// RedisStore keeps progress in Redis so that several server processes can
// share a staging volume. Redis persistence settings decide durability.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("redis progress store connected")

	return NewRedisStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "courier:progress"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// keys share a hash tag so the script stays on one cluster slot.
func (s *RedisStore) keys(identifier string) (set, list, meta string) {
	base := fmt.Sprintf("%s:{%s}", s.prefix, identifier)
	return base + ":set", base + ":order", base + ":meta"
}

func (s *RedisStore) Get(ctx context.Context, identifier string) (*Record, error) {
	_, list, meta := s.keys(identifier)

	pipe := s.client.Pipeline()
	chunksCmd := pipe.LRange(ctx, list, 0, -1)
	metaCmd := pipe.HMGet(ctx, meta, "filename", "totalChunks")
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get progress: %w", err)
	}

	r := emptyRecord(identifier)
	chunks, err := parseChunks(chunksCmd.Val())
	if err != nil {
		return nil, err
	}
	r.ReceivedChunks = chunks
	applyMeta(r, metaCmd.Val())
	return r, nil
}

func (s *RedisStore) RecordChunk(ctx context.Context, sess Session, chunkNumber int) (*Record, error) {
	if err := validateChunk(chunkNumber); err != nil {
		return nil, err
	}
	set, list, meta := s.keys(sess.Identifier)

	raw, err := recordScript.Run(ctx, s.client,
		[]string{set, list, meta},
		chunkNumber, sess.Filename, sess.TotalChunks,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("redis record chunk: %w", err)
	}

	metaVals, err := s.client.HMGet(ctx, meta, "filename", "totalChunks").Result()
	if err != nil {
		return nil, fmt.Errorf("redis read session: %w", err)
	}

	r := emptyRecord(sess.Identifier)
	if r.ReceivedChunks, err = parseChunks(raw); err != nil {
		return nil, err
	}
	applyMeta(r, metaVals)
	return r, nil
}

func (s *RedisStore) Delete(ctx context.Context, identifier string) error {
	set, list, meta := s.keys(identifier)
	if err := s.client.Del(ctx, set, list, meta).Err(); err != nil {
		return fmt.Errorf("redis delete progress: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func parseChunks(raw []string) ([]int, error) {
	chunks := make([]int, 0, len(raw))
	for _, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("corrupt chunk entry %q: %w", v, err)
		}
		chunks = append(chunks, n)
	}
	return chunks, nil
}

func applyMeta(r *Record, vals []any) {
	if len(vals) != 2 {
		return
	}
	if name, ok := vals[0].(string); ok {
		r.Filename = name
	}
	if total, ok := vals[1].(string); ok {
		r.TotalChunks, _ = strconv.Atoi(total)
	}
}
