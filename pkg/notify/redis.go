// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/qiaobaojoe/house-file-courier/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes events to Redis Pub/Sub.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string // Channel prefix (e.g., "courier:events")
}

// RedisConfig configures the Redis publisher.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379").
	Addr string

	// Password is the Redis password (optional).
	Password string

	// DB is the Redis database number (default 0).
	DB int

	// Channel is the Pub/Sub channel prefix (default "courier:events").
	// Events are published to "{channel}:{event}".
	Channel string

	// DialTimeout is the connection timeout (default 5s).
	DialTimeout time.Duration

	// ReadTimeout is the read timeout (default 3s).
	ReadTimeout time.Duration

	// WriteTimeout is the write timeout (default 3s).
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig(addr string) RedisConfig {
	return RedisConfig{
		Addr:         addr,
		Channel:      "courier:events",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Str("channel", channelOrDefault(cfg.Channel)).
		Msg("redis event publisher connected")

	return NewRedisPublisherWithClient(client, cfg.Channel), nil
}

// NewRedisPublisherWithClient wraps an existing client. The publisher owns
// the client and closes it on Close.
func NewRedisPublisherWithClient(client redis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channelOrDefault(channel)}
}

func channelOrDefault(channel string) string {
	if channel == "" {
		return "courier:events"
	}
	return channel
}

// Name returns the publisher identifier.
func (p *RedisPublisher) Name() string {
	return "redis"
}

// Channel returns the channel an event of the given type is published on.
func (p *RedisPublisher) Channel(t EventType) string {
	return fmt.Sprintf("%s:%s", p.channel, t)
}

// Publish sends an event to "{prefix}:{event}".
func (p *RedisPublisher) Publish(ctx context.Context, ev Event, data []byte) error {
	channel := p.Channel(ev.Type)

	result := p.client.Publish(ctx, channel, data)
	if err := result.Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}

	logger.Debug().
		Str("channel", channel).
		Int64("subscribers", result.Val()).
		Msg("published event to redis")

	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
