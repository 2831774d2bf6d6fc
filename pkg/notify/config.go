// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"errors"
	"fmt"
	"time"
)

// Config holds event notification configuration.
type Config struct {
	// QueueSize bounds events waiting for delivery (default: 256).
	QueueSize int `mapstructure:"queue_size"`

	// Redis publisher configuration
	Redis RedisSettings `mapstructure:"redis"`

	// Kafka publisher configuration
	Kafka KafkaSettings `mapstructure:"kafka"`
}

// RedisSettings holds Redis publisher settings.
type RedisSettings struct {
	// Enabled activates the Redis publisher.
	Enabled bool `mapstructure:"enabled"`

	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Channel is the channel prefix; events go to "{channel}:{event}".
	Channel string `mapstructure:"channel"`
}

// KafkaSettings holds Kafka publisher settings.
type KafkaSettings struct {
	// Enabled activates the Kafka publisher.
	Enabled bool `mapstructure:"enabled"`

	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	RequiredAcks int      `mapstructure:"required_acks"`
	Compression  string   `mapstructure:"compression"`

	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		QueueSize: DefaultQueueSize,
		Redis: RedisSettings{
			Addr:    "localhost:6379",
			Channel: "courier:events",
		},
		Kafka: KafkaSettings{
			Topic:        "courier-events",
			RequiredAcks: 1,
			Compression:  "snappy",
		},
	}
}

// Validate applies defaults for missing or invalid values.
func (c *Config) Validate() {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "courier:events"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "courier-events"
	}
	if c.Kafka.RequiredAcks < -1 || c.Kafka.RequiredAcks > 1 {
		c.Kafka.RequiredAcks = 1
	}
	if c.Kafka.Compression == "" {
		c.Kafka.Compression = "snappy"
	}
}

// HasExternalPublishers reports whether any publisher besides the hub is enabled.
func (c *Config) HasExternalPublishers() bool {
	return c.Redis.Enabled || c.Kafka.Enabled
}

// NewFromConfig builds an emitter delivering to hub plus every enabled
// external publisher. A nil hub is skipped. On error, external publishers
// created so far are closed; the hub is left to the caller.
func NewFromConfig(cfg Config, hub *Hub) (*Emitter, error) {
	cfg.Validate()

	var pubs []Publisher

	fail := func(err error) (*Emitter, error) {
		errs := []error{err}
		for _, p := range pubs {
			if cerr := p.Close(); cerr != nil {
				errs = append(errs, cerr)
			}
		}
		return nil, errors.Join(errs...)
	}

	if cfg.Redis.Enabled {
		rc := DefaultRedisConfig(cfg.Redis.Addr)
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		rc.Channel = cfg.Redis.Channel
		p, err := NewRedisPublisher(rc)
		if err != nil {
			return fail(fmt.Errorf("redis publisher: %w", err))
		}
		pubs = append(pubs, p)
	}

	if cfg.Kafka.Enabled {
		kc := DefaultKafkaConfig(cfg.Kafka.Brokers)
		kc.Topic = cfg.Kafka.Topic
		kc.RequiredAcks = cfg.Kafka.RequiredAcks
		kc.Compression = cfg.Kafka.Compression
		kc.SASLMechanism = cfg.Kafka.SASLMechanism
		kc.SASLUsername = cfg.Kafka.SASLUsername
		kc.SASLPassword = cfg.Kafka.SASLPassword
		p, err := NewKafkaPublisher(kc)
		if err != nil {
			return fail(fmt.Errorf("kafka publisher: %w", err))
		}
		pubs = append(pubs, p)
	}

	if hub != nil {
		pubs = append([]Publisher{hub}, pubs...)
	}
	return NewEmitter(EmitterConfig{QueueSize: cfg.QueueSize, PublishTimeout: 5 * time.Second}, pubs...), nil
}
