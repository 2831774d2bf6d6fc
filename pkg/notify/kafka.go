// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/qiaobaojoe/house-file-courier/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"
)

// KafkaPublisher publishes events to Kafka using sarama.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// Topic is the Kafka topic for events (default: "courier-events").
	Topic string

	// RequiredAcks: 0=none, 1=leader, -1=all (default: 1).
	RequiredAcks int

	// Compression: "none", "gzip", "snappy", "lz4", "zstd" (default: "snappy").
	Compression string

	// WriteTimeout is the timeout for write operations (default: 10s).
	WriteTimeout time.Duration

	TLS           bool
	TLSSkipVerify bool

	// SASLMechanism is PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512. Empty disables SASL.
	SASLMechanism string
	SASLUsername  string
	SASLPassword  string
}

// DefaultKafkaConfig returns a KafkaConfig with sensible defaults.
func DefaultKafkaConfig(brokers []string) KafkaConfig {
	return KafkaConfig{
		Brokers:      brokers,
		Topic:        "courier-events",
		RequiredAcks: 1,
		Compression:  "snappy",
		WriteTimeout: 10 * time.Second,
	}
}

// saramaConfig translates cfg into a sync producer configuration.
func saramaConfig(cfg KafkaConfig) *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	switch cfg.RequiredAcks {
	case 0:
		config.Producer.RequiredAcks = sarama.NoResponse
	case -1:
		config.Producer.RequiredAcks = sarama.WaitForAll
	default:
		config.Producer.RequiredAcks = sarama.WaitForLocal
	}

	switch cfg.Compression {
	case "gzip":
		config.Producer.Compression = sarama.CompressionGZIP
	case "lz4":
		config.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		config.Producer.Compression = sarama.CompressionZSTD
	case "none", "":
		config.Producer.Compression = sarama.CompressionNone
	default:
		config.Producer.Compression = sarama.CompressionSnappy
	}

	if cfg.WriteTimeout > 0 {
		config.Producer.Timeout = cfg.WriteTimeout
		config.Net.WriteTimeout = cfg.WriteTimeout
		config.Net.ReadTimeout = cfg.WriteTimeout
	}

	if cfg.TLS {
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		}
	}

	if cfg.SASLMechanism != "" {
		config.Net.SASL.Enable = true
		config.Net.SASL.User = cfg.SASLUsername
		config.Net.SASL.Password = cfg.SASLPassword

		switch cfg.SASLMechanism {
		case "SCRAM-SHA-256":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{mechanism: scram.SHA256}
			}
		case "SCRAM-SHA-512":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{mechanism: scram.SHA512}
			}
		default:
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	// Same file name, same partition.
	config.Producer.Partitioner = sarama.NewHashPartitioner
	return config
}

// NewKafkaPublisher creates a new Kafka publisher using sarama.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("kafka producer creation failed: %w", err)
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", topicOrDefault(cfg.Topic)).
		Str("compression", cfg.Compression).
		Int("required_acks", cfg.RequiredAcks).
		Msg("kafka event publisher connected")

	return NewKafkaPublisherWithProducer(producer, cfg.Topic), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topicOrDefault(topic)}
}

func topicOrDefault(topic string) string {
	if topic == "" {
		return "courier-events"
	}
	return topic
}

// Name returns the publisher identifier.
func (p *KafkaPublisher) Name() string {
	return "kafka"
}

// Publish sends an event keyed by file name.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event, data []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Data.Name),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte(ev.Type)},
			{Key: []byte("id"), Value: []byte(ev.ID)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}

	logger.Debug().
		Str("topic", p.topic).
		Str("name", ev.Data.Name).
		Int32("partition", partition).
		Int64("offset", offset).
		Int("size", len(data)).
		Msg("published event to kafka")

	return nil
}

// Close closes the Kafka producer.
func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// scramClient implements sarama.SCRAMClient.
type scramClient struct {
	mechanism    scram.HashGeneratorFcn
	conversation *scram.ClientConversation
}

func (c *scramClient) Begin(userName, password, authzID string) error {
	client, err := c.mechanism.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	c.conversation = client.NewConversation()
	return nil
}

func (c *scramClient) Step(challenge string) (string, error) {
	return c.conversation.Step(challenge)
}

func (c *scramClient) Done() bool {
	return c.conversation.Done()
}
