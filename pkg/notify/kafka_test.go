// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := DefaultKafkaConfig([]string{"localhost:9092"})

	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, "courier-events", cfg.Topic)
	assert.Equal(t, 1, cfg.RequiredAcks)
	assert.Equal(t, "snappy", cfg.Compression)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
}

func TestSaramaConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         KafkaConfig
		acks        sarama.RequiredAcks
		compression sarama.CompressionCodec
		sasl        sarama.SASLMechanism
	}{
		{
			name:        "defaults",
			cfg:         DefaultKafkaConfig([]string{"b:9092"}),
			acks:        sarama.WaitForLocal,
			compression: sarama.CompressionSnappy,
		},
		{
			name:        "all acks zstd",
			cfg:         KafkaConfig{RequiredAcks: -1, Compression: "zstd"},
			acks:        sarama.WaitForAll,
			compression: sarama.CompressionZSTD,
		},
		{
			name:        "no acks no compression",
			cfg:         KafkaConfig{RequiredAcks: 0, Compression: "none"},
			acks:        sarama.NoResponse,
			compression: sarama.CompressionNone,
		},
		{
			name:        "scram 512",
			cfg:         KafkaConfig{RequiredAcks: 1, SASLMechanism: "SCRAM-SHA-512", SASLUsername: "u"},
			acks:        sarama.WaitForLocal,
			compression: sarama.CompressionNone,
			sasl:        sarama.SASLTypeSCRAMSHA512,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := saramaConfig(tt.cfg)
			assert.Equal(t, tt.acks, c.Producer.RequiredAcks)
			assert.Equal(t, tt.compression, c.Producer.Compression)
			assert.True(t, c.Producer.Return.Successes)
			if tt.sasl != "" {
				assert.True(t, c.Net.SASL.Enable)
				assert.Equal(t, tt.sasl, c.Net.SASL.Mechanism)
				assert.NotNil(t, c.Net.SASL.SCRAMClientGeneratorFunc)
			} else {
				assert.False(t, c.Net.SASL.Enable)
			}
		})
	}
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaPublisher(KafkaConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one Kafka broker is required")
}

func TestKafkaPublisher_Publish(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "courier-events" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "report.pdf" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})

	pub := NewKafkaPublisherWithProducer(producer, "")
	ev := FileUploaded("report.pdf", 3, time.Now(), "")
	data, err := ev.Marshal()
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), ev, data))
	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisherWithProducer(producer, "events")
	err := pub.Publish(context.Background(), FileDeleted("x"), []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.Contains(t, err.Error(), "kafka publish")
	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_Name(t *testing.T) {
	t.Parallel()

	pub := &KafkaPublisher{topic: "test"}
	assert.Equal(t, "kafka", pub.Name())
	assert.NoError(t, pub.Close())
}
