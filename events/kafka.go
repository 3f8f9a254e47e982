package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akinalp/messenger/pkg/metrics"
)

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes envelopes as JSON to a single topic. Messages are keyed by
// chat id so events of one chat stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
	topic  string
	log    *zap.SugaredLogger
}

// NewKafkaSink creates a sink for the given brokers and topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 5 * time.Second,
	}
	return newKafkaSink(w, topic)
}

func newKafkaSink(w messageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: w, topic: topic, log: zap.S().Named("events")}
}

// Publish encodes and writes one envelope.
func (s *KafkaSink) Publish(ctx context.Context, env Envelope) error {
	msg, err := encode(env)
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return err
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		s.log.Warnw("publish failed", "topic", s.topic, "op", env.Op, "chat_id", env.ChatID, "error", err)
		return fmt.Errorf("failed to publish %s event: %w", env.Op, err)
	}

	metrics.EventsPublished.WithLabelValues("ok").Inc()
	return nil
}

// Close flushes pending writes.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func encode(env Envelope) (kafka.Message, error) {
	if env.At.IsZero() {
		env.At = time.Now().UTC()
	}
	if env.Recipients == nil {
		env.Recipients = []string{}
	}
	if env.OfflineRecipients == nil {
		env.OfflineRecipients = []string{}
	}

	value, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode %s event: %w", env.Op, err)
	}
	return kafka.Message{
		Key:   []byte(env.ChatID),
		Value: value,
		Time:  env.At,
		Headers: []kafka.Header{
			{Key: "op", Value: []byte(env.Op)},
		},
	}, nil
}
