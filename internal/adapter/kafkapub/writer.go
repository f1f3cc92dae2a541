// Package kafkapub publishes composite snapshots to a Kafka topic so
// downstream consumers (dashboards, alerting, archival) can follow the
// environment without polling the HTTP API. Publishing is feature-flagged by
// configuration and always best effort.
package kafkapub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/cityforge/enviro-intel/internal/aggregate"
)

// Publisher produces composite snapshot messages to a Kafka topic. It
// implements freshness.SnapshotSink.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the snapshot topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish serializes and writes one composite snapshot. The message key is
// the result ID so replays and compaction behave per computation.
func (p *Publisher) Publish(ctx context.Context, result aggregate.CompositeResult) error {
	msg, err := serializeToMessage(result)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a composite result into a Kafka message.
func serializeToMessage(result aggregate.CompositeResult) (kafkago.Message, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize composite snapshot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(result.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "location", Value: []byte(result.Location)},
			{Key: "computed_at", Value: []byte(result.ComputedAt.Format(time.RFC3339))},
		},
	}, nil
}
