// Package kafka publishes settlement events to a Kafka topic for downstream
// consumers (accounting, notifications).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/flight-insurance-service/internal/evaluator"
)

// Publisher produces settlement events to the configured sink topic.
// It implements evaluator.SettlementPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the settlement topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishSettlement serializes and publishes one settlement event.
func (p *Publisher) PublishSettlement(ctx context.Context, ev evaluator.SettlementEvent) error {
	msg, err := serializeSettlement(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeSettlement marshals a settlement event into a Kafka message keyed
// by policy ID so all events for a policy land on one partition.
func serializeSettlement(ev evaluator.SettlementEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize settlement event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.PolicyID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "outcome", Value: []byte(ev.Outcome)},
			{Key: "occurred_at", Value: []byte(ev.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}
