package events

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"carmen/internal/infrastructure/storage/postgres"
	"carmen/pkg/logger"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ postgres.OutboxHandler = (*Publisher)(nil)

// Publisher delivers outbox messages to Kafka.
type Publisher struct {
	writer MessageWriter
}

// NewPublisher creates a publisher over w.
func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

// Handle implements postgres.OutboxHandler.
func (p *Publisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	if err := p.writer.WriteMessages(ctx, toKafka(msg)); err != nil {
		return fmt.Errorf("write %s to kafka: %w", msg.EventType, err)
	}
	logger.Debug(ctx, "outbox message published",
		"message_id", msg.ID,
		"event_type", msg.EventType,
		"aggregate_id", msg.AggregateID,
	)
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// toKafka keys messages by aggregate so one item's events stay ordered within a partition.
func toKafka(msg *postgres.OutboxMessage) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.AggregateID),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(msg.EventType)},
			{Key: headerMessageID, Value: []byte(msg.ID.String())},
		},
		Time: msg.CreatedAt,
	}
}
