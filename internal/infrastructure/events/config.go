// Package events moves cost posting events through Kafka: the outbox relay
// publishes them and consumers in other processes invalidate their caches.
package events

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultTopic carries cost.PostingEvent payloads keyed by item id.
const DefaultTopic = "carmen.cost-movements"

const (
	headerEventType = "event-type"
	headerMessageID = "message-id"
)

// Config holds Kafka connection settings.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string

	BatchTimeout time.Duration
	MaxWait      time.Duration
}

func (c Config) topic() string {
	if c.Topic == "" {
		return DefaultTopic
	}
	return c.Topic
}

// NewWriter builds a synchronous writer; the outbox relay needs the delivery result.
func NewWriter(cfg Config) *kafka.Writer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.topic(),
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
}

// NewReader builds a consumer-group reader.
func NewReader(cfg Config) *kafka.Reader {
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = time.Second
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.topic(),
		MinBytes: 1,
		MaxBytes: 1 << 20,
		MaxWait:  maxWait,
	})
}
