package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	appctx "carmen/internal/core/context"
	"carmen/internal/domain/registers/cost"
	"carmen/internal/infrastructure/storage/postgres"
	"carmen/pkg/logger"
)

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReceiptConsumer reads posting events and forwards them to posting
// listeners, typically a periodic.Calculator over the shared cache.
type ReceiptConsumer struct {
	reader MessageReader

	mu        sync.RWMutex
	listeners []cost.PostingListener
}

// NewReceiptConsumer creates a consumer over r.
func NewReceiptConsumer(r MessageReader) *ReceiptConsumer {
	return &ReceiptConsumer{reader: r}
}

// Subscribe registers l for every consumed event.
func (c *ReceiptConsumer) Subscribe(l cost.PostingListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Run consumes until ctx is cancelled. Malformed messages are committed and skipped.
func (c *ReceiptConsumer) Run(ctx context.Context) error {
	logger.Info(ctx, "receipt consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info(ctx, "receipt consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.Handle(ctx, msg); err != nil {
			logger.Warn(ctx, "skipping posting event",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error(ctx, "commit message failed", "offset", msg.Offset, "error", err)
		}
	}
}

// Handle decodes one message and fans it out to listeners.
func (c *ReceiptConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	if et := header(msg, headerEventType); et != "" && et != postgres.EventCostMovementPosted {
		return nil
	}

	var ev cost.PostingEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("decode posting event: %w", err)
	}
	if ev.ItemID == "" {
		return errors.New("posting event without item id")
	}
	mv := ev.Movement()
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext("", header(msg, headerMessageID)))

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.listeners {
		l.OnMovementPosted(ctx, mv)
	}
	return nil
}

// Close closes the reader.
func (c *ReceiptConsumer) Close() error {
	return c.reader.Close()
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
