package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carmen/internal/core/entity"
	"carmen/internal/core/id"
	"carmen/internal/domain/registers/cost"
	"carmen/internal/infrastructure/storage/postgres"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	queue     chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.queue:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type collectingListener struct {
	mu   sync.Mutex
	seen []entity.CostMovement
}

func (l *collectingListener) OnMovementPosted(_ context.Context, m entity.CostMovement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, m)
}

func (l *collectingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

func postingPayload(t *testing.T, itemID string, at time.Time) []byte {
	t.Helper()
	b, err := json.Marshal(cost.PostingEvent{
		ItemID:     itemID,
		LineID:     id.New().String(),
		RecordType: entity.RecordTypeReceipt,
		PostedAt:   at,
	})
	require.NoError(t, err)
	return b
}

func TestPublisherKeysByItem(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w)
	at := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)

	msg := &postgres.OutboxMessage{
		ID:          id.New(),
		AggregateID: "SKU-100",
		EventType:   postgres.EventCostMovementPosted,
		Payload:     postingPayload(t, "SKU-100", at),
		CreatedAt:   at,
	}
	require.NoError(t, p.Handle(context.Background(), msg))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "SKU-100", string(w.msgs[0].Key))
	assert.Equal(t, postgres.EventCostMovementPosted, header(w.msgs[0], headerEventType))
	assert.Equal(t, msg.ID.String(), header(w.msgs[0], headerMessageID))
}

func TestPublisherReportsWriteFailure(t *testing.T) {
	p := NewPublisher(&fakeWriter{err: errors.New("broker down")})

	err := p.Handle(context.Background(), &postgres.OutboxMessage{EventType: postgres.EventCostMovementPosted})
	assert.ErrorContains(t, err, "broker down")
}

func TestConsumerHandleForwardsMovement(t *testing.T) {
	c := NewReceiptConsumer(&fakeReader{})
	l := &collectingListener{}
	c.Subscribe(l)
	at := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)

	err := c.Handle(context.Background(), kafka.Message{Value: postingPayload(t, "SKU-100", at)})
	require.NoError(t, err)

	require.Len(t, l.seen, 1)
	assert.Equal(t, "SKU-100", l.seen[0].ItemID)
	assert.True(t, l.seen[0].Period.Equal(at))
}

func TestConsumerHandleRejectsBadPayloads(t *testing.T) {
	c := NewReceiptConsumer(&fakeReader{})
	l := &collectingListener{}
	c.Subscribe(l)

	assert.Error(t, c.Handle(context.Background(), kafka.Message{Value: []byte("{")}))
	assert.Error(t, c.Handle(context.Background(), kafka.Message{Value: []byte(`{"postedAt":"2024-03-05T00:00:00Z"}`)}))

	// Other event types on the topic are ignored.
	other := kafka.Message{
		Value:   []byte(`{"itemId":"SKU-1"}`),
		Headers: []kafka.Header{{Key: headerEventType, Value: []byte("SomethingElse")}},
	}
	assert.NoError(t, c.Handle(context.Background(), other))
	assert.Zero(t, l.count())
}

func TestConsumerRunCommitsEveryMessage(t *testing.T) {
	r := &fakeReader{queue: make(chan kafka.Message, 2)}
	c := NewReceiptConsumer(r)
	l := &collectingListener{}
	c.Subscribe(l)

	at := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	r.queue <- kafka.Message{Offset: 1, Value: postingPayload(t, "SKU-100", at)}
	r.queue <- kafka.Message{Offset: 2, Value: []byte("garbage")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2}, r.commits())
	assert.Equal(t, 1, l.count())
}
