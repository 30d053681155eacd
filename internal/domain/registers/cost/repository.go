// Package cost provides the cost accumulation register: the receipt and issue
// history every costing method is computed from.
package cost

import (
	"context"
	"time"

	"carmen/internal/core/entity"
	"carmen/internal/core/id"
	"carmen/internal/core/types"
)

// Repository defines operations for the cost register.
type Repository interface {
	// Movement operations

	// CreateMovements batch inserts movements (used during posting)
	CreateMovements(ctx context.Context, movements []entity.CostMovement) error

	// DeleteMovementsByRecorder removes all movements of a document and returns them
	// so listeners can invalidate the affected periods.
	DeleteMovementsByRecorder(ctx context.Context, recorderID id.ID) ([]entity.CostMovement, error)

	// History

	// ListReceipts returns receipts for itemID with Period in [from, to], oldest first.
	ListReceipts(ctx context.Context, itemID string, from, to time.Time) ([]entity.CostMovement, error)

	// ListReceiptsUpTo returns every receipt for itemID with Period <= asOf, oldest first.
	ListReceiptsUpTo(ctx context.Context, itemID string, asOf time.Time) ([]entity.CostMovement, error)

	// IssuedQuantity sums issue quantities for itemID with Period <= asOf.
	IssuedQuantity(ctx context.Context, itemID string, asOf time.Time) (types.Quantity, error)
}

// PostingListener is notified after movements are committed or reversed.
// The periodic average calculator uses it to drop stale open-period entries.
type PostingListener interface {
	OnMovementPosted(ctx context.Context, m entity.CostMovement)
}

// PostingListenerFunc adapts a function to PostingListener.
type PostingListenerFunc func(ctx context.Context, m entity.CostMovement)

// OnMovementPosted implements PostingListener.
func (f PostingListenerFunc) OnMovementPosted(ctx context.Context, m entity.CostMovement) {
	f(ctx, m)
}

// Outbox durably records posting events inside the posting transaction so a
// relay can publish them to other processes.
type Outbox interface {
	Enqueue(ctx context.Context, events []PostingEvent) error
}

// ReceiptInput describes a goods receipt line to record.
type ReceiptInput struct {
	RecorderID   id.ID
	RecorderType string
	ItemID       string
	LocationID   string
	Date         time.Time
	Quantity     types.Quantity
	UnitCost     types.Money
}

// IssueInput describes an issuance line to record.
type IssueInput struct {
	RecorderID   id.ID
	RecorderType string
	ItemID       string
	LocationID   string
	Date         time.Time
	Quantity     types.Quantity
}

// ReceiptFilter selects receipt history.
type ReceiptFilter struct {
	ItemID string
	From   time.Time
	To     time.Time
}

// PostingEvent is the wire form of a posted or reversed movement, published on
// Postgres NOTIFY and Kafka so other processes can invalidate their caches.
type PostingEvent struct {
	ItemID     string            `json:"itemId"`
	LineID     string            `json:"lineId,omitempty"`
	RecordType entity.RecordType `json:"recordType"`
	PostedAt   time.Time         `json:"postedAt"`
}

// NewPostingEvent builds the event for m.
func NewPostingEvent(m entity.CostMovement) PostingEvent {
	return PostingEvent{
		ItemID:     m.ItemID,
		LineID:     m.LineID.String(),
		RecordType: m.RecordType,
		PostedAt:   m.Period,
	}
}

// Movement rebuilds the minimal movement listeners need to locate the period.
func (e PostingEvent) Movement() entity.CostMovement {
	m := entity.CostMovement{ItemID: e.ItemID}
	m.RecordType = e.RecordType
	m.Period = e.PostedAt
	if lineID, err := id.Parse(e.LineID); err == nil {
		m.LineID = lineID
	}
	return m
}
