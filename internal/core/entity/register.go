// Package entity provides core domain entities.
package entity

import (
	"time"

	"carmen/internal/core/id"
	"carmen/internal/core/types"
)

// RecordType defines movement direction for accumulation registers.
type RecordType string

const (
	// RecordTypeReceipt increases on-hand quantity and carries the purchase cost.
	RecordTypeReceipt RecordType = "receipt"
	// RecordTypeIssue consumes stock; its cost is derived, never supplied.
	RecordTypeIssue RecordType = "issue"
)

// Valid reports whether r is a known record type.
func (r RecordType) Valid() bool {
	return r == RecordTypeReceipt || r == RecordTypeIssue
}

// MovementBase contains common fields for all register movements.
// Movements are immutable - they are never updated, only deleted and recreated.
type MovementBase struct {
	// LineID is unique identifier for this movement line (UUIDv7)
	LineID id.ID `db:"line_id" json:"lineId"`

	// RecorderID is the business document that created this movement (GRN, issue note)
	RecorderID id.ID `db:"recorder_id" json:"recorderId"`

	// RecorderType is the document type (e.g., "GoodsReceipt", "StoreRequisition")
	RecorderType string `db:"recorder_type" json:"recorderType"`

	// Period is the business date of the movement; it decides the costing month
	Period time.Time `db:"period" json:"period"`

	RecordType RecordType `db:"record_type" json:"recordType"`

	// CreatedAt is when the movement was recorded
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewMovementBase creates a new movement base with generated LineID.
func NewMovementBase(recorderID id.ID, recorderType string, period time.Time, recordType RecordType) MovementBase {
	return MovementBase{
		LineID:       id.New(),
		RecorderID:   recorderID,
		RecorderType: recorderType,
		Period:       period,
		RecordType:   recordType,
		CreatedAt:    time.Now().UTC(),
	}
}

// CostMovement is a line in the cost register: the transaction history the
// costing methods are computed from.
type CostMovement struct {
	MovementBase

	// Dimensions
	ItemID     string `db:"item_id" json:"itemId"`
	LocationID string `db:"location_id" json:"locationId,omitempty"`

	// Resources
	Quantity types.Quantity `db:"quantity" json:"quantity"`
	UnitCost types.Money    `db:"unit_cost" json:"unitCost"`
}

// NewCostMovement creates a new cost register movement.
func NewCostMovement(
	recorderID id.ID,
	recorderType string,
	period time.Time,
	recordType RecordType,
	itemID, locationID string,
	quantity types.Quantity,
	unitCost types.Money,
) CostMovement {
	return CostMovement{
		MovementBase: NewMovementBase(recorderID, recorderType, period, recordType),
		ItemID:       itemID,
		LocationID:   locationID,
		Quantity:     quantity,
		UnitCost:     unitCost,
	}
}

// Value returns quantity * unit cost, unrounded.
func (m CostMovement) Value() types.Money {
	return m.Quantity.Mul(m.UnitCost)
}
