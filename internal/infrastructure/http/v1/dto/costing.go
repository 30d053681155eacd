package dto

import (
	"time"

	"carmen/internal/core/entity"
	"carmen/internal/domain/costing"
)

// --- Settings ---

// SetCostingMethodRequest for PUT /settings/:scopeId.
type SetCostingMethodRequest struct {
	CostingMethod string `json:"costingMethod" binding:"required"`
}

// SettingsResponse is one settings version.
type SettingsResponse struct {
	ScopeID       string    `json:"scopeId"`
	CostingMethod string    `json:"costingMethod"`
	Version       int       `json:"version"`
	UpdatedBy     string    `json:"updatedBy,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// FromSettings creates SettingsResponse from costing.InventorySettings.
func FromSettings(s costing.InventorySettings) SettingsResponse {
	return SettingsResponse{
		ScopeID:       s.ScopeID,
		CostingMethod: s.Method.String(),
		Version:       s.Version,
		UpdatedBy:     s.UpdatedBy,
		UpdatedAt:     s.UpdatedAt,
	}
}

// --- Valuation ---

// CostQuery for GET /valuation/cost. Dates accept YYYY-MM-DD or RFC3339.
type CostQuery struct {
	ScopeID  string `form:"scopeId" binding:"required"`
	ItemID   string `form:"itemId" binding:"required"`
	AsOf     string `form:"asOf"`
	Quantity string `form:"quantity"`
}

// AverageQuery for GET /valuation/average.
type AverageQuery struct {
	ItemID      string `form:"itemId" binding:"required"`
	PeriodStart string `form:"periodStart" binding:"required"`
	PeriodEnd   string `form:"periodEnd" binding:"required"`
}

// RecomputeRequest for POST /valuation/average/recompute.
type RecomputeRequest struct {
	ItemID string `json:"itemId" binding:"required"`
	AsOf   string `json:"asOf" binding:"required"`
}

// LotsQuery for GET /valuation/lots.
type LotsQuery struct {
	ItemID string `form:"itemId" binding:"required"`
	AsOf   string `form:"asOf"`
}

// AverageResponse is a periodic average record.
type AverageResponse struct {
	ItemID          string    `json:"itemId"`
	Period          string    `json:"period"`
	PeriodStart     time.Time `json:"periodStart"`
	PeriodEnd       time.Time `json:"periodEnd"`
	AverageUnitCost string    `json:"averageUnitCost"`
	TotalQuantity   string    `json:"totalQuantity"`
	TotalValue      string    `json:"totalValue"`
	ReceiptCount    int       `json:"receiptCount"`
	ComputedAt      time.Time `json:"computedAt"`
}

// FromAverage creates AverageResponse from costing.PeriodicAverageRecord.
func FromAverage(r costing.PeriodicAverageRecord) AverageResponse {
	return AverageResponse{
		ItemID:          r.ItemID,
		Period:          r.Period.Key(),
		PeriodStart:     r.Period.Start,
		PeriodEnd:       r.Period.End,
		AverageUnitCost: r.AverageUnitCost.String(),
		TotalQuantity:   r.TotalQuantity.String(),
		TotalValue:      r.TotalValue.String(),
		ReceiptCount:    r.ReceiptCount,
		ComputedAt:      r.ComputedAt,
	}
}

// LayerResponse is one FIFO cost layer.
type LayerResponse struct {
	LineID     string    `json:"lineId"`
	ReceivedAt time.Time `json:"receivedAt"`
	Quantity   string    `json:"quantity"`
	UnitCost   string    `json:"unitCost"`
}

// FromLayers converts FIFO layers.
func FromLayers(layers []costing.Layer) []LayerResponse {
	out := make([]LayerResponse, 0, len(layers))
	for _, l := range layers {
		out = append(out, LayerResponse{
			LineID:     l.LineID,
			ReceivedAt: l.ReceivedAt,
			Quantity:   l.Quantity.String(),
			UnitCost:   l.UnitCost.String(),
		})
	}
	return out
}

// CostResponse is the answer of the valuation facade.
type CostResponse struct {
	ItemID          string          `json:"itemId"`
	ScopeID         string          `json:"scopeId"`
	CostingMethod   string          `json:"costingMethod"`
	DefaultedMethod bool            `json:"defaultedMethod"`
	AsOf            time.Time       `json:"asOf"`
	Quantity        string          `json:"quantity"`
	UnitCost        string          `json:"unitCost"`
	TotalCost       string          `json:"totalCost"`
	Period          string          `json:"period,omitempty"`
	Layers          []LayerResponse `json:"layers,omitempty"`
}

// FromCostResult creates CostResponse from costing.CostResult.
func FromCostResult(r costing.CostResult) CostResponse {
	resp := CostResponse{
		ItemID:          r.ItemID,
		ScopeID:         r.ScopeID,
		CostingMethod:   r.Method.String(),
		DefaultedMethod: r.DefaultedMethod,
		AsOf:            r.AsOf,
		Quantity:        r.Quantity.String(),
		UnitCost:        r.UnitCost.String(),
		TotalCost:       r.TotalCost.String(),
	}
	if r.Period != nil {
		resp.Period = r.Period.Key()
	}
	if len(r.Layers) > 0 {
		resp.Layers = FromLayers(r.Layers)
	}
	return resp
}

// --- Cost register ---

// PostReceiptRequest records a goods receipt line.
type PostReceiptRequest struct {
	RecorderID string `json:"recorderId"`
	ItemID     string `json:"itemId" binding:"required"`
	LocationID string `json:"locationId"`
	Date       string `json:"date" binding:"required"`
	Quantity   string `json:"quantity" binding:"required"`
	UnitCost   string `json:"unitCost" binding:"required"`
}

// PostIssueRequest records an issuance line.
type PostIssueRequest struct {
	RecorderID string `json:"recorderId"`
	ItemID     string `json:"itemId" binding:"required"`
	LocationID string `json:"locationId"`
	Date       string `json:"date" binding:"required"`
	Quantity   string `json:"quantity" binding:"required"`
}

// ReceiptsQuery for GET /register/receipts.
type ReceiptsQuery struct {
	ItemID string `form:"itemId" binding:"required"`
	From   string `form:"from" binding:"required"`
	To     string `form:"to" binding:"required"`
}

// MovementResponse is one cost register line.
type MovementResponse struct {
	LineID       string    `json:"lineId"`
	RecorderID   string    `json:"recorderId"`
	RecorderType string    `json:"recorderType"`
	RecordType   string    `json:"recordType"`
	ItemID       string    `json:"itemId"`
	LocationID   string    `json:"locationId,omitempty"`
	Date         time.Time `json:"date"`
	Quantity     string    `json:"quantity"`
	UnitCost     string    `json:"unitCost"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FromMovement creates MovementResponse from entity.CostMovement.
func FromMovement(m entity.CostMovement) MovementResponse {
	return MovementResponse{
		LineID:       m.LineID.String(),
		RecorderID:   m.RecorderID.String(),
		RecorderType: m.RecorderType,
		RecordType:   string(m.RecordType),
		ItemID:       m.ItemID,
		LocationID:   m.LocationID,
		Date:         m.Period,
		Quantity:     m.Quantity.String(),
		UnitCost:     m.UnitCost.String(),
		CreatedAt:    m.CreatedAt,
	}
}
