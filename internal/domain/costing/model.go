// Package costing holds the shared vocabulary of the inventory valuation engine:
// costing methods, settings, period average records and cost results.
package costing

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"carmen/internal/core/apperror"
	"carmen/internal/core/period"
	"carmen/internal/core/types"
)

// Method is the accounting policy used to assign a unit cost to inventory movements.
type Method string

const (
	MethodFIFO            Method = "FIFO"
	MethodPeriodicAverage Method = "PERIODIC_AVERAGE"
)

// DefaultMethod applies to scopes that have never been configured.
const DefaultMethod = MethodFIFO

// Methods lists every recognised method.
func Methods() []Method {
	return []Method{MethodFIFO, MethodPeriodicAverage}
}

// Valid reports whether m is a recognised method.
func (m Method) Valid() bool {
	switch m {
	case MethodFIFO, MethodPeriodicAverage:
		return true
	}
	return false
}

func (m Method) String() string { return string(m) }

// ParseMethod normalises user input ("fifo", "periodic-average") into a Method.
func ParseMethod(s string) (Method, error) {
	norm := Method(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !norm.Valid() {
		return "", apperror.NewInvalidArgument("unrecognised costing method").
			WithDetail("method", s).
			WithDetail("allowed", Methods())
	}
	return norm, nil
}

// InventorySettings is the costing configuration of one organisational scope.
// Exactly one version is active per scope; older versions are superseded, never deleted.
type InventorySettings struct {
	ScopeID   string    `db:"scope_id" json:"scopeId" validate:"required,max=64"`
	Method    Method    `db:"costing_method" json:"costingMethod" validate:"required,costing_method"`
	Version   int       `db:"version" json:"version"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy,omitempty"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

var settingsValidator = newSettingsValidator()

func newSettingsValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("costing_method", func(fl validator.FieldLevel) bool {
		return Method(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks the settings record before it is persisted.
func (s InventorySettings) Validate() error {
	if err := settingsValidator.Struct(s); err != nil {
		return apperror.NewInvalidArgument("invalid inventory settings").
			WithDetail("scope_id", s.ScopeID).
			WithDetail("method", s.Method).
			WithCause(err)
	}
	return nil
}

// PeriodicAverageRecord is the weighted-average cost of an item over one calendar month.
// AverageUnitCost == TotalValue / TotalQuantity (rounded to the cost scale); records
// with zero quantity are never built.
type PeriodicAverageRecord struct {
	ItemID          string         `json:"itemId"`
	Period          period.Month   `json:"period"`
	AverageUnitCost types.Money    `json:"averageUnitCost"`
	TotalQuantity   types.Quantity `json:"totalQuantity"`
	TotalValue      types.Money    `json:"totalValue"`
	ReceiptCount    int            `json:"receiptCount"`
	ComputedAt      time.Time      `json:"computedAt"`
}

// CacheKey identifies a record for the (item, period) pair.
func (r PeriodicAverageRecord) CacheKey() CacheKey {
	return NewCacheKey(r.ItemID, r.Period)
}

// CacheKey is the (item, periodStart, periodEnd) cache identity.
type CacheKey struct {
	ItemID string
	Start  time.Time
	End    time.Time
}

// NewCacheKey builds the key of an item's month.
func NewCacheKey(itemID string, m period.Month) CacheKey {
	return CacheKey{ItemID: itemID, Start: m.Start, End: m.End}
}

// String renders the key as "item|start|end" in UTC RFC3339Nano.
func (k CacheKey) String() string {
	return k.ItemID + "|" + k.Start.UTC().Format(time.RFC3339Nano) + "|" + k.End.UTC().Format(time.RFC3339Nano)
}

// Layer is a slice of a FIFO lot consumed while costing a request.
type Layer struct {
	ReceivedAt time.Time      `json:"receivedAt"`
	LineID     string         `json:"lineId"`
	Quantity   types.Quantity `json:"quantity"`
	UnitCost   types.Money    `json:"unitCost"`
}

// CostResult is the answer to "what does this item cost", tagged with the method
// that produced it. It is built per request and never persisted.
type CostResult struct {
	ItemID    string         `json:"itemId"`
	ScopeID   string         `json:"scopeId,omitempty"`
	UnitCost  types.Money    `json:"unitCost"`
	Method    Method         `json:"method"`
	AsOf      time.Time      `json:"asOf"`
	Quantity  types.Quantity `json:"quantity"`
	TotalCost types.Money    `json:"totalCost"`
	// Period is set for periodic average results.
	Period *period.Month `json:"period,omitempty"`
	// Layers is set for FIFO results.
	Layers []Layer `json:"layers,omitempty"`
	// DefaultedMethod is true when the scope had no settings and the default applied.
	DefaultedMethod bool `json:"defaultedMethod"`
}

// CostRequest asks for the cost of Quantity units of ItemID as of AsOf.
type CostRequest struct {
	ScopeID  string
	ItemID   string
	AsOf     time.Time
	Quantity types.Quantity
}

// Strategy computes a unit cost from the item's transaction history.
// FIFO and periodic average are the two implementations.
type Strategy interface {
	Method() Method
	ComputeUnitCost(ctx context.Context, itemID string, asOf time.Time, qty types.Quantity) (CostResult, error)
}
