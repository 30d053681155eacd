package periodic

import (
	"context"
	"time"

	"carmen/internal/core/types"
	"carmen/internal/domain/costing"
)

// Strategy exposes the calculator as a costing.Strategy.
type Strategy struct {
	calc *Calculator
}

var _ costing.Strategy = (*Strategy)(nil)

// NewStrategy wraps calc.
func NewStrategy(calc *Calculator) *Strategy {
	return &Strategy{calc: calc}
}

func (s *Strategy) Method() costing.Method { return costing.MethodPeriodicAverage }

// ComputeUnitCost prices qty units at the average of the month enclosing asOf.
func (s *Strategy) ComputeUnitCost(ctx context.Context, itemID string, asOf time.Time, qty types.Quantity) (costing.CostResult, error) {
	rec, err := s.calc.RecordAsOf(ctx, itemID, asOf)
	if err != nil {
		return costing.CostResult{}, err
	}
	p := rec.Period
	return costing.CostResult{
		ItemID:    itemID,
		UnitCost:  rec.AverageUnitCost,
		Method:    costing.MethodPeriodicAverage,
		AsOf:      asOf,
		Quantity:  qty,
		TotalCost: types.RoundCost(qty.Mul(rec.AverageUnitCost), types.MoneyScale),
		Period:    &p,
	}, nil
}
