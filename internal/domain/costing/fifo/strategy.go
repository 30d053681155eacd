// Package fifo implements first-in, first-out costing over the cost register.
package fifo

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"carmen/internal/core/apperror"
	"carmen/internal/core/entity"
	"carmen/internal/core/tx"
	"carmen/internal/core/types"
	"carmen/internal/domain/costing"
	"carmen/pkg/logger"
)

// History is the part of the cost register FIFO reads.
type History interface {
	ListReceiptsUpTo(ctx context.Context, itemID string, asOf time.Time) ([]entity.CostMovement, error)
	IssuedQuantity(ctx context.Context, itemID string, asOf time.Time) (types.Quantity, error)
}

// Strategy walks the queue of unconsumed receipt lots, oldest first.
type Strategy struct {
	history  History
	scale    int32
	snapshot tx.ReadOnlyManager
}

var _ costing.Strategy = (*Strategy)(nil)

// Option configures a Strategy.
type Option func(*Strategy)

// WithSnapshot reads receipts and issued quantity in one read-only
// transaction. Without it the two reads may straddle a concurrent posting.
func WithSnapshot(m tx.ReadOnlyManager) Option {
	return func(s *Strategy) { s.snapshot = m }
}

// NewStrategy creates a FIFO strategy. scale is the number of fractional
// digits kept on the blended unit cost.
func NewStrategy(history History, scale int32, opts ...Option) *Strategy {
	if scale <= 0 {
		scale = types.DefaultCostScale
	}
	s := &Strategy{history: history, scale: scale}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Strategy) Method() costing.Method { return costing.MethodFIFO }

// Lots returns the cost layers still on hand at asOf: every receipt up to asOf
// minus the quantity issued up to asOf, consumed oldest first.
func (s *Strategy) Lots(ctx context.Context, itemID string, asOf time.Time) ([]costing.Layer, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, apperror.NewInvalidArgument("item id is required")
	}

	var (
		receipts []entity.CostMovement
		issued   types.Quantity
	)
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		receipts, err = s.history.ListReceiptsUpTo(ctx, itemID, asOf)
		if err != nil {
			return fmt.Errorf("list receipts: %w", err)
		}
		issued, err = s.history.IssuedQuantity(ctx, itemID, asOf)
		if err != nil {
			return fmt.Errorf("issued quantity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(receipts, func(a, b entity.CostMovement) int {
		if c := a.Period.Compare(b.Period); c != 0 {
			return c
		}
		return strings.Compare(a.LineID.String(), b.LineID.String())
	})

	lots := make([]costing.Layer, 0, len(receipts))
	for _, r := range receipts {
		lots = append(lots, costing.Layer{
			ReceivedAt: r.Period,
			LineID:     r.LineID.String(),
			Quantity:   r.Quantity,
			UnitCost:   r.UnitCost,
		})
	}

	remaining, _, short := take(lots, issued)
	if short.IsPositive() {
		logger.Warn(ctx, "issued quantity exceeds receipts",
			"item_id", itemID,
			"as_of", asOf,
			"shortfall", short.String(),
		)
	}
	return remaining, nil
}

// ComputeUnitCost prices qty units (1 when qty is zero) from the oldest
// unconsumed lots. The unit cost is the blended cost of the layers taken.
func (s *Strategy) ComputeUnitCost(ctx context.Context, itemID string, asOf time.Time, qty types.Quantity) (costing.CostResult, error) {
	if qty.IsNegative() {
		return costing.CostResult{}, apperror.NewInvalidArgument("quantity must not be negative").
			WithDetail("quantity", qty.String())
	}
	if qty.IsZero() {
		qty = types.MustQuantity("1")
	}

	lots, err := s.Lots(ctx, itemID, asOf)
	if err != nil {
		return costing.CostResult{}, err
	}
	if len(lots) == 0 {
		return costing.CostResult{}, apperror.NewNoData(itemID, asOf.Format(time.DateOnly))
	}

	_, layers, short := take(lots, qty)
	if short.IsPositive() {
		return costing.CostResult{}, apperror.NewInsufficientStock(itemID, qty.String(), qty.Sub(short).String())
	}

	total := types.Zero()
	for _, l := range layers {
		total = total.Add(l.Quantity.Mul(l.UnitCost))
	}

	return costing.CostResult{
		ItemID:    itemID,
		UnitCost:  types.DivCost(total, qty, s.scale),
		Method:    costing.MethodFIFO,
		AsOf:      asOf,
		Quantity:  qty,
		TotalCost: types.RoundCost(total, types.MoneyScale),
		Layers:    layers,
	}, nil
}

func (s *Strategy) read(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.snapshot == nil {
		return fn(ctx)
	}
	return s.snapshot.ReadOnly(ctx, fn)
}

// take consumes qty from the head of lots. It returns the lots left over, the
// slices consumed and the quantity that could not be covered.
func take(lots []costing.Layer, qty types.Quantity) (remaining, consumed []costing.Layer, short types.Quantity) {
	need := qty
	for i, l := range lots {
		if !need.IsPositive() {
			remaining = append(remaining, lots[i:]...)
			return remaining, consumed, types.Zero()
		}
		if l.Quantity.LessThanOrEqual(need) {
			consumed = append(consumed, l)
			need = need.Sub(l.Quantity)
			continue
		}
		part := l
		part.Quantity = need
		consumed = append(consumed, part)

		rest := l
		rest.Quantity = l.Quantity.Sub(need)
		remaining = append(remaining, rest)
		remaining = append(remaining, lots[i+1:]...)
		return remaining, consumed, types.Zero()
	}
	if need.IsPositive() {
		return nil, consumed, need
	}
	return nil, consumed, types.Zero()
}
