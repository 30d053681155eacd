// Package valuation is the single entry point for unit costs. It resolves the
// scope's costing method and dispatches to the matching strategy.
package valuation

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"carmen/internal/core/apperror"
	"carmen/internal/core/types"
	"carmen/internal/domain/costing"
	"carmen/pkg/logger"
)

var tracer = otel.Tracer("carmen/valuation")

// MethodResolver maps a scope to its costing method. settings.Service implements it.
type MethodResolver interface {
	ResolveMethod(ctx context.Context, scopeID string) (costing.Method, bool, error)
}

// Service is the valuation facade.
type Service struct {
	resolver   MethodResolver
	strategies map[costing.Method]costing.Strategy
}

// NewService creates the facade. Each strategy is registered under its Method().
func NewService(resolver MethodResolver, strategies ...costing.Strategy) *Service {
	s := &Service{
		resolver:   resolver,
		strategies: make(map[costing.Method]costing.Strategy, len(strategies)),
	}
	for _, st := range strategies {
		s.strategies[st.Method()] = st
	}
	return s
}

// GetUnitCost returns the cost of the next unit of itemID in scopeID as of asOf.
// An unconfigured scope is costed with the default method; NO_DATA is returned
// to the caller unchanged.
func (s *Service) GetUnitCost(ctx context.Context, scopeID, itemID string, asOf time.Time) (costing.CostResult, error) {
	return s.GetCost(ctx, costing.CostRequest{
		ScopeID:  scopeID,
		ItemID:   itemID,
		AsOf:     asOf,
		Quantity: types.MustQuantity("1"),
	})
}

// ValueQuantity prices qty units of itemID under the scope's method.
func (s *Service) ValueQuantity(ctx context.Context, scopeID, itemID string, asOf time.Time, qty types.Quantity) (costing.CostResult, error) {
	if !qty.IsPositive() {
		return costing.CostResult{}, apperror.NewInvalidArgument("quantity must be positive").
			WithDetail("quantity", qty.String())
	}
	return s.GetCost(ctx, costing.CostRequest{
		ScopeID:  scopeID,
		ItemID:   itemID,
		AsOf:     asOf,
		Quantity: qty,
	})
}

// GetCost resolves the method for req.ScopeID and delegates to its strategy.
func (s *Service) GetCost(ctx context.Context, req costing.CostRequest) (res costing.CostResult, err error) {
	ctx, span := tracer.Start(ctx, "valuation.GetCost",
		trace.WithAttributes(
			attribute.String("scope_id", req.ScopeID),
			attribute.String("item_id", req.ItemID),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if strings.TrimSpace(req.ScopeID) == "" {
		return costing.CostResult{}, apperror.NewInvalidArgument("scope id is required")
	}
	if strings.TrimSpace(req.ItemID) == "" {
		return costing.CostResult{}, apperror.NewInvalidArgument("item id is required")
	}
	if req.AsOf.IsZero() {
		req.AsOf = time.Now()
	}
	if req.Quantity.IsZero() {
		req.Quantity = types.MustQuantity("1")
	}

	method, defaulted, err := s.resolver.ResolveMethod(ctx, req.ScopeID)
	if err != nil {
		return costing.CostResult{}, err
	}
	span.SetAttributes(
		attribute.String("costing.method", string(method)),
		attribute.Bool("costing.defaulted", defaulted),
	)

	strategy, ok := s.strategies[method]
	if !ok {
		return costing.CostResult{}, apperror.NewInternal(nil).
			WithDetail("reason", "no strategy registered for costing method").
			WithDetail("method", string(method))
	}

	res, err = strategy.ComputeUnitCost(ctx, req.ItemID, req.AsOf, req.Quantity)
	if err != nil {
		if apperror.IsNoData(err) {
			logger.Info(ctx, "no cost basis for item",
				"scope_id", req.ScopeID,
				"item_id", req.ItemID,
				"method", method,
			)
		}
		return costing.CostResult{}, err
	}

	res.ScopeID = req.ScopeID
	res.Method = method
	res.DefaultedMethod = defaulted
	return res, nil
}
