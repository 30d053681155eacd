package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"carmen/internal/core/types"
	"carmen/internal/domain/costing"
	"carmen/internal/infrastructure/http/v1/dto"
)

// CostValuer answers method-aware cost requests.
type CostValuer interface {
	GetCost(ctx context.Context, req costing.CostRequest) (costing.CostResult, error)
}

// AverageReader exposes periodic averages.
type AverageReader interface {
	GetAverageRecord(ctx context.Context, itemID string, periodStart, periodEnd time.Time) (costing.PeriodicAverageRecord, error)
	Recompute(ctx context.Context, itemID string, asOf time.Time) (costing.PeriodicAverageRecord, error)
}

// LotReader exposes remaining FIFO cost layers.
type LotReader interface {
	Lots(ctx context.Context, itemID string, asOf time.Time) ([]costing.Layer, error)
}

// ValuationHandler handles HTTP requests for inventory valuation.
type ValuationHandler struct {
	*BaseHandler
	valuer   CostValuer
	averages AverageReader
	lots     LotReader
}

// NewValuationHandler creates a new valuation handler.
func NewValuationHandler(base *BaseHandler, valuer CostValuer, averages AverageReader, lots LotReader) *ValuationHandler {
	return &ValuationHandler{
		BaseHandler: base,
		valuer:      valuer,
		averages:    averages,
		lots:        lots,
	}
}

// GetCost handles GET /valuation/cost
func (h *ValuationHandler) GetCost(c *gin.Context) {
	var q dto.CostQuery
	if !h.BindQuery(c, &q) {
		return
	}
	asOf, err := h.ParseDate("asOf", q.AsOf)
	if err != nil {
		h.Error(c, err)
		return
	}
	qty, err := h.ParseQuantity("quantity", q.Quantity, types.MustQuantity("1"))
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.valuer.GetCost(c.Request.Context(), costing.CostRequest{
		ScopeID:  q.ScopeID,
		ItemID:   q.ItemID,
		AsOf:     asOf,
		Quantity: qty,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromCostResult(res))
}

// GetAverage handles GET /valuation/average
func (h *ValuationHandler) GetAverage(c *gin.Context) {
	var q dto.AverageQuery
	if !h.BindQuery(c, &q) {
		return
	}
	start, err := h.ParseDate("periodStart", q.PeriodStart)
	if err != nil {
		h.Error(c, err)
		return
	}
	end, err := h.ParseDate("periodEnd", q.PeriodEnd)
	if err != nil {
		h.Error(c, err)
		return
	}

	rec, err := h.averages.GetAverageRecord(c.Request.Context(), q.ItemID, start, end)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAverage(rec))
}

// Recompute handles POST /valuation/average/recompute
func (h *ValuationHandler) Recompute(c *gin.Context) {
	var req dto.RecomputeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	asOf, err := h.ParseDate("asOf", req.AsOf)
	if err != nil {
		h.Error(c, err)
		return
	}

	rec, err := h.averages.Recompute(c.Request.Context(), req.ItemID, asOf)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAverage(rec))
}

// Lots handles GET /valuation/lots
func (h *ValuationHandler) Lots(c *gin.Context) {
	var q dto.LotsQuery
	if !h.BindQuery(c, &q) {
		return
	}
	asOf, err := h.ParseDate("asOf", q.AsOf)
	if err != nil {
		h.Error(c, err)
		return
	}

	layers, err := h.lots.Lots(c.Request.Context(), q.ItemID, asOf)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(dto.FromLayers(layers)))
}
