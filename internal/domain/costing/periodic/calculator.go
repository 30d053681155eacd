package periodic

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"carmen/internal/core/apperror"
	"carmen/internal/core/entity"
	"carmen/internal/core/period"
	"carmen/internal/core/types"
	"carmen/internal/domain/costing"
	"carmen/pkg/logger"
)

// ReceiptSource is the transaction history the averages are computed from.
type ReceiptSource interface {
	ListReceipts(ctx context.Context, itemID string, from, to time.Time) ([]entity.CostMovement, error)
}

// Config tunes the calculator.
type Config struct {
	// Location decides month boundaries. Defaults to UTC.
	Location *time.Location
	// Scale is the number of fractional digits of the average.
	Scale int32
	// OpenTTL bounds how long an open-period entry may live even if an
	// invalidation is lost. Zero keeps it until invalidated.
	OpenTTL time.Duration
	// ClosedTTL applies to months that have ended. Zero keeps them forever.
	ClosedTTL time.Duration
	// InvalidateClosed also drops closed-month entries when a back-dated
	// movement is posted into them.
	InvalidateClosed bool
}

// DefaultConfig returns UTC months, six-digit averages and a five minute open-period TTL.
func DefaultConfig() Config {
	return Config{
		Location: time.UTC,
		Scale:    types.DefaultCostScale,
		OpenTTL:  5 * time.Minute,
	}
}

// Calculator computes period averages and owns their cache.
type Calculator struct {
	receipts ReceiptSource
	cache    Cache
	cfg      Config
	observer Observer
	now      func() time.Time

	group singleflight.Group
	// epoch advances on every invalidation before the cache is touched; a
	// computation that overlaps one does not leave its result cached.
	epoch atomic.Uint64
}

// Option configures Calculator.
type Option func(*Calculator)

// WithObserver reports cache events to o.
func WithObserver(o Observer) Option {
	return func(c *Calculator) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithClock injects the time source used to decide whether a month is open.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// NewCalculator creates a calculator. A nil cache disables caching.
func NewCalculator(receipts ReceiptSource, cache Cache, cfg Config, opts ...Option) *Calculator {
	if cache == nil {
		cache = NoCache{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Scale <= 0 {
		cfg.Scale = types.DefaultCostScale
	}
	c := &Calculator{
		receipts: receipts,
		cache:    cache,
		cfg:      cfg,
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Location returns the zone used for month boundaries.
func (c *Calculator) Location() *time.Location {
	return c.cfg.Location
}

// GetAverageCost returns the weighted-average unit cost of itemID over the
// month [periodStart, periodEnd]. A month without receipts fails with NO_DATA.
func (c *Calculator) GetAverageCost(ctx context.Context, itemID string, periodStart, periodEnd time.Time) (types.Money, error) {
	rec, err := c.GetAverageRecord(ctx, itemID, periodStart, periodEnd)
	if err != nil {
		return types.Zero(), err
	}
	return rec.AverageUnitCost, nil
}

// GetAverageRecord is GetAverageCost returning the full record with its totals.
func (c *Calculator) GetAverageRecord(ctx context.Context, itemID string, periodStart, periodEnd time.Time) (costing.PeriodicAverageRecord, error) {
	if strings.TrimSpace(itemID) == "" {
		return costing.PeriodicAverageRecord{}, apperror.NewInvalidArgument("item id is required")
	}
	m, err := period.New(periodStart, periodEnd, c.cfg.Location)
	if err != nil {
		return costing.PeriodicAverageRecord{}, err
	}
	return c.average(ctx, itemID, m)
}

// GetCostWithCaching derives the calendar month enclosing asOf and returns its average.
func (c *Calculator) GetCostWithCaching(ctx context.Context, itemID string, asOf time.Time) (types.Money, error) {
	rec, err := c.RecordAsOf(ctx, itemID, asOf)
	if err != nil {
		return types.Zero(), err
	}
	return rec.AverageUnitCost, nil
}

// RecordAsOf returns the record of the month enclosing asOf.
func (c *Calculator) RecordAsOf(ctx context.Context, itemID string, asOf time.Time) (costing.PeriodicAverageRecord, error) {
	if strings.TrimSpace(itemID) == "" {
		return costing.PeriodicAverageRecord{}, apperror.NewInvalidArgument("item id is required")
	}
	return c.average(ctx, itemID, period.MonthOf(asOf, c.cfg.Location))
}

// Recompute ignores any cached entry, computes the month enclosing asOf from
// the register and overwrites the cache.
func (c *Calculator) Recompute(ctx context.Context, itemID string, asOf time.Time) (costing.PeriodicAverageRecord, error) {
	if strings.TrimSpace(itemID) == "" {
		return costing.PeriodicAverageRecord{}, apperror.NewInvalidArgument("item id is required")
	}
	m := period.MonthOf(asOf, c.cfg.Location)
	c.invalidate(ctx, costing.NewCacheKey(itemID, m), "recompute")
	return c.average(ctx, itemID, m)
}

// Invalidate drops the cached entry of the month enclosing at.
func (c *Calculator) Invalidate(ctx context.Context, itemID string, at time.Time) {
	c.invalidate(ctx, costing.NewCacheKey(itemID, period.MonthOf(at, c.cfg.Location)), "explicit")
}

// InvalidateItem drops every cached month of itemID.
func (c *Calculator) InvalidateItem(ctx context.Context, itemID string) {
	c.epoch.Add(1)
	if err := c.cache.InvalidateItem(ctx, itemID); err != nil {
		c.observer.CacheError("invalidate_item")
		logger.Warn(ctx, "average cache item invalidation failed", "item_id", itemID, "error", err)
		return
	}
	c.observer.Invalidated("item")
}

// OnMovementPosted drops the cached average of the month a movement falls in.
// Closed months are left alone unless InvalidateClosed is set.
func (c *Calculator) OnMovementPosted(ctx context.Context, mv entity.CostMovement) {
	m := period.MonthOf(mv.Period, c.cfg.Location)
	if !m.IsOpen(c.now()) && !c.cfg.InvalidateClosed {
		logger.Debug(ctx, "movement posted into closed period, cache kept",
			"item_id", mv.ItemID,
			"period", m.Key(),
		)
		return
	}
	c.invalidate(ctx, costing.NewCacheKey(mv.ItemID, m), "posting")
}

func (c *Calculator) invalidate(ctx context.Context, key costing.CacheKey, reason string) {
	c.epoch.Add(1)
	c.group.Forget(key.String())
	if err := c.cache.Invalidate(ctx, key); err != nil {
		c.observer.CacheError("invalidate")
		logger.Warn(ctx, "average cache invalidation failed", "key", key.String(), "error", err)
		return
	}
	c.observer.Invalidated(reason)
	logger.Debug(ctx, "average cache invalidated", "item_id", key.ItemID, "reason", reason)
}

func (c *Calculator) average(ctx context.Context, itemID string, m period.Month) (costing.PeriodicAverageRecord, error) {
	key := costing.NewCacheKey(itemID, m)

	rec, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.observer.CacheError("get")
		logger.Warn(ctx, "average cache read failed, computing", "key", key.String(), "error", err)
	case ok:
		c.observer.CacheHit()
		return rec, nil
	}
	c.observer.CacheMiss()

	ch := c.group.DoChan(key.String(), func() (any, error) {
		// Detached from the first caller so one cancelled request does not fail the others.
		return c.computeAndStore(context.WithoutCancel(ctx), itemID, m)
	})
	select {
	case <-ctx.Done():
		return costing.PeriodicAverageRecord{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return costing.PeriodicAverageRecord{}, res.Err
		}
		return res.Val.(costing.PeriodicAverageRecord), nil
	}
}

func (c *Calculator) computeAndStore(ctx context.Context, itemID string, m period.Month) (costing.PeriodicAverageRecord, error) {
	epoch := c.epoch.Load()
	started := time.Now()
	rec, err := c.compute(ctx, itemID, m)
	c.observer.ObserveCompute(time.Since(started))
	if err != nil {
		return costing.PeriodicAverageRecord{}, err
	}

	ttl := c.cfg.ClosedTTL
	if m.IsOpen(c.now()) {
		ttl = c.cfg.OpenTTL
	}
	c.store(ctx, rec, ttl, epoch)

	logger.Debug(ctx, "period average computed",
		"item_id", itemID,
		"period", m.Key(),
		"average", rec.AverageUnitCost.String(),
		"receipts", rec.ReceiptCount,
	)
	return rec, nil
}

// store writes rec unless an invalidation overlapped its computation. An
// invalidation that lands between the epoch check and the write is caught by
// the second check, which drops the entry again.
func (c *Calculator) store(ctx context.Context, rec costing.PeriodicAverageRecord, ttl time.Duration, epoch uint64) {
	key := rec.CacheKey()
	if c.epoch.Load() != epoch {
		logger.Debug(ctx, "cache invalidated during computation, result not stored",
			"item_id", rec.ItemID,
			"period", rec.Period.Key(),
		)
		return
	}
	if err := c.cache.Put(ctx, rec, ttl); err != nil {
		c.observer.CacheError("put")
		logger.Warn(ctx, "average cache write failed", "key", key.String(), "error", err)
		return
	}
	if c.epoch.Load() == epoch {
		return
	}
	if err := c.cache.Invalidate(ctx, key); err != nil {
		c.observer.CacheError("invalidate")
		logger.Warn(ctx, "stale average could not be dropped", "key", key.String(), "error", err)
		return
	}
	c.observer.Invalidated("overlap")
	logger.Debug(ctx, "cache invalidated while storing, entry dropped", "item_id", rec.ItemID, "period", rec.Period.Key())
}

// compute sums quantity and value over the month's receipts. Totals are exact;
// only the final division is rounded.
func (c *Calculator) compute(ctx context.Context, itemID string, m period.Month) (costing.PeriodicAverageRecord, error) {
	receipts, err := c.receipts.ListReceipts(ctx, itemID, m.Start, m.End)
	if err != nil {
		return costing.PeriodicAverageRecord{}, fmt.Errorf("list receipts: %w", err)
	}

	totalQty := types.Zero()
	totalValue := types.Zero()
	for _, r := range receipts {
		totalQty = totalQty.Add(r.Quantity)
		totalValue = totalValue.Add(r.Value())
	}
	if !totalQty.IsPositive() {
		return costing.PeriodicAverageRecord{}, apperror.NewNoData(itemID, m.Key())
	}

	return costing.PeriodicAverageRecord{
		ItemID:          itemID,
		Period:          m,
		AverageUnitCost: types.DivCost(totalValue, totalQty, c.cfg.Scale),
		TotalQuantity:   totalQty,
		TotalValue:      totalValue,
		ReceiptCount:    len(receipts),
		ComputedAt:      c.now().UTC(),
	}, nil
}
