// Package periodic computes and caches the weighted-average unit cost of an
// item per calendar month.
package periodic

import (
	"context"
	"time"

	"carmen/internal/domain/costing"
)

// Cache stores computed period averages keyed by (item, period start, period end).
//
// Implementations must be safe for concurrent use. A ttl of zero means the entry
// never expires.
type Cache interface {
	Get(ctx context.Context, key costing.CacheKey) (costing.PeriodicAverageRecord, bool, error)
	Put(ctx context.Context, rec costing.PeriodicAverageRecord, ttl time.Duration) error
	Invalidate(ctx context.Context, key costing.CacheKey) error
	InvalidateItem(ctx context.Context, itemID string) error
}

// Observer receives cache and computation events. Prometheus metrics implement it.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheError(op string)
	Invalidated(reason string)
	ObserveCompute(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) CacheHit()                    {}
func (nopObserver) CacheMiss()                   {}
func (nopObserver) CacheError(string)            {}
func (nopObserver) Invalidated(string)           {}
func (nopObserver) ObserveCompute(time.Duration) {}

// NoCache computes every request. Useful for reconciliation runs.
type NoCache struct{}

func (NoCache) Get(context.Context, costing.CacheKey) (costing.PeriodicAverageRecord, bool, error) {
	return costing.PeriodicAverageRecord{}, false, nil
}
func (NoCache) Put(context.Context, costing.PeriodicAverageRecord, time.Duration) error { return nil }
func (NoCache) Invalidate(context.Context, costing.CacheKey) error                      { return nil }
func (NoCache) InvalidateItem(context.Context, string) error                            { return nil }
