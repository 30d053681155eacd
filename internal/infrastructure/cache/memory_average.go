// Package cache provides the period average cache backends and push-based
// invalidation via PostgreSQL LISTEN/NOTIFY.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"carmen/internal/domain/costing"
	"carmen/internal/domain/costing/periodic"
)

// MemoryAverageCache is a process-local average cache backed by ttlcache.
type MemoryAverageCache struct {
	items *ttlcache.Cache[string, costing.PeriodicAverageRecord]
}

var _ periodic.Cache = (*MemoryAverageCache)(nil)

// NewMemoryAverageCache creates a cache holding at most capacity entries
// (least recently used are evicted). capacity <= 0 means unbounded.
func NewMemoryAverageCache(capacity uint64) *MemoryAverageCache {
	opts := []ttlcache.Option[string, costing.PeriodicAverageRecord]{
		ttlcache.WithDisableTouchOnHit[string, costing.PeriodicAverageRecord](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, costing.PeriodicAverageRecord](capacity))
	}
	return &MemoryAverageCache{items: ttlcache.New(opts...)}
}

// Start runs the expired-item cleaner until Stop is called.
func (c *MemoryAverageCache) Start() {
	go c.items.Start()
}

// Stop halts the cleaner.
func (c *MemoryAverageCache) Stop() {
	c.items.Stop()
}

// Len returns the number of live entries.
func (c *MemoryAverageCache) Len() int {
	return c.items.Len()
}

func (c *MemoryAverageCache) Get(_ context.Context, key costing.CacheKey) (costing.PeriodicAverageRecord, bool, error) {
	item := c.items.Get(key.String())
	if item == nil {
		return costing.PeriodicAverageRecord{}, false, nil
	}
	return item.Value(), true, nil
}

func (c *MemoryAverageCache) Put(_ context.Context, rec costing.PeriodicAverageRecord, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	c.items.Set(rec.CacheKey().String(), rec, ttl)
	return nil
}

func (c *MemoryAverageCache) Invalidate(_ context.Context, key costing.CacheKey) error {
	c.items.Delete(key.String())
	return nil
}

func (c *MemoryAverageCache) InvalidateItem(_ context.Context, itemID string) error {
	for _, k := range c.items.Keys() {
		if keyItem(k) == itemID {
			c.items.Delete(k)
		}
	}
	return nil
}

// keyItem returns the item part of an "item|start|end" key. Item ids may
// themselves contain the separator, so the key is split from the right.
func keyItem(key string) string {
	for n := 0; n < 2; n++ {
		i := strings.LastIndexByte(key, '|')
		if i < 0 {
			return ""
		}
		key = key[:i]
	}
	return key
}
