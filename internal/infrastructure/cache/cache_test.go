package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carmen/internal/core/apperror"
	"carmen/internal/core/entity"
	"carmen/internal/core/period"
	"carmen/internal/core/types"
	"carmen/internal/domain/costing"
)

func march(itemID string) costing.PeriodicAverageRecord {
	m := period.MonthOf(time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC), time.UTC)
	return costing.PeriodicAverageRecord{
		ItemID:          itemID,
		Period:          m,
		AverageUnitCost: types.MustMoney("2.333333"),
		TotalQuantity:   types.MustQuantity("15"),
		TotalValue:      types.MustMoney("35"),
		ReceiptCount:    2,
		ComputedAt:      time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC),
	}
}

func april(itemID string) costing.PeriodicAverageRecord {
	rec := march(itemID)
	rec.Period = rec.Period.Previous()
	return rec
}

func newRedisCache(t *testing.T) (*RedisAverageCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisAverageCache(client, "test:", DefaultBreakerConfig("average-cache")), mr
}

func TestMemoryAverageCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAverageCache(0)
	rec := march("SKU-100")

	_, ok, err := c.Get(ctx, rec.CacheKey())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, rec, 0))
	got, ok, err := c.Get(ctx, rec.CacheKey())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.AverageUnitCost.Equal(rec.AverageUnitCost))

	require.NoError(t, c.Invalidate(ctx, rec.CacheKey()))
	_, ok, _ = c.Get(ctx, rec.CacheKey())
	assert.False(t, ok)
}

func TestMemoryAverageCacheExpiresOpenEntries(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAverageCache(0)
	rec := march("SKU-100")

	require.NoError(t, c.Put(ctx, rec, 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	_, ok, err := c.Get(ctx, rec.CacheKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryAverageCacheInvalidateItem(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAverageCache(0)

	require.NoError(t, c.Put(ctx, march("SKU-1"), 0))
	require.NoError(t, c.Put(ctx, april("SKU-1"), 0))
	require.NoError(t, c.Put(ctx, march("SKU-10"), 0))

	require.NoError(t, c.InvalidateItem(ctx, "SKU-1"))
	assert.Equal(t, 1, c.Len())

	_, ok, _ := c.Get(ctx, march("SKU-10").CacheKey())
	assert.True(t, ok, "prefix-sharing item must survive")
}

func TestMemoryAverageCacheInvalidateItemMatchesWholeID(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAverageCache(0)

	require.NoError(t, c.Put(ctx, march("A"), 0))
	require.NoError(t, c.Put(ctx, march("A|B"), 0))
	require.NoError(t, c.Put(ctx, april("A|B"), 0))

	require.NoError(t, c.InvalidateItem(ctx, "A"))
	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, march("A").CacheKey())
	assert.False(t, ok)

	require.NoError(t, c.InvalidateItem(ctx, "A|B"))
	assert.Equal(t, 0, c.Len())
}

func TestRedisAverageCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	rec := march("SKU-100")

	_, ok, err := c.Get(ctx, rec.CacheKey())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, rec, time.Minute))
	got, ok, err := c.Get(ctx, rec.CacheKey())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.AverageUnitCost.Equal(rec.AverageUnitCost))
	assert.True(t, got.TotalValue.Equal(rec.TotalValue))
	assert.Equal(t, rec.Period.Key(), got.Period.Key())

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, rec.CacheKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisAverageCacheInvalidateItem(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCache(t)

	require.NoError(t, c.Put(ctx, march("SKU-1"), 0))
	require.NoError(t, c.Put(ctx, april("SKU-1"), 0))
	require.NoError(t, c.Put(ctx, march("SKU-2"), 0))

	require.NoError(t, c.InvalidateItem(ctx, "SKU-1"))

	_, ok, _ := c.Get(ctx, march("SKU-1").CacheKey())
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, april("SKU-1").CacheKey())
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, march("SKU-2").CacheKey())
	assert.True(t, ok)
}

func TestRedisAverageCacheBreakerOpens(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	mr.Close()

	for i := 0; i < 5; i++ {
		_, _, err := c.Get(ctx, march("SKU-1").CacheKey())
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.BreakerState())

	_, _, err := c.Get(ctx, march("SKU-1").CacheKey())
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeUnavailable, appErr.Code)

	assert.True(t, apperror.HasCode(c.Ping(ctx), apperror.CodeUnavailable))
}

func TestRedisAverageCachePing(t *testing.T) {
	c, _ := newRedisCache(t)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestMetricsCountEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()
	m.Invalidated("posting")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.hits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invalidations.WithLabelValues("posting")))

	// Registering twice reuses the existing collectors.
	again, err := NewMetrics(reg)
	require.NoError(t, err)
	again.CacheHit()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.hits))
}

type capture struct {
	mu   sync.Mutex
	seen []entity.CostMovement
}

func (c *capture) OnMovementPosted(_ context.Context, m entity.CostMovement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, m)
}

func TestNotifyListenerHandle(t *testing.T) {
	n := NewNotifyListener(nil, "")
	assert.Equal(t, DefaultNotifyChannel, n.channel)

	got := &capture{}
	n.Subscribe(got)
	n.Subscribe(postingPanics{})

	n.handle(context.Background(), `{"itemId":"SKU-100","recordType":"receipt","postedAt":"2024-03-05T00:00:00Z"}`)
	n.handle(context.Background(), `not json`)
	n.handle(context.Background(), `{"recordType":"receipt"}`)

	require.Len(t, got.seen, 1)
	assert.Equal(t, "SKU-100", got.seen[0].ItemID)
	assert.Equal(t, entity.RecordTypeReceipt, got.seen[0].RecordType)
	assert.Equal(t, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC), got.seen[0].Period)
}

type postingPanics struct{}

func (postingPanics) OnMovementPosted(context.Context, entity.CostMovement) { panic("boom") }
