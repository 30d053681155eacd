package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"carmen/internal/domain/costing"
	"carmen/internal/domain/costing/periodic"
)

// RedisAverageCache shares period averages across server and worker processes.
//
// Records are stored as JSON under "<prefix>avg:<item>|<start>|<end>". Each item
// also owns a set of its record keys so InvalidateItem needs no SCAN.
// Calls go through a circuit breaker; while it is open every call fails fast
// and the calculator falls back to computing from the register.
type RedisAverageCache struct {
	client  redis.UniversalClient
	prefix  string
	breaker *breaker
}

var _ periodic.Cache = (*RedisAverageCache)(nil)

// NewRedisAverageCache creates a Redis-backed cache.
func NewRedisAverageCache(client redis.UniversalClient, prefix string, cfg BreakerConfig) *RedisAverageCache {
	return &RedisAverageCache{
		client:  client,
		prefix:  prefix,
		breaker: newBreaker(cfg),
	}
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// BreakerState reports the circuit breaker state for health checks.
func (c *RedisAverageCache) BreakerState() gobreaker.State {
	return c.breaker.state()
}

// Ping checks the connection; an open breaker reports unavailable without a round trip.
func (c *RedisAverageCache) Ping(ctx context.Context) error {
	_, err := c.breaker.execute(func() (any, error) {
		return nil, c.client.Ping(ctx).Err()
	})
	return err
}

func (c *RedisAverageCache) recordKey(key costing.CacheKey) string {
	return c.prefix + "avg:" + key.String()
}

func (c *RedisAverageCache) itemKey(itemID string) string {
	return c.prefix + "avg-item:" + itemID
}

func (c *RedisAverageCache) Get(ctx context.Context, key costing.CacheKey) (costing.PeriodicAverageRecord, bool, error) {
	res, err := c.breaker.execute(func() (any, error) {
		raw, err := c.client.Get(ctx, c.recordKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return raw, err
	})
	if err != nil {
		return costing.PeriodicAverageRecord{}, false, fmt.Errorf("redis get: %w", err)
	}
	raw, _ := res.([]byte)
	if raw == nil {
		return costing.PeriodicAverageRecord{}, false, nil
	}

	var rec costing.PeriodicAverageRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return costing.PeriodicAverageRecord{}, false, fmt.Errorf("decode cached average: %w", err)
	}
	return rec, true, nil
}

func (c *RedisAverageCache) Put(ctx context.Context, rec costing.PeriodicAverageRecord, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode average: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	key := c.recordKey(rec.CacheKey())

	_, err = c.breaker.execute(func() (any, error) {
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, ttl)
			pipe.SAdd(ctx, c.itemKey(rec.ItemID), key)
			return nil
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

func (c *RedisAverageCache) Invalidate(ctx context.Context, key costing.CacheKey) error {
	rk := c.recordKey(key)
	_, err := c.breaker.execute(func() (any, error) {
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, rk)
			pipe.SRem(ctx, c.itemKey(key.ItemID), rk)
			return nil
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

func (c *RedisAverageCache) InvalidateItem(ctx context.Context, itemID string) error {
	setKey := c.itemKey(itemID)
	_, err := c.breaker.execute(func() (any, error) {
		keys, err := c.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return nil, err
		}
		return nil, c.client.Del(ctx, append(keys, setKey)...).Err()
	})
	if err != nil {
		return fmt.Errorf("redis invalidate item: %w", err)
	}
	return nil
}
