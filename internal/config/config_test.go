package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carmen/internal/domain/costing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/carmen")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, costing.MethodFIFO, cfg.Method())
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, int32(6), cfg.CostScale)
	assert.Equal(t, CacheBackendMemory, cfg.CacheBackend)
	assert.Equal(t, 5*time.Minute, cfg.OpenPeriodTTL)
	assert.Zero(t, cfg.ClosedPeriodTTL)
	assert.False(t, cfg.InvalidateClosed)
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COSTING_DEFAULT_METHOD", "periodic-average")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CACHE_CLOSED_PERIOD_TTL", "24h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, costing.MethodPeriodicAverage, cfg.Method())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka().Brokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, 24*time.Hour, cfg.ClosedPeriodTTL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() Config {
		return Config{
			DefaultMethod: "FIFO",
			Timezone:      "UTC",
			CostScale:     6,
			CacheBackend:  CacheBackendMemory,
		}
	}

	cases := map[string]func(c *Config){
		"unknown method":   func(c *Config) { c.DefaultMethod = "LIFO" },
		"unknown timezone": func(c *Config) { c.Timezone = "Mars/Olympus" },
		"negative scale":   func(c *Config) { c.CostScale = -1 },
		"unknown backend":  func(c *Config) { c.CacheBackend = "memcached" },
		"redis no addr": func(c *Config) {
			c.CacheBackend = CacheBackendRedis
			c.RedisAddr = ""
		},
		"negative ttl": func(c *Config) { c.OpenPeriodTTL = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	ok := base()
	assert.NoError(t, ok.Validate())
}
