// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"carmen/internal/domain/costing"
	"carmen/internal/infrastructure/events"
)

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config holds runtime configuration for the server, worker and CLI.
type Config struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	AppPort         string        `envconfig:"APP_PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"30s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`

	// AuditCompressBytes is the audit payload size above which changes are stored zstd-compressed.
	AuditCompressBytes int `envconfig:"AUDIT_COMPRESS_BYTES" default:"4096"`

	DefaultMethod string `envconfig:"COSTING_DEFAULT_METHOD" default:"FIFO"`
	Timezone      string `envconfig:"COSTING_TIMEZONE" default:"UTC"`
	CostScale     int32  `envconfig:"COSTING_COST_SCALE" default:"6"`
	// InvalidateClosed lets back-dated postings evict closed-period averages.
	InvalidateClosed bool `envconfig:"COSTING_INVALIDATE_CLOSED" default:"false"`

	CacheBackend    string        `envconfig:"CACHE_BACKEND" default:"memory"`
	OpenPeriodTTL   time.Duration `envconfig:"CACHE_OPEN_PERIOD_TTL" default:"5m"`
	ClosedPeriodTTL time.Duration `envconfig:"CACHE_CLOSED_PERIOD_TTL" default:"0"`
	CacheCapacity   uint64        `envconfig:"CACHE_CAPACITY" default:"0"`

	RedisAddr      string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"carmen:"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"carmen.cost-movements"`
	KafkaGroupID string   `envconfig:"KAFKA_GROUP_ID" default:"carmen-cache-invalidator"`

	NotifyChannel string `envconfig:"PG_NOTIFY_CHANNEL" default:"cost_movement_posted"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	if _, err := costing.ParseMethod(c.DefaultMethod); err != nil {
		return fmt.Errorf("COSTING_DEFAULT_METHOD: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("COSTING_TIMEZONE: %w", err)
	}
	if c.CostScale < 0 || c.CostScale > 12 {
		return fmt.Errorf("COSTING_COST_SCALE must be within 0..12, got %d", c.CostScale)
	}
	switch c.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", CacheBackendMemory, CacheBackendRedis, c.CacheBackend)
	}
	if c.OpenPeriodTTL < 0 || c.ClosedPeriodTTL < 0 {
		return errors.New("cache TTLs must not be negative")
	}
	return nil
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

// Method returns the parsed default costing method.
func (c *Config) Method() costing.Method {
	m, err := costing.ParseMethod(c.DefaultMethod)
	if err != nil {
		return costing.DefaultMethod
	}
	return m
}

// Location returns the costing time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// KafkaEnabled reports whether brokers are configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Kafka returns the event stream settings.
func (c *Config) Kafka() events.Config {
	return events.Config{
		Brokers: c.KafkaBrokers,
		Topic:   c.KafkaTopic,
		GroupID: c.KafkaGroupID,
	}
}
