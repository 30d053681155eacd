package cache

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"carmen/internal/core/apperror"
	"carmen/pkg/logger"
)

// BreakerConfig configures the circuit breaker guarding a remote cache.
type BreakerConfig struct {
	Name                string
	MaxRequests         uint32        // requests allowed in half-open state
	Interval            time.Duration // window after which failure counts reset
	Timeout             time.Duration // open -> half-open delay
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig trips after five consecutive failures and probes again after ten seconds.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             10 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// breaker wraps gobreaker with state-change logging.
type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func newBreaker(cfg BreakerConfig) *breaker {
	return &breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})}
}

func (b *breaker) execute(fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperror.NewUnavailable("average cache unavailable").
			WithDetail("breaker", b.cb.Name()).
			WithCause(err)
	}
	return res, err
}

func (b *breaker) state() gobreaker.State {
	return b.cb.State()
}
