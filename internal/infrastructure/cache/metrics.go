package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"carmen/internal/domain/costing/periodic"
)

// Metrics exports period average cache activity to Prometheus.
type Metrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	errors        *prometheus.CounterVec
	invalidations *prometheus.CounterVec
	compute       prometheus.Histogram
}

var _ periodic.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil). Collectors that are already
// registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carmen_average_cache_hits_total",
			Help: "Number of period average cache hits.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carmen_average_cache_miss_total",
			Help: "Number of period average cache misses.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carmen_average_cache_errors_total",
			Help: "Cache backend failures by operation.",
		}, []string{"op"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carmen_average_cache_invalidations_total",
			Help: "Cache invalidations by reason.",
		}, []string{"reason"}),
		compute: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "carmen_average_compute_duration_seconds",
			Help:    "Duration of period average computations.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	var err error
	if m.hits, err = register(reg, m.hits); err != nil {
		return nil, err
	}
	if m.misses, err = register(reg, m.misses); err != nil {
		return nil, err
	}
	if m.errors, err = register(reg, m.errors); err != nil {
		return nil, err
	}
	if m.invalidations, err = register(reg, m.invalidations); err != nil {
		return nil, err
	}
	if m.compute, err = register(reg, m.compute); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register cache metric: %w", err)
	}
	return c, nil
}

func (m *Metrics) CacheHit()                      { m.hits.Inc() }
func (m *Metrics) CacheMiss()                     { m.misses.Inc() }
func (m *Metrics) CacheError(op string)           { m.errors.WithLabelValues(op).Inc() }
func (m *Metrics) Invalidated(reason string)      { m.invalidations.WithLabelValues(reason).Inc() }
func (m *Metrics) ObserveCompute(d time.Duration) { m.compute.Observe(d.Seconds()) }
