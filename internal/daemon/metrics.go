package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ai-service-shaped ambient counters and histograms the
// daemon exposes over its health server's /metrics route.
type Metrics struct {
	registry *prometheus.Registry

	pollDuration    prometheus.Histogram
	dispatchedTotal prometheus.Counter
	skippedTotal    prometheus.Counter
	leaseExpired    prometheus.Counter
	platformLimit   prometheus.Counter
}

// NewMetrics registers every instrument into a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		registry: reg,
		pollDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "aof",
			Subsystem: "scheduler",
			Name:      "poll_duration_seconds",
			Help:      "Duration of each reconciliation poll tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		dispatchedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "aof", Subsystem: "scheduler", Name: "dispatched_total",
			Help: "Tasks successfully dispatched to an executor.",
		}),
		skippedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "aof", Subsystem: "scheduler", Name: "skipped_total",
			Help: "Candidates skipped in a poll tick (unresolved deps, lease active, etc).",
		}),
		leaseExpired: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "aof", Subsystem: "lease", Name: "expired_total",
			Help: "Leases recovered after expiry.",
		}),
		platformLimit: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "aof", Subsystem: "scheduler", Name: "platform_limit_total",
			Help: "Ticks where the executor reported it was at capacity.",
		}),
	}
}

// Registry exposes the underlying prometheus.Registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObservePoll records one scheduler tick's outcome against the metrics set.
func (m *Metrics) ObservePoll(durationSeconds float64, dispatched, skipped, leaseExpired, platformLimit int) {
	m.pollDuration.Observe(durationSeconds)
	m.dispatchedTotal.Add(float64(dispatched))
	m.skippedTotal.Add(float64(skipped))
	m.leaseExpired.Add(float64(leaseExpired))
	m.platformLimit.Add(float64(platformLimit))
}
