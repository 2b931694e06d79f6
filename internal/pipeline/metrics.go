package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the query-level Prometheus metrics. Registration goes through
// promauto.With(reg) so tests can pass an isolated registry.
type metrics struct {
	// queryTotal counts processed queries by outcome.
	queryTotal *prometheus.CounterVec

	// rejectionsTotal counts gate rejections by reason.
	rejectionsTotal *prometheus.CounterVec

	// queryDuration records end-to-end query latency by outcome.
	queryDuration *prometheus.HistogramVec

	// auditFailures counts records the trail failed to persist.
	auditFailures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		queryTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raggate",
			Subsystem: "query",
			Name:      "total",
			Help:      "Total number of processed queries, partitioned by outcome.",
		}, []string{"outcome"}),

		rejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raggate",
			Subsystem: "query",
			Name:      "rejections_total",
			Help:      "Queries rejected by the security gate, partitioned by reason.",
		}, []string{"reason"}),

		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raggate",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a query from gate check to audit.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"outcome"}),

		auditFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raggate",
			Subsystem: "audit",
			Name:      "failures_total",
			Help:      "Audit records that could not be persisted.",
		}),
	}
}
