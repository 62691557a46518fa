package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// IdentityMetrics exposes Prometheus collectors for identity operations and
// schema initialization progress.
type IdentityMetrics struct {
	Operations   *prometheus.CounterVec
	InitState    prometheus.Gauge
	InitDuration prometheus.Histogram
}

// NewIdentityMetrics constructs and registers the identity collectors.
func NewIdentityMetrics(reg prometheus.Registerer) *IdentityMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &IdentityMetrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "operations_total",
			Help:      "Identity service operations partitioned by provider, operation, and outcome.",
		}, []string{"provider", "operation", "outcome"}),
		InitState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "identity",
			Subsystem: "schema_init",
			Name:      "state",
			Help:      "Current store initializer state (0 not started, 1 ensuring database, 2 ensuring schema, 3 migrating, 4 committed, 5 faulted, 6 canceled).",
		}),
		InitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "identity",
			Subsystem: "schema_init",
			Name:      "duration_seconds",
			Help:      "Wall time spent bringing the schema to the current version.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
