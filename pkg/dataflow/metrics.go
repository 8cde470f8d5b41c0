package dataflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operatorUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "difflow_operator_updates_total",
		Help: "Total number of updates processed by stateful operators, labelled by operator kind.",
	}, []string{"kind"})

	scopeRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "difflow_scope_rounds_total",
		Help: "Total number of times processed per scope.",
	}, []string{"scope"})

	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "difflow_step_duration_seconds",
		Help:    "Time spent processing a single root time.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	pendingTimes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "difflow_pending_times",
		Help: "Number of root times with pending work after the last step.",
	})
)

func countUpdates(kind string, n int) {
	if n > 0 {
		operatorUpdates.WithLabelValues(kind).Add(float64(n))
	}
}
