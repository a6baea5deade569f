// Package metrics holds the Prometheus collectors shared by the API and the scheduler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wardflow",
		Subsystem: "scheduler",
		Name:      "cycles_total",
		Help:      "Orchestration cycles broken down by domain and result (ok, error, skipped).",
	}, []string{"domain", "result"})

	cycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wardflow",
		Subsystem: "scheduler",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of orchestration cycles per domain.",
		Buckets: []float64{
			0.005, 0.01, 0.025, 0.05,
			0.1, 0.25, 0.5,
			1, 2.5, 5, 10,
		},
	}, []string{"domain"})

	itemsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wardflow",
		Subsystem: "workflow",
		Name:      "items_created_total",
		Help:      "Workflow items created broken down by kind and origin.",
	}, []string{"kind", "origin"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wardflow",
		Subsystem: "workflow",
		Name:      "transitions_total",
		Help:      "Workflow item transitions broken down by kind and resulting status.",
	}, []string{"kind", "status"})

	lockConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wardflow",
		Subsystem: "locks",
		Name:      "conflicts_total",
		Help:      "Resolution lock waits that timed out or lost an optimistic write, by operation.",
	}, []string{"operation"})

	coverageGaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wardflow",
		Subsystem: "generator",
		Name:      "coverage_gaps_total",
		Help:      "Breaches that produced no workflow item, by domain.",
	}, []string{"domain"})
)

// ObserveCycle records a finished cycle.
func ObserveCycle(domain, result string, elapsed time.Duration) {
	cyclesTotal.WithLabelValues(domain, result).Inc()

	if result != "skipped" {
		cycleDuration.WithLabelValues(domain).Observe(elapsed.Seconds())
	}
}

func ItemCreated(kind, origin string) {
	itemsCreated.WithLabelValues(kind, origin).Inc()
}

func Transition(kind, status string) {
	transitionsTotal.WithLabelValues(kind, status).Inc()
}

func LockConflict(operation string) {
	lockConflicts.WithLabelValues(operation).Inc()
}

func CoverageGap(domain string) {
	coverageGaps.WithLabelValues(domain).Inc()
}
