package experiment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("variantgoat.experiment")

var (
	// testsCreatedTotal counts created tests by type
	testsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "variantgoat_tests_created_total",
		Help: "Total tests created by test type",
	}, []string{"test_type"})

	// transitionsTotal counts lifecycle operations by outcome
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "variantgoat_transitions_total",
		Help: "Total lifecycle operations by operation and result",
	}, []string{"op", "result"})

	// conflictsTotal counts rejected status-guarded updates
	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "variantgoat_conflicts_total",
		Help: "Total lifecycle conflicts by operation",
	}, []string{"op"})

	// resultsRecordedTotal counts ingested daily results
	resultsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "variantgoat_results_recorded_total",
		Help: "Total daily results recorded",
	})

	// significanceTotal counts verdicts by method and outcome
	significanceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "variantgoat_significance_evaluations_total",
		Help: "Total significance evaluations by method and outcome",
	}, []string{"method", "outcome"})

	// significanceDuration tracks evaluation latency
	significanceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "variantgoat_significance_duration_seconds",
		Help:    "Significance evaluation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	// sweepDeclaredTotal counts winners declared by the sweep
	sweepDeclaredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "variantgoat_sweep_declared_total",
		Help: "Total winners declared automatically by the sweep",
	})
)
