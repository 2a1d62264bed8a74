// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the intake pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the intake pipeline's Prometheus collectors.
type Metrics struct {
	IntakesProcessed   *prometheus.CounterVec
	IntakeFailures     *prometheus.CounterVec
	AnalysisDuration   prometheus.Histogram
	AnalysisAttempts   prometheus.Histogram
	DecisionsSubmitted *prometheus.CounterVec
	PublishFailures    prometheus.Counter
}

// NewMetrics creates and registers the intake collectors on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IntakesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm_intake",
			Name:      "intakes_processed_total",
			Help:      "Inbound emails processed, by resulting status.",
		}, []string{"status"}),
		IntakeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm_intake",
			Name:      "intake_failures_total",
			Help:      "Inbound emails that failed processing, by stage.",
		}, []string{"stage"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crm_intake",
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of one AI analysis, including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		AnalysisAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crm_intake",
			Name:      "analysis_attempts",
			Help:      "Completion calls made per analysis.",
			Buckets:   []float64{1, 2, 3, 4},
		}),
		DecisionsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm_intake",
			Name:      "decisions_submitted_total",
			Help:      "Operator decisions submitted, by outcome.",
		}, []string{"outcome"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crm_intake",
			Name:      "event_publish_failures_total",
			Help:      "Events that could not be published.",
		}),
	}

	reg.MustRegister(
		m.IntakesProcessed,
		m.IntakeFailures,
		m.AnalysisDuration,
		m.AnalysisAttempts,
		m.DecisionsSubmitted,
		m.PublishFailures,
	)
	return m
}

// NewTestMetrics creates unregistered-safe metrics for tests.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
