// Package metrics exposes the Prometheus instrumentation for the assessment
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsStarted counts orchestration sessions by outcome.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skywatch",
		Subsystem: "orchestrator",
		Name:      "sessions_started_total",
		Help:      "Orchestration sessions started",
	})

	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skywatch",
		Subsystem: "orchestrator",
		Name:      "sessions_finished_total",
		Help:      "Orchestration sessions finished, by terminal status",
	}, []string{"status"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "skywatch",
		Subsystem: "orchestrator",
		Name:      "active_sessions",
		Help:      "Sessions currently in progress",
	})

	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skywatch",
		Subsystem: "orchestrator",
		Name:      "session_duration_seconds",
		Help:      "End-to-end orchestration duration",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
	})

	// EventsAssessed counts per-event pipeline outcomes.
	EventsAssessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skywatch",
		Subsystem: "pipeline",
		Name:      "events_assessed_total",
		Help:      "Events run through the per-event pipeline, by outcome",
	}, []string{"outcome"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skywatch",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each pipeline stage",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	CorrelationsFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skywatch",
		Subsystem: "correlation",
		Name:      "correlations_per_session",
		Help:      "Significant correlations retained per session",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})

	AIFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skywatch",
		Subsystem: "ai",
		Name:      "fallbacks_total",
		Help:      "AI collaborator failures absorbed by documented fallbacks",
	}, []string{"component"})
)

// Handler serves the default registry, mounted on the metrics listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
