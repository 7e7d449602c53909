// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subgen",
		Name:      "submissions_total",
		Help:      "Upload submissions by tracker decision",
	}, []string{"decision"})

	pipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subgen",
		Name:      "pipeline_runs_total",
		Help:      "Finished pipeline runs by outcome",
	}, []string{"outcome"})

	pipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "subgen",
		Name:      "pipeline_duration_seconds",
		Help:      "Wall time of pipeline runs",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600, 7200},
	}, []string{"outcome"})

	// TranslationEntryFailures counts subtitle entries kept untranslated.
	TranslationEntryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "subgen",
		Name:      "translation_entry_failures_total",
		Help:      "Subtitle entries left untranslated after a chat failure",
	})

	// CleanupErrors counts artifact removals that failed.
	CleanupErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "subgen",
		Name:      "cleanup_errors_total",
		Help:      "Failed artifact removals during reclaim or sweep",
	})

	// JobsInFlight is the number of pipeline runs currently executing.
	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "subgen",
		Name:      "jobs_in_flight",
		Help:      "Pipeline runs currently executing",
	})
)

// RecordSubmission counts one tracker decision.
func RecordSubmission(decision string) {
	submissionsTotal.WithLabelValues(normalizeDecision(decision)).Inc()
}

// RecordPipelineRun records a finished run. outcome is "completed",
// "failed" or "timeout".
func RecordPipelineRun(outcome string, seconds float64) {
	outcome = normalizeOutcome(outcome)
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
	pipelineDuration.WithLabelValues(outcome).Observe(seconds)
}

func normalizeDecision(decision string) string {
	switch decision {
	case "new_job", "in_progress", "ready_for_download", "failed":
		return decision
	default:
		return "unknown"
	}
}

func normalizeOutcome(outcome string) string {
	switch outcome {
	case "completed", "failed", "timeout", "canceled":
		return outcome
	default:
		return "unknown"
	}
}
