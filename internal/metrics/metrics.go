// Package metrics exposes Prometheus instrumentation for predictions, engine handles and training runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fmrank_predict_duration_seconds",
			Help:    "Duration of prediction requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	PredictRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmrank_predict_requests_total",
			Help: "Total number of prediction requests",
		},
		[]string{"outcome"}, // "ok", "error"
	)

	PredictErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmrank_predict_errors_total",
			Help: "Total number of failed prediction requests by pipeline stage",
		},
		[]string{"stage"},
	)

	PredictCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fmrank_predict_candidates",
			Help:    "Number of candidate tasks scored per request",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1 .. 16384
		},
	)

	EngineHandles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fmrank_engine_handles",
			Help: "Current number of initialized engine handles",
		},
	)

	ModelReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmrank_model_reloads_total",
			Help: "Total number of model hot reloads",
		},
		[]string{"outcome"},
	)

	TrainerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmrank_trainer_runs_total",
			Help: "Total number of pass-through engine runs",
		},
		[]string{"mode", "outcome"},
	)
)

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// RecordPredict records one prediction. stage is the failed stage, ignored when err is nil.
func RecordPredict(took time.Duration, candidates int, stage string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
		PredictErrors.WithLabelValues(stage).Inc()
	}
	PredictRequests.WithLabelValues(outcome).Inc()
	PredictDuration.WithLabelValues(outcome).Observe(took.Seconds())
	PredictCandidates.Observe(float64(candidates))
}

// RecordReload records a model reload attempt.
func RecordReload(err error) {
	if err != nil {
		ModelReloads.WithLabelValues(OutcomeError).Inc()
		return
	}
	ModelReloads.WithLabelValues(OutcomeOK).Inc()
}

// RecordTrainerRun records one pass-through run.
func RecordTrainerRun(mode string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	TrainerRuns.WithLabelValues(mode, outcome).Inc()
}
