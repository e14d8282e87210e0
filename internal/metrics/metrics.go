// Package metrics holds the pipeline's Prometheus collectors. They are registered
// on a private registry that is pushed to a Pushgateway when a command finishes.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	Registry = prometheus.NewRegistry()

	FilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twcs_files_total",
			Help: "Count of input files handled per stage",
		},
		[]string{"stage", "status"},
	)

	PreprocessRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "twcs_preprocess_rows",
			Help: "Rows remaining after each preprocessing step",
		},
		[]string{"step"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twcs_stage_duration_seconds",
			Help:    "Wall time of a pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"stage"},
	)

	NLICacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twcs_nli_cache_total",
			Help: "NLI cache lookups by result",
		},
		[]string{"result"},
	)

	NLIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twcs_nli_requests_total",
			Help: "Inference requests sent to the NLI backend",
		},
		[]string{"status"},
	)

	NLIRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "twcs_nli_request_duration_seconds",
			Help:    "Latency of NLI inference requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twcs_events_total",
			Help: "Events written to event logs",
		},
		[]string{"company"},
	)

	VariantsKept = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "twcs_variants_kept",
			Help: "Trace variants left after variant filtering",
		},
		[]string{"company"},
	)
)

func init() {
	Registry.MustRegister(FilesTotal)
	Registry.MustRegister(PreprocessRows)
	Registry.MustRegister(StageDuration)
	Registry.MustRegister(NLICacheTotal)
	Registry.MustRegister(NLIRequestsTotal)
	Registry.MustRegister(NLIRequestDuration)
	Registry.MustRegister(EventsTotal)
	Registry.MustRegister(VariantsKept)
}

// ObserveStage records the time since start for stage.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Push sends every registered collector to the Pushgateway at url under job.
func Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
