// Package metrics provides Prometheus metrics for pipeline runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageCandidatesTotal tracks candidates handled per stage by outcome
	StageCandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sfg",
			Subsystem: "pipeline",
			Name:      "stage_candidates_total",
			Help:      "Total number of stage candidates by outcome",
		},
		[]string{"stage", "outcome"},
	)

	// StageDuration tracks stage wall time in seconds
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sfg",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		},
		[]string{"stage"},
	)

	// RowsWrittenTotal tracks rows appended to array stores
	RowsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sfg",
			Subsystem: "arraystore",
			Name:      "rows_written_total",
			Help:      "Total number of rows written to array stores by kind",
		},
		[]string{"kind"},
	)

	// FusionUnfilledTotal tracks shot pose fields left unset by fusion
	FusionUnfilledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sfg",
			Subsystem: "fusion",
			Name:      "unfilled_fields_total",
			Help:      "Total number of ping or return poses fusion could not fill",
		},
	)
)

// ObserveStage records one finished stage.
func ObserveStage(stage string, processed, skipped, failed int, d time.Duration) {
	StageCandidatesTotal.WithLabelValues(stage, "processed").Add(float64(processed))
	StageCandidatesTotal.WithLabelValues(stage, "skipped").Add(float64(skipped))
	StageCandidatesTotal.WithLabelValues(stage, "failed").Add(float64(failed))
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteTextfile writes the default registry in text exposition format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
