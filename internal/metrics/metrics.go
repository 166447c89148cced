package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels analyses that produced a result.
	OutcomeSuccess = "success"
	// OutcomeError labels analyses that failed validation or a precondition.
	OutcomeError = "error"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nca",
			Name:      "analyses_total",
			Help:      "Total number of analyses run, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nca",
			Name:      "analysis_seconds",
			Help:      "Analysis latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	excludedSubjectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nca",
			Name:      "excluded_subjects_total",
			Help:      "Subjects left out of a metric aggregate, partitioned by metric.",
		},
		[]string{"metric"},
	)

	generatedRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nca",
			Name:      "generated_rows_total",
			Help:      "Synthetic observations produced by the generator.",
		},
	)
)

// Register attaches nca collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		excludedSubjectsTotal,
		generatedRowsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records an analysis duration and outcome for operation.
func ObserveAnalysis(operation string, duration time.Duration, err error) {
	label := OutcomeSuccess
	if err != nil {
		label = OutcomeError
	}
	analysesTotal.WithLabelValues(operation, label).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveExclusions adds n excluded subjects for metric.
func ObserveExclusions(metric string, n int) {
	if n <= 0 {
		return
	}
	excludedSubjectsTotal.WithLabelValues(metric).Add(float64(n))
}

// ObserveGenerated counts generated observations.
func ObserveGenerated(rows int) {
	if rows <= 0 {
		return
	}
	generatedRowsTotal.Add(float64(rows))
}

// WriteTextfile writes everything gathered by g in the node_exporter
// textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
