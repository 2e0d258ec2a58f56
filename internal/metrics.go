package internal

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StageRank       = "rank"
	StageSimilarity = "similarity"
	StageGreedy     = "greedy"
)

// Metrics collects selection run statistics in a private registry so they
// can be dumped for a node_exporter textfile collector after a CLI run.
type Metrics struct {
	Registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	coverage      prometheus.Gauge
	selected      prometheus.Counter
	runs          *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "poolsel",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock time spent in each selection stage.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"stage"}),
		coverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "poolsel",
			Name:      "coverage",
			Help:      "Facility location objective reached by the last selection.",
		}),
		selected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolsel",
			Name:      "selected_items_total",
			Help:      "Items selected for annotation.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolsel",
			Name:      "runs_total",
			Help:      "Selection runs by outcome.",
		}, []string{"outcome"}),
	}
	m.Registry.MustRegister(m.stageDuration, m.coverage, m.selected, m.runs)
	return m
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveResult(r *SelectionResult) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues("ok").Inc()
	m.selected.Add(float64(len(r.Indices)))
	m.coverage.Set(r.TotalCoverage())
}

func (m *Metrics) ObserveFailure(err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(ErrorKind(err)).Inc()
}

// WriteTextfile dumps the registry in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
