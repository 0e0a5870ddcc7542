package ingestion

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricsJob = "stmdb_ingest"

// Metrics holds the ingestion counters on a private registry that batch runs
// push to a gateway.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	files        *prometheus.CounterVec
	rowsInserted *prometheus.CounterVec
	fileDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stmdb",
			Name:      "files_processed_total",
			Help:      "Instrument files processed, by outcome.",
		}, []string{"outcome"}),
		rowsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stmdb",
			Name:      "rows_inserted_total",
			Help:      "Rows written by safe upserts, by table.",
		}, []string{"table"}),
		fileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stmdb",
			Name:      "file_ingest_seconds",
			Help:      "Time spent reading and ingesting one instrument file.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.files, m.rowsInserted, m.fileDuration)
	return m
}

func (m *Metrics) fileProcessed(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(outcome).Inc()
	m.fileDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) rowInserted(table string) {
	if m == nil {
		return
	}
	m.rowsInserted.WithLabelValues(table).Inc()
}

// Push sends the current values to a Prometheus pushgateway, grouped by run id.
func (m *Metrics) Push(ctx context.Context, gatewayURL, runID string) error {
	if m == nil || gatewayURL == "" {
		return nil
	}
	return push.New(gatewayURL, metricsJob).
		Gatherer(m.registry).
		Grouping("run_id", runID).
		PushContext(ctx)
}
