package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingest pipeline and vector index Prometheus metrics.
var (
	IngestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_documents_total",
			Help:      "Documents ingested by outcome",
		},
		[]string{"status"}, // ok, fetch_error, unsupported_format, empty, error
	)

	IngestChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_chunks_total",
			Help:      "Chunks embedded and written to a vector index",
		},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "End-to-end document ingest duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	VectorIndexOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_index_operations_total",
			Help:      "Vector index operations by driver, operation and status",
		},
		[]string{"driver", "op", "status"},
	)
)

// ObserveIndexOp counts one vector index operation.
func ObserveIndexOp(driver, op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	VectorIndexOpsTotal.WithLabelValues(driver, op, status).Inc()
}
