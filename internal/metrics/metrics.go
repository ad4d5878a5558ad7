// Package metrics defines the Prometheus metrics exposed on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docqa"

var registerOnce sync.Once

// Register adds every docqa collector to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestDuration, httpRequestsTotal, httpRequestsInFlight,
			providerRequestsTotal, providerRequestDuration, providerTokensTotal, providerErrorsTotal,
			EmbeddingCacheTotal,
			IngestDocumentsTotal, IngestChunksTotal, IngestDuration, VectorIndexOpsTotal,
		)
	})
}
