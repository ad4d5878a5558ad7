package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Kinds of model provider calls.
const (
	KindEmbedding  = "embedding"
	KindGeneration = "generation"
)

var (
	providerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Model provider requests by kind and outcome",
		},
		[]string{"kind", "provider", "model", "status"},
	)

	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of successful model provider requests",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"kind", "provider", "model"},
	)

	providerTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Tokens reported by model providers",
		},
		[]string{"kind", "provider", "model", "type"}, // type: input, output
	)

	providerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Failed model provider requests by cause",
		},
		[]string{"kind", "provider", "model", "error_type"},
	)

	// EmbeddingCacheTotal counts embedding cache lookups by purpose and result (hit, miss).
	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_lookups_total",
			Help:      "Embedding cache lookups",
		},
		[]string{"purpose", "result"},
	)
)

// Call tracks one request to a model provider.
type Call struct {
	kind, provider, model string
	start                 time.Time
}

// StartCall starts timing a provider request.
func StartCall(kind, provider, model string) Call {
	return Call{kind: kind, provider: provider, model: model, start: time.Now()}
}

// Fail records the request as failed with a short cause such as "rate_limited".
func (c Call) Fail(errorType string) {
	providerRequestsTotal.WithLabelValues(c.kind, c.provider, c.model, "error").Inc()
	providerErrorsTotal.WithLabelValues(c.kind, c.provider, c.model, errorType).Inc()
}

// Done records a successful request and the tokens it reported. Zero counts are skipped.
func (c Call) Done(inputTokens, outputTokens int) {
	providerRequestsTotal.WithLabelValues(c.kind, c.provider, c.model, "success").Inc()
	providerRequestDuration.WithLabelValues(c.kind, c.provider, c.model).Observe(time.Since(c.start).Seconds())
	if inputTokens > 0 {
		providerTokensTotal.WithLabelValues(c.kind, c.provider, c.model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		providerTokensTotal.WithLabelValues(c.kind, c.provider, c.model, "output").Add(float64(outputTokens))
	}
}
