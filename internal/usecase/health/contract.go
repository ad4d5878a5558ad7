package health

import "context"

// Pinger is a backing store that answers a round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker is a provider that can verify its credentials and endpoint.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
