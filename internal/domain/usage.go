package domain

import (
	"context"
	"sync"
)

type usageKey struct{}

// Usage collects token consumption for a single request.
// The handler puts a pointer into the context; embedders and generators add to it.
type Usage struct {
	mu               sync.Mutex
	EmbeddingTokens  int
	GenerationTokens int
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

// AddEmbeddingTokens records embedding tokens. Safe on a nil receiver.
func (u *Usage) AddEmbeddingTokens(n int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.EmbeddingTokens += n
	u.mu.Unlock()
}

// AddGenerationTokens records generation tokens. Safe on a nil receiver.
func (u *Usage) AddGenerationTokens(n int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.GenerationTokens += n
	u.mu.Unlock()
}

// Totals returns a consistent snapshot of the counters.
func (u *Usage) Totals() (embedding, generation int) {
	if u == nil {
		return 0, 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.EmbeddingTokens, u.GenerationTokens
}
