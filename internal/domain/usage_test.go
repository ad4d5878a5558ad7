package domain

import (
	"context"
	"sync"
	"testing"
)

func TestUsage_ContextRoundTrip(t *testing.T) {
	ctx, u := NewContextWithUsage(context.Background())
	UsageFromContext(ctx).AddEmbeddingTokens(10)
	UsageFromContext(ctx).AddGenerationTokens(3)

	emb, gen := u.Totals()
	if emb != 10 || gen != 3 {
		t.Errorf("Totals() = %d, %d; want 10, 3", emb, gen)
	}
}

func TestUsage_NilSafe(t *testing.T) {
	u := UsageFromContext(context.Background())
	if u != nil {
		t.Fatal("expected nil usage without collector")
	}
	u.AddEmbeddingTokens(5)
	u.AddGenerationTokens(5)
	if emb, gen := u.Totals(); emb != 0 || gen != 0 {
		t.Errorf("nil usage should report zeros, got %d, %d", emb, gen)
	}
}

func TestUsage_Concurrent(t *testing.T) {
	_, u := NewContextWithUsage(context.Background())
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.AddEmbeddingTokens(1)
		}()
	}
	wg.Wait()
	if emb, _ := u.Totals(); emb != 50 {
		t.Errorf("expected 50, got %d", emb)
	}
}
