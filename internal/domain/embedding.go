package domain

import (
	"context"
	"fmt"
)

// Purpose selects the embedding variant: indexing a passage or searching with a query.
type Purpose string

const (
	// PurposeDocument embeds chunks that are written to an index.
	PurposeDocument Purpose = "document"
	// PurposeQuery embeds questions that are searched against an index.
	PurposeQuery Purpose = "query"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string, purpose Purpose) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call.
// Output order matches input order.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string, purpose Purpose) (BatchEmbeddingResult, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// BatchFallback calls Embed once per text, for providers without a native batch endpoint.
func BatchFallback(ctx context.Context, e Embedder, texts []string, purpose Purpose) (BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(texts))
	var totalPrompt, totalTokens int

	for i, text := range texts {
		res, err := e.Embed(ctx, text, purpose)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		embeddings[i] = res.Embedding
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	return BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

// EmbedBatch uses the native batch endpoint when e has one and falls back otherwise.
func EmbedBatch(ctx context.Context, e Embedder, texts []string, purpose Purpose) (BatchEmbeddingResult, error) {
	if be, ok := e.(BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts, purpose) //nolint:wrapcheck // callers wrap
	}
	return BatchFallback(ctx, e, texts, purpose)
}

// PurposeInstructionEmbedder emulates purpose-specific embeddings on providers that only
// offer one mode, by prepending a per-purpose instruction to every text.
type PurposeInstructionEmbedder struct {
	inner        Embedder
	instructions map[Purpose]string
}

// NewPurposeInstructionEmbedder creates the decorator. Empty instructions are passed through.
func NewPurposeInstructionEmbedder(inner Embedder, document, query string) *PurposeInstructionEmbedder {
	return &PurposeInstructionEmbedder{
		inner: inner,
		instructions: map[Purpose]string{
			PurposeDocument: document,
			PurposeQuery:    query,
		},
	}
}

// Embed prepends the purpose instruction and delegates to the inner embedder.
func (e *PurposeInstructionEmbedder) Embed(ctx context.Context, text string, purpose Purpose) (EmbeddingResult, error) {
	result, err := e.inner.Embed(ctx, e.instructions[purpose]+text, purpose)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return result, nil
}

// BatchEmbed prepends the purpose instruction to each text and delegates to the inner embedder.
func (e *PurposeInstructionEmbedder) BatchEmbed(
	ctx context.Context, texts []string, purpose Purpose,
) (BatchEmbeddingResult, error) {
	prefix := e.instructions[purpose]
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = prefix + t
	}

	res, err := EmbedBatch(ctx, e.inner, prefixed, purpose)
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed: %w", err)
	}
	return res, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (e *PurposeInstructionEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
