// Package embedding adapts a provider embedder to the pipeline: requests are
// split to fit provider limits, traced and charged to the request's usage.
// Per-call transport metrics live in the provider adapters.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/tracing"
)

const (
	// DefaultMaxBatch caps texts per provider request.
	// Gemini batchEmbedContents accepts at most 100 requests.
	DefaultMaxBatch = 100
	// DefaultMaxBatchChars caps the summed text length of one provider request.
	DefaultMaxBatchChars = 250_000
)

// Option configures an Embedder.
type Option func(*Embedder)

// WithMaxBatch sets the per-request text count. n <= 0 keeps the default.
func WithMaxBatch(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.maxBatch = n
		}
	}
}

// WithMaxBatchChars sets the per-request character budget. n <= 0 keeps the default.
func WithMaxBatchChars(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.maxChars = n
		}
	}
}

// WithLogger sets the logger used for request failures and summaries.
func WithLogger(l *zap.Logger) Option {
	return func(e *Embedder) {
		if l != nil {
			e.logger = l
		}
	}
}

// Embedder wraps a provider embedder.
type Embedder struct {
	inner    domain.Embedder
	provider string
	model    string
	maxBatch int
	maxChars int
	logger   *zap.Logger
}

// New wraps inner. provider and model label spans and logs.
func New(inner domain.Embedder, provider, model string, opts ...Option) *Embedder {
	e := &Embedder{
		inner:    inner,
		provider: provider,
		model:    model,
		maxBatch: DefaultMaxBatch,
		maxChars: DefaultMaxBatchChars,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("provider", provider), zap.String("model", model))
	return e
}

// Embed embeds a single text.
func (e *Embedder) Embed(ctx context.Context, text string, purpose domain.Purpose) (domain.EmbeddingResult, error) {
	ctx, span := tracing.StartClient(ctx, "embedding.embed", e.provider, e.model)
	span.SetAttributes(attribute.String("docqa.purpose", string(purpose)))

	started := time.Now()
	res, err := e.inner.Embed(ctx, text, purpose)
	tracing.End(span, err)
	if err != nil {
		e.logger.Error("Embedding request failed",
			zap.String("purpose", string(purpose)),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	domain.UsageFromContext(ctx).AddEmbeddingTokens(res.TotalTokens)
	return res, nil
}

// BatchEmbed embeds texts in order, issuing as many provider requests as the
// batch limits require. Any failed request fails the whole batch.
func (e *Embedder) BatchEmbed(
	ctx context.Context, texts []string, purpose domain.Purpose,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	groups := splitBatches(texts, e.maxBatch, e.maxChars)
	ctx, span := tracing.StartClient(ctx, "embedding.batch", e.provider, e.model)
	span.SetAttributes(
		attribute.String("docqa.purpose", string(purpose)),
		attribute.Int("docqa.batch_size", len(texts)),
		attribute.Int("docqa.requests", len(groups)),
	)

	started := time.Now()
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for _, g := range groups {
		part := texts[g.from:g.to]
		res, err := domain.EmbedBatch(ctx, e.inner, part, purpose)
		if err == nil && len(res.Embeddings) != len(part) {
			err = fmt.Errorf("%w: got %d embeddings for %d texts",
				domain.ErrEmbeddingService, len(res.Embeddings), len(part))
		}
		if err != nil {
			tracing.End(span, err)
			e.logger.Error("Batch embedding request failed",
				zap.String("purpose", string(purpose)),
				zap.Int("offset", g.from),
				zap.Int("size", len(part)),
				zap.Error(err))
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed [%d:%d]: %w", g.from, g.to, err)
		}
		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	tracing.End(span, nil)

	domain.UsageFromContext(ctx).AddEmbeddingTokens(out.TotalTokens)
	e.logger.Debug("Batch embedding completed",
		zap.String("purpose", string(purpose)),
		zap.Int("texts", len(texts)),
		zap.Int("requests", len(groups)),
		zap.Int("total_tokens", out.TotalTokens),
		zap.Duration("elapsed", time.Since(started)))
	return out, nil
}

// HealthCheck reports the inner embedder's health when it exposes one.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	hc, ok := e.inner.(domain.HealthChecker)
	if !ok {
		return nil
	}
	return hc.HealthCheck(ctx) //nolint:wrapcheck // passthrough
}

type window struct{ from, to int }

// splitBatches groups consecutive texts so each group holds at most maxItems
// texts and at most maxChars bytes. A text longer than maxChars travels alone.
func splitBatches(texts []string, maxItems, maxChars int) []window {
	var out []window
	cur := window{}
	size := 0
	for i, t := range texts {
		full := i-cur.from >= maxItems || (i > cur.from && size+len(t) > maxChars)
		if full {
			cur.to = i
			out = append(out, cur)
			cur = window{from: i}
			size = 0
		}
		size += len(t)
	}
	cur.to = len(texts)
	return append(out, cur)
}
