package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// providerStub answers every text with a one-dimensional vector holding its
// length, so order is checkable after regrouping.
type providerStub struct {
	tokensPerText int
	batchErr      error
	short         bool
	requests      [][]string
}

func (p *providerStub) Embed(_ context.Context, text string, _ domain.Purpose) (domain.EmbeddingResult, error) {
	if p.batchErr != nil {
		return domain.EmbeddingResult{}, p.batchErr
	}
	return domain.EmbeddingResult{
		Embedding:    []float32{float32(len(text))},
		PromptTokens: p.tokensPerText,
		TotalTokens:  p.tokensPerText,
	}, nil
}

func (p *providerStub) BatchEmbed(
	_ context.Context, texts []string, _ domain.Purpose,
) (domain.BatchEmbeddingResult, error) {
	p.requests = append(p.requests, texts)
	if p.batchErr != nil {
		return domain.BatchEmbeddingResult{}, p.batchErr
	}
	out := domain.BatchEmbeddingResult{}
	for _, t := range texts {
		out.Embeddings = append(out.Embeddings, []float32{float32(len(t))})
		out.PromptTokens += p.tokensPerText
		out.TotalTokens += p.tokensPerText
	}
	if p.short {
		out.Embeddings = out.Embeddings[:len(out.Embeddings)-1]
	}
	return out, nil
}

// singleOnly has no native batch call.
type singleOnly struct {
	calls  int
	health error
}

func (s *singleOnly) Embed(_ context.Context, text string, _ domain.Purpose) (domain.EmbeddingResult, error) {
	s.calls++
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text))}, TotalTokens: 5}, nil
}

func (s *singleOnly) HealthCheck(context.Context) error { return s.health }

func requestSizes(reqs [][]string) []int {
	out := make([]int, len(reqs))
	for i, r := range reqs {
		out[i] = len(r)
	}
	return out
}

func TestSplitBatches(t *testing.T) {
	tests := []struct {
		name     string
		texts    []string
		maxItems int
		maxChars int
		want     []window
	}{
		{"one group", []string{"a", "b", "c"}, 10, 100, []window{{0, 3}}},
		{"item cap", []string{"a", "b", "c", "d", "e"}, 2, 100, []window{{0, 2}, {2, 4}, {4, 5}}},
		{"char cap", []string{"aaaa", "bbbb", "cc"}, 10, 6, []window{{0, 1}, {1, 3}}},
		{"oversized text alone", []string{"a", strings.Repeat("x", 20), "b"}, 10, 5, []window{{0, 1}, {1, 2}, {2, 3}}},
		{"exact fit", []string{"abc", "def"}, 2, 6, []window{{0, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitBatches(tt.texts, tt.maxItems, tt.maxChars))
		})
	}
}

func TestEmbed_ChargesUsage(t *testing.T) {
	inner := &providerStub{tokensPerText: 7}
	e := New(inner, "stub", "m1")

	ctx, usage := domain.NewContextWithUsage(context.Background())
	res, err := e.Embed(ctx, "hello", domain.PurposeQuery)
	require.NoError(t, err)
	assert.Equal(t, []float32{5}, res.Embedding)

	_, err = e.BatchEmbed(ctx, []string{"a", "bb"}, domain.PurposeDocument)
	require.NoError(t, err)

	emb, gen := usage.Totals()
	assert.Equal(t, 21, emb)
	assert.Zero(t, gen)
}

func TestEmbed_FailureIsLoggedAndWrapped(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	inner := &providerStub{batchErr: domain.ErrEmbeddingService}
	e := New(inner, "stub", "m1", WithLogger(zap.New(core)))

	_, err := e.Embed(context.Background(), "hello", domain.PurposeQuery)
	require.ErrorIs(t, err, domain.ErrEmbeddingService)

	entries := logs.FilterMessage("Embedding request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "stub", entries[0].ContextMap()["provider"])
}

func TestBatchEmbed_KeepsOrderAcrossRequests(t *testing.T) {
	inner := &providerStub{tokensPerText: 1}
	e := New(inner, "stub", "m1", WithMaxBatch(2))

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	res, err := e.BatchEmbed(context.Background(), texts, domain.PurposeDocument)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, requestSizes(inner.requests))
	require.Len(t, res.Embeddings, len(texts))
	for i, t0 := range texts {
		assert.Equal(t, float32(len(t0)), res.Embeddings[i][0])
	}
	assert.Equal(t, 5, res.TotalTokens)
}

func TestBatchEmbed_CharBudget(t *testing.T) {
	inner := &providerStub{}
	e := New(inner, "stub", "m1", WithMaxBatchChars(8))

	_, err := e.BatchEmbed(context.Background(), []string{"12345", "12345", "123"}, domain.PurposeDocument)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, requestSizes(inner.requests))
}

func TestBatchEmbed_Empty(t *testing.T) {
	inner := &providerStub{}
	res, err := New(inner, "stub", "m1").BatchEmbed(context.Background(), nil, domain.PurposeDocument)
	require.NoError(t, err)
	assert.Nil(t, res.Embeddings)
	assert.Empty(t, inner.requests)
}

func TestBatchEmbed_Failures(t *testing.T) {
	t.Run("short response", func(t *testing.T) {
		e := New(&providerStub{short: true}, "stub", "m1")
		_, err := e.BatchEmbed(context.Background(), []string{"a", "b"}, domain.PurposeDocument)
		require.ErrorIs(t, err, domain.ErrEmbeddingService)
	})

	t.Run("provider error stops further requests", func(t *testing.T) {
		inner := &providerStub{batchErr: errors.New("quota")}
		e := New(inner, "stub", "m1", WithMaxBatch(1))
		_, err := e.BatchEmbed(context.Background(), []string{"a", "b", "c"}, domain.PurposeDocument)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch embed [0:1]")
		assert.Len(t, inner.requests, 1)
	})
}

func TestBatchEmbed_SingleFallback(t *testing.T) {
	inner := &singleOnly{}
	res, err := New(inner, "stub", "m1").BatchEmbed(context.Background(), []string{"a", "b"}, domain.PurposeDocument)
	require.NoError(t, err)
	assert.Len(t, res.Embeddings, 2)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 10, res.TotalTokens)
}

func TestHealthCheck(t *testing.T) {
	require.NoError(t, New(&providerStub{}, "stub", "m1").HealthCheck(context.Background()))

	down := errors.New("down")
	err := New(&singleOnly{health: down}, "stub", "m1").HealthCheck(context.Background())
	require.ErrorIs(t, err, down)
}

func TestOptions_IgnoreNonPositive(t *testing.T) {
	e := New(&providerStub{}, "stub", "m1", WithMaxBatch(0), WithMaxBatchChars(-1), WithLogger(nil))
	assert.Equal(t, DefaultMaxBatch, e.maxBatch)
	assert.Equal(t, DefaultMaxBatchChars, e.maxChars)
	assert.NotNil(t, e.logger)
}
