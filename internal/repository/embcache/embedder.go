// Package embcache puts a Valkey-backed cache in front of an embedding provider,
// so re-ingesting a document does not pay for the same chunks twice.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

const keyPrefix = "docqa:emb:"

// kv is the consumer interface for the cache backend.
type kv interface {
	Lookup(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder serves embeddings from a key-value store and forwards misses.
// Keys hash model, purpose and text, so document and query vectors never collide.
// Cache failures degrade to misses and never fail a request.
type CachedEmbedder struct {
	inner   domain.Embedder
	kv      kv
	model   string
	ttl     time.Duration
	lookups *prometheus.CounterVec
	logger  *zap.Logger
}

// New wraps inner. lookups takes labels "purpose" and "result" (hit or miss) and may be nil.
// A zero ttl keeps entries until evicted.
func New(
	inner domain.Embedder,
	store kv,
	model string,
	ttl time.Duration,
	lookups *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:   inner,
		kv:      store,
		model:   model,
		ttl:     ttl,
		lookups: lookups,
		logger:  logger,
	}
}

// Embed embeds one text. A hit reports zero tokens.
func (c *CachedEmbedder) Embed(ctx context.Context, text string, purpose domain.Purpose) (domain.EmbeddingResult, error) {
	key := c.key(text, purpose)
	if vec, ok := c.lookup(ctx, key, purpose); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	res, err := c.inner.Embed(ctx, text, purpose)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	c.remember(ctx, key, res.Embedding)
	return res, nil
}

// BatchEmbed answers hits from the cache and sends all misses to the inner
// embedder in a single batch. Output order matches input order; token counts
// cover the misses only.
func (c *CachedEmbedder) BatchEmbed(
	ctx context.Context, texts []string, purpose domain.Purpose,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var misses []int
	for i, text := range texts {
		keys[i] = c.key(text, purpose)
		if vec, ok := c.lookup(ctx, keys[i], purpose); ok {
			out[i] = vec
			continue
		}
		misses = append(misses, i)
	}
	if len(misses) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: out}, nil
	}

	missTexts := make([]string, len(misses))
	for j, i := range misses {
		missTexts[j] = texts[i]
	}
	res, err := domain.EmbedBatch(ctx, c.inner, missTexts, purpose)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	if len(res.Embeddings) != len(misses) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"%w: got %d embeddings for %d texts", domain.ErrEmbeddingService, len(res.Embeddings), len(misses))
	}

	for j, i := range misses {
		out[i] = res.Embeddings[j]
		c.remember(ctx, keys[i], res.Embeddings[j])
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // passthrough
	}
	return nil
}

func (c *CachedEmbedder) key(text string, purpose domain.Purpose) string {
	h := sha256.New()
	for _, part := range []string{c.model, string(purpose), text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string, purpose domain.Purpose) ([]float32, bool) {
	vec, ok := c.read(ctx, key)
	result := "miss"
	if ok {
		result = "hit"
	}
	if c.lookups != nil {
		c.lookups.WithLabelValues(string(purpose), result).Inc()
	}
	return vec, ok
}

func (c *CachedEmbedder) read(ctx context.Context, key string) ([]float32, bool) {
	data, found, err := c.kv.Lookup(ctx, key)
	if err != nil {
		c.logger.Warn("Embedding cache lookup failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !found || len(data) == 0 {
		return nil, false
	}
	vec, err := decode(data)
	if err != nil {
		c.logger.Warn("Discarding corrupt cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) remember(ctx context.Context, key string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	if err := c.kv.Put(ctx, key, encode(vec), c.ttl); err != nil {
		c.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decode(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("length %d is not a multiple of 4", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}
