package embcache

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// countingEmbedder returns [len(text), 1] and counts what reaches it.
type countingEmbedder struct {
	calls int
	texts []string
	err   error
	short bool
}

func (e *countingEmbedder) vector(text string) []float32 { return []float32{float32(len(text)), 1} }

func (e *countingEmbedder) Embed(_ context.Context, text string, _ domain.Purpose) (domain.EmbeddingResult, error) {
	e.calls++
	e.texts = append(e.texts, text)
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{Embedding: e.vector(text), TotalTokens: 1}, nil
}

func (e *countingEmbedder) BatchEmbed(
	_ context.Context, texts []string, _ domain.Purpose,
) (domain.BatchEmbeddingResult, error) {
	e.calls++
	e.texts = append(e.texts, texts...)
	if e.err != nil {
		return domain.BatchEmbeddingResult{}, e.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, e.vector(t))
	}
	if e.short {
		out = out[:len(out)-1]
	}
	return domain.BatchEmbeddingResult{Embeddings: out, PromptTokens: len(texts), TotalTokens: len(texts)}, nil
}

// memKV is an in-process kv.
type memKV struct {
	data      map[string][]byte
	ttls      []time.Duration
	lookupErr error
	putErr    error
}

func newMemKV() *memKV { return &memKV{data: map[string][]byte{}} }

func (m *memKV) Lookup(_ context.Context, key string) ([]byte, bool, error) {
	if m.lookupErr != nil {
		return nil, false, m.lookupErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.ttls = append(m.ttls, ttl)
	if m.putErr != nil {
		return m.putErr
	}
	m.data[key] = value
	return nil
}

func newLookups() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_lookups"}, []string{"purpose", "result"})
}

func TestBatchEmbed_SecondPassIsServedFromCache(t *testing.T) {
	inner := &countingEmbedder{}
	lookups := newLookups()
	c := New(inner, newMemKV(), "m", time.Hour, lookups, nil)
	ctx := context.Background()
	texts := []string{"a", "bb", "ccc"}

	first, err := c.BatchEmbed(ctx, texts, domain.PurposeDocument)
	if err != nil {
		t.Fatal(err)
	}
	if first.TotalTokens != 3 {
		t.Errorf("first pass tokens = %d, want 3", first.TotalTokens)
	}

	second, err := c.BatchEmbed(ctx, texts, domain.PurposeDocument)
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if second.TotalTokens != 0 {
		t.Errorf("hit tokens = %d, want 0", second.TotalTokens)
	}
	for i := range texts {
		if !slices.Equal(first.Embeddings[i], second.Embeddings[i]) {
			t.Errorf("embedding %d differs between passes", i)
		}
	}

	doc := string(domain.PurposeDocument)
	if got := testutil.ToFloat64(lookups.WithLabelValues(doc, "miss")); got != 3 {
		t.Errorf("misses = %v, want 3", got)
	}
	if got := testutil.ToFloat64(lookups.WithLabelValues(doc, "hit")); got != 3 {
		t.Errorf("hits = %v, want 3", got)
	}
}

func TestBatchEmbed_OnlyMissesReachProvider(t *testing.T) {
	inner := &countingEmbedder{}
	c := New(inner, newMemKV(), "m", 0, nil, nil)
	ctx := context.Background()

	if _, err := c.BatchEmbed(ctx, []string{"x", "yy"}, domain.PurposeDocument); err != nil {
		t.Fatal(err)
	}
	inner.texts = nil

	res, err := c.BatchEmbed(ctx, []string{"yy", "new one", "x"}, domain.PurposeDocument)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(inner.texts, []string{"new one"}) {
		t.Errorf("provider saw %v", inner.texts)
	}
	want := [][]float32{{2, 1}, {7, 1}, {1, 1}}
	for i := range want {
		if !slices.Equal(res.Embeddings[i], want[i]) {
			t.Errorf("embedding %d = %v, want %v", i, res.Embeddings[i], want[i])
		}
	}
}

func TestKey_SeparatesPurposeAndModel(t *testing.T) {
	a := New(nil, nil, "model-a", 0, nil, nil)
	b := New(nil, nil, "model-b", 0, nil, nil)

	doc := a.key("text", domain.PurposeDocument)
	if doc == a.key("text", domain.PurposeQuery) {
		t.Error("purpose must change the key")
	}
	if doc == b.key("text", domain.PurposeDocument) {
		t.Error("model must change the key")
	}
	if doc != a.key("text", domain.PurposeDocument) {
		t.Error("key must be deterministic")
	}
	if !strings.HasPrefix(doc, keyPrefix) {
		t.Errorf("key %q lacks prefix", doc)
	}
}

func TestEmbed_MissThenHit(t *testing.T) {
	inner := &countingEmbedder{}
	c := New(inner, newMemKV(), "m", time.Minute, nil, nil)
	ctx := context.Background()

	miss, err := c.Embed(ctx, "question", domain.PurposeQuery)
	if err != nil || miss.TotalTokens != 1 {
		t.Fatalf("miss = %+v, err = %v", miss, err)
	}
	hit, err := c.Embed(ctx, "question", domain.PurposeQuery)
	if err != nil || hit.TotalTokens != 0 || !slices.Equal(hit.Embedding, miss.Embedding) {
		t.Fatalf("hit = %+v, err = %v", hit, err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	c := New(&countingEmbedder{err: errors.New("provider down")}, newMemKV(), "m", 0, nil, nil)
	if _, err := c.Embed(context.Background(), "t", domain.PurposeQuery); err == nil {
		t.Fatal("expected error")
	}
}

func TestCacheFailuresDegradeToMisses(t *testing.T) {
	kv := newMemKV()
	kv.lookupErr = errors.New("connection reset")
	kv.putErr = errors.New("OOM")
	inner := &countingEmbedder{}
	c := New(inner, kv, "m", 0, nil, nil)

	res, err := c.BatchEmbed(context.Background(), []string{"a", "b"}, domain.PurposeDocument)
	if err != nil {
		t.Fatalf("cache failure must not fail the call: %v", err)
	}
	if len(res.Embeddings) != 2 || inner.calls != 1 {
		t.Errorf("embeddings = %d, inner calls = %d", len(res.Embeddings), inner.calls)
	}
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	kv := newMemKV()
	inner := &countingEmbedder{}
	c := New(inner, kv, "m", 0, nil, nil)
	kv.data[c.key("a", domain.PurposeQuery)] = []byte{1, 2, 3}

	res, err := c.Embed(context.Background(), "a", domain.PurposeQuery)
	if err != nil || inner.calls != 1 || !slices.Equal(res.Embedding, []float32{1, 1}) {
		t.Fatalf("res = %+v, err = %v, calls = %d", res, err, inner.calls)
	}
}

func TestBatchEmbed_ShortProviderResult(t *testing.T) {
	c := New(&countingEmbedder{short: true}, newMemKV(), "m", 0, nil, nil)
	_, err := c.BatchEmbed(context.Background(), []string{"a", "b"}, domain.PurposeDocument)
	if !errors.Is(err, domain.ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
}

func TestBatchEmbed_Empty(t *testing.T) {
	inner := &countingEmbedder{}
	res, err := New(inner, newMemKV(), "m", 0, nil, nil).BatchEmbed(context.Background(), nil, domain.PurposeDocument)
	if err != nil || len(res.Embeddings) != 0 || inner.calls != 0 {
		t.Fatalf("res = %+v, err = %v, calls = %d", res, err, inner.calls)
	}
}

func TestPut_UsesTTL(t *testing.T) {
	kv := newMemKV()
	c := New(&countingEmbedder{}, kv, "m", 24*time.Hour, nil, nil)
	if _, err := c.Embed(context.Background(), "a", domain.PurposeDocument); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(kv.ttls, []time.Duration{24 * time.Hour}) {
		t.Errorf("ttls = %v", kv.ttls)
	}
}

func TestEncodeDecode(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	got, err := decode(encode(v))
	if err != nil || !slices.Equal(got, v) {
		t.Fatalf("decode(encode(v)) = %v, %v", got, err)
	}
	if _, err := decode([]byte{1, 2, 3, 4, 5}); err == nil {
		t.Error("expected error for odd length")
	}
}
