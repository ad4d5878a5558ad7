// Package document ingests PDF documents into per-document vector indexes and
// searches them.
package document

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
	"github.com/kailas-cloud/docqa/internal/tracing"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

// Defaults.
const (
	DefaultBatchSize = 50
	DefaultTopK      = 5

	successMessage = "Document processed and stored successfully"
	emptyMessage   = "No text could be extracted from the PDF"
)

// Processor orchestrates fetch, chunk, embed and index. It holds no per-request state.
type Processor struct {
	fetcher  Fetcher
	chunker  Chunker
	embedder domain.Embedder
	store    vectorindex.Store

	dimension    int
	batchSize    int
	pacer        *rate.Limiter
	pollInterval time.Duration
	readyTimeout time.Duration
	prefix       string
	logger       *zap.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithDimension sets the expected embedding dimension.
func WithDimension(dim int) Option {
	return func(p *Processor) {
		if dim > 0 {
			p.dimension = dim
		}
	}
}

// WithBatchSize sets how many chunks are embedded and upserted together.
func WithBatchSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithPacer throttles embedding batches. nil disables pacing.
func WithPacer(l *rate.Limiter) Option {
	return func(p *Processor) { p.pacer = l }
}

// WithReadiness sets the index readiness poll interval and ceiling.
func WithReadiness(interval, timeout time.Duration) Option {
	return func(p *Processor) {
		if interval > 0 {
			p.pollInterval = interval
		}
		if timeout > 0 {
			p.readyTimeout = timeout
		}
	}
}

// WithIndexPrefix overrides the index name prefix.
func WithIndexPrefix(prefix string) Option {
	return func(p *Processor) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// BatchInterval converts a pause between batches into a pacer. Zero or less disables pacing.
func BatchInterval(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// New creates a document processor.
func New(f Fetcher, c Chunker, e domain.Embedder, s vectorindex.Store, opts ...Option) *Processor {
	p := &Processor{
		fetcher:      f,
		chunker:      c,
		embedder:     e,
		store:        s,
		dimension:    domain.DefaultVectorConfig().Dimensions,
		batchSize:    DefaultBatchSize,
		pacer:        BatchInterval(time.Second),
		pollInterval: vectorindex.DefaultPollInterval,
		readyTimeout: vectorindex.DefaultReadyTimeout,
		prefix:       domain.DefaultIndexPrefix,
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// IndexName returns the index a document URL is stored under.
func (p *Processor) IndexName(url string) string {
	return domain.IndexName(p.prefix, url)
}

// Ingest downloads, chunks, embeds and stores one document.
// Failures are reported in the result, never returned.
func (p *Processor) Ingest(ctx context.Context, url string) domain.ProcessingResult {
	start := time.Now()
	name := p.IndexName(url)

	ctx, span := tracing.Start(ctx, "document.ingest", attribute.String("index", name))
	res := p.ingest(ctx, url, name)
	tracing.End(span, res.Err)

	metrics.IngestDocumentsTotal.WithLabelValues(ingestStatus(res.Err)).Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	if res.Err != nil {
		p.logger.Warn("Document ingest failed",
			zap.String("index", name),
			zap.Error(res.Err),
		)
	} else {
		p.logger.Info("Document ingested",
			zap.String("index", name),
			zap.Int("chunks", res.ChunksProcessed),
			zap.Int("text_length", res.TextLength),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return res
}

func (p *Processor) ingest(ctx context.Context, url, name string) domain.ProcessingResult {
	text, err := p.fetch(ctx, url)
	if errors.Is(err, domain.ErrEmptyExtraction) {
		return domain.ProcessingResult{Message: emptyMessage, IndexName: name, Err: err}
	}
	if err != nil {
		return failed(name, err)
	}

	_, span := tracing.Start(ctx, "document.chunk")
	chunks := p.chunker.Split(text)
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	tracing.End(span, nil)

	if err := vectorindex.EnsureIndex(ctx, p.store, name, p.dimension, p.pollInterval, p.readyTimeout); err != nil {
		return failed(name, err)
	}

	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		if err := p.storeBatch(ctx, name, chunks[start:end]); err != nil {
			return failed(name, fmt.Errorf("batch %d-%d: %w", start, end, err))
		}
		metrics.IngestChunksTotal.Add(float64(end - start))
	}

	return domain.ProcessingResult{
		Success:         true,
		Message:         successMessage,
		ChunksProcessed: len(chunks),
		TextLength:      utf8.RuneCountInString(text),
		IndexName:       name,
	}
}

func (p *Processor) fetch(ctx context.Context, url string) (string, error) {
	ctx, span := tracing.Start(ctx, "document.fetch")
	text, err := p.fetcher.Fetch(ctx, url)
	tracing.End(span, err)
	if err != nil {
		return "", fmt.Errorf("fetch document: %w", err)
	}
	return text, nil
}

func (p *Processor) storeBatch(ctx context.Context, name string, chunks []string) error {
	if p.pacer != nil {
		if err := p.pacer.Wait(ctx); err != nil {
			return fmt.Errorf("pacer: %w", err)
		}
	}

	ctx, span := tracing.Start(ctx, "document.embed_batch", attribute.Int("size", len(chunks)))
	res, err := domain.EmbedBatch(ctx, p.embedder, chunks, domain.PurposeDocument)
	tracing.End(span, err)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(res.Embeddings) != len(chunks) {
		return fmt.Errorf("got %d embeddings for %d chunks: %w",
			len(res.Embeddings), len(chunks), domain.ErrEmbeddingService)
	}

	records := make([]domain.Record, len(chunks))
	for i, vec := range res.Embeddings {
		if len(vec) != p.dimension {
			return fmt.Errorf("chunk %d: got %d, want %d: %w",
				i, len(vec), p.dimension, domain.ErrVectorDimMismatch)
		}
		records[i] = domain.Record{ID: uuid.NewString(), Values: vec, Text: chunks[i]}
	}

	if err := p.store.Upsert(ctx, name, records); err != nil {
		return fmt.Errorf("upsert records: %w", err)
	}
	return nil
}

// Query embeds question for search and returns the closest chunks in indexName.
// topK <= 0 means DefaultTopK.
func (p *Processor) Query(ctx context.Context, indexName, question string, topK int) ([]domain.Match, error) {
	if indexName == "" {
		return nil, domain.ErrNoIndex
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	ctx, span := tracing.Start(ctx, "document.query", attribute.String("index", indexName))
	matches, err := p.query(ctx, indexName, question, topK)
	tracing.End(span, err)
	return matches, err
}

func (p *Processor) query(ctx context.Context, indexName, question string, topK int) ([]domain.Match, error) {
	res, err := p.embedder.Embed(ctx, question, domain.PurposeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(res.Embedding) != p.dimension {
		return nil, fmt.Errorf("question: got %d, want %d: %w",
			len(res.Embedding), p.dimension, domain.ErrVectorDimMismatch)
	}

	matches, err := p.store.Query(ctx, indexName, res.Embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return matches, nil
}

func failed(name string, err error) domain.ProcessingResult {
	return domain.ProcessingResult{
		Message:   "Error processing document: " + err.Error(),
		IndexName: name,
		Err:       err,
	}
}

func ingestStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, domain.ErrEmptyExtraction):
		return "empty"
	case errors.Is(err, domain.ErrFetch):
		return "fetch_error"
	default:
		return "error"
	}
}
