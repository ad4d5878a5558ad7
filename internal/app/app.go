// Package app wires configuration into the ingest and answer pipeline.
// It is shared by the HTTP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/chunker"
	"github.com/kailas-cloud/docqa/internal/config"
	dbvalkey "github.com/kailas-cloud/docqa/internal/db/valkey"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/fetcher"
	"github.com/kailas-cloud/docqa/internal/metrics"
	"github.com/kailas-cloud/docqa/internal/repository/embcache"
	"github.com/kailas-cloud/docqa/internal/tracing"
	"github.com/kailas-cloud/docqa/internal/transport/gemini"
	"github.com/kailas-cloud/docqa/internal/transport/openai"
	"github.com/kailas-cloud/docqa/internal/usecase/answer"
	"github.com/kailas-cloud/docqa/internal/usecase/document"
	embeddinguc "github.com/kailas-cloud/docqa/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	"github.com/kailas-cloud/docqa/internal/usecase/qa"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
	"github.com/kailas-cloud/docqa/internal/vectorindex/memory"
	"github.com/kailas-cloud/docqa/internal/vectorindex/qdrant"
	vkindex "github.com/kailas-cloud/docqa/internal/vectorindex/valkey"
	"github.com/kailas-cloud/docqa/internal/version"
)

// App holds the assembled services.
type App struct {
	Processor *document.Processor
	Answerer  *answer.Synthesizer
	QA        *qa.Service
	Health    *healthuc.Service
	Index     vectorindex.Store

	closers []func(context.Context) error
}

// Build connects to every backend named in cfg and assembles the pipeline.
// On error, everything opened so far is closed.
func Build(ctx context.Context, env string, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version.Version,
		Environment:    env,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, tp.Shutdown)

	index, err := buildIndex(ctx, cfg.VectorIndex, logger)
	if err != nil {
		return nil, err
	}
	a.Index = vectorindex.Instrument(index, cfg.VectorIndex.Driver, logger)
	a.closers = append(a.closers, func(context.Context) error { return a.Index.Close() })

	var cache *dbvalkey.Client
	if cfg.Cache.Enabled {
		cache, err = connectValkey(ctx, cfg.Cache.Valkey)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { cache.Close(); return nil })
	}

	embedder, err := buildEmbedder(ctx, cfg, cache, logger)
	if err != nil {
		return nil, err
	}
	generator, err := buildGenerator(ctx, cfg.Generation, logger)
	if err != nil {
		return nil, err
	}

	f := fetcher.New(fetcher.Config{
		Extractor: fetcher.PDFExtractor{},
		TempDir:   cfg.Ingest.TempDir,
		MaxBytes:  int64(cfg.Ingest.MaxDownloadMB) << 20,
		Timeout:   time.Duration(cfg.Ingest.DownloadTimeoutSec) * time.Second,
		Logger:    logger,
	})
	c := chunker.New(
		chunker.WithChunkSize(cfg.Ingest.ChunkSize),
		chunker.WithOverlap(cfg.Ingest.ChunkOverlap),
	)

	a.Processor = document.New(f, c, embedder, a.Index,
		document.WithDimension(cfg.Embedding.Dimensions),
		document.WithBatchSize(cfg.Ingest.BatchSize),
		document.WithPacer(document.BatchInterval(cfg.Ingest.BatchInterval())),
		document.WithReadiness(
			time.Duration(cfg.VectorIndex.PollIntervalMs)*time.Millisecond,
			time.Duration(cfg.VectorIndex.ReadyTimeoutSec)*time.Second,
		),
		document.WithIndexPrefix(cfg.VectorIndex.Prefix),
		document.WithLogger(logger),
	)
	a.Answerer = answer.New(generator,
		answer.WithMaxContextMatches(cfg.Answer.MaxContextMatches),
		answer.WithLogger(logger),
	)
	a.QA = qa.New(func() qa.Session { return a.Processor.NewSession() }, a.Answerer, cfg.Answer.TopK, logger)

	var (
		embeddingProbe healthuc.EmbeddingChecker
		cacheProbe     healthuc.Pinger
	)
	if hc, ok := embedder.(domain.HealthChecker); ok {
		embeddingProbe = hc
	}
	if cache != nil {
		cacheProbe = cache
	}
	a.Health = healthuc.New(a.Index, embeddingProbe, cacheProbe, logger)

	return a, nil
}

// Close releases backends in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildIndex(ctx context.Context, cfg config.VectorIndexConfig, logger *zap.Logger) (vectorindex.Store, error) {
	switch cfg.Driver {
	case config.DriverQdrant:
		s, err := qdrant.New(qdrant.Config{
			Host:    cfg.Qdrant.Host,
			Port:    cfg.Qdrant.Port,
			APIKey:  cfg.Qdrant.APIKey,
			UseTLS:  cfg.Qdrant.UseTLS,
			Timeout: time.Duration(cfg.Qdrant.TimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		return s, nil
	case config.DriverValkey:
		db, err := connectValkey(ctx, cfg.Valkey)
		if err != nil {
			return nil, fmt.Errorf("valkey vector index: %w", err)
		}
		return vkindex.New(db), nil
	case config.DriverMemory:
		logger.Warn("Using in-memory vector index; data is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown vector index driver %q", cfg.Driver)
	}
}

func connectValkey(ctx context.Context, cfg config.ValkeyConfig) (*dbvalkey.Client, error) {
	c, err := dbvalkey.Connect(ctx, dbvalkey.Config{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, time.Duration(cfg.ReadinessTimeoutSec)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return c, nil
}

// buildEmbedder assembles provider -> purpose instructions (openai) -> batching/tracing -> cache.
// The cache is outermost so hits neither reach the provider nor count tokens.
func buildEmbedder(
	ctx context.Context, cfg *config.Config, cache *dbvalkey.Client, logger *zap.Logger,
) (domain.Embedder, error) {
	ec := cfg.Embedding
	timeout := time.Duration(ec.TimeoutSec) * time.Second

	var embedder domain.Embedder
	switch ec.Provider {
	case config.ProviderGemini:
		g, err := gemini.NewEmbedder(ctx, gemini.EmbedderConfig{
			Config:     gemini.Config{APIKey: ec.APIKey, Model: ec.Model, Endpoint: ec.BaseURL, Timeout: timeout},
			Dimensions: ec.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embedder: %w", err)
		}
		embedder = g
	case config.ProviderOpenAI:
		base := openai.NewEmbedder(openai.EmbedderConfig{
			Config: openai.Config{
				APIKey:  ec.APIKey,
				BaseURL: ec.BaseURL,
				Model:   ec.Model,
				Timeout: timeout,
				Logger:  logger,
			},
			Dimensions: ec.Dimensions,
		})
		// OpenAI-compatible models have a single mode; purposes are emulated with instructions.
		embedder = domain.NewPurposeInstructionEmbedder(base, ec.DocumentInstruction, ec.QueryInstruction)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", ec.Provider)
	}

	embedder = embeddinguc.New(embedder, ec.Provider, ec.Model,
		embeddinguc.WithMaxBatch(ec.MaxBatchSize),
		embeddinguc.WithMaxBatchChars(ec.MaxBatchChars),
		embeddinguc.WithLogger(logger),
	)

	if cache != nil {
		embedder = embcache.New(embedder, cache, ec.Model, cfg.Cache.CacheTTL(), metrics.EmbeddingCacheTotal, logger)
	}
	return embedder, nil
}

func buildGenerator(ctx context.Context, gc config.GenerationConfig, logger *zap.Logger) (domain.Generator, error) {
	timeout := time.Duration(gc.TimeoutSec) * time.Second
	switch gc.Provider {
	case config.ProviderGemini:
		g, err := gemini.NewGenerator(ctx, gemini.GeneratorConfig{
			Config:    gemini.Config{APIKey: gc.APIKey, Model: gc.Model, Endpoint: gc.BaseURL, Timeout: timeout},
			MaxTokens: gc.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini generator: %w", err)
		}
		return g, nil
	case config.ProviderOpenAI:
		return openai.NewGenerator(openai.GeneratorConfig{
			Config: openai.Config{
				APIKey:  gc.APIKey,
				BaseURL: gc.BaseURL,
				Model:   gc.Model,
				Timeout: timeout,
				Logger:  logger,
			},
			Temperature: gc.Temperature,
			MaxTokens:   gc.MaxTokens,
		}), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", gc.Provider)
	}
}
