package openai

import (
	"context"
	"fmt"
	"slices"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// EmbedderConfig adds embedding settings to Config.
type EmbedderConfig struct {
	Config
	// Dimensions asks models that support it for shorter vectors. 0 keeps the model default.
	Dimensions int
	User       string
}

// Embedder calls the /embeddings endpoint. The API has a single embedding mode;
// wrap it in domain.PurposeInstructionEmbedder to tell documents from queries.
type Embedder struct {
	client     *openai.Client
	model      string
	dimensions int
	user       string
	provider   string
	logger     *zap.Logger
}

// NewEmbedder creates an embedder.
func NewEmbedder(cfg EmbedderConfig) *Embedder {
	return &Embedder{
		client:     newClient(cfg.Config),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		provider:   cfg.provider(),
		logger:     cfg.logger(),
	}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string, _ domain.Purpose) (domain.EmbeddingResult, error) {
	res, err := e.embed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder with a single request.
func (e *Embedder) BatchEmbed(
	ctx context.Context, texts []string, _ domain.Purpose,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	return e.embed(ctx, texts)
}

func (e *Embedder) embed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	call := metrics.StartCall(metrics.KindEmbedding, e.provider, e.model)
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		Dimensions:     e.dimensions,
		User:           e.user,
	})
	if err != nil {
		call.Fail(errorType(err))
		return domain.BatchEmbeddingResult{}, apiError("embedding", err, domain.ErrEmbeddingService)
	}
	if len(resp.Data) != len(texts) {
		call.Fail("count_mismatch")
		return domain.BatchEmbeddingResult{}, fmt.Errorf("got %d embeddings for %d texts: %w",
			len(resp.Data), len(texts), domain.ErrEmbeddingService)
	}

	// Items carry their input position; providers are not required to keep order.
	data := slices.Clone(resp.Data)
	slices.SortFunc(data, func(a, b openai.Embedding) int { return a.Index - b.Index })
	out := make([][]float32, len(data))
	for i := range data {
		if len(data[i].Embedding) == 0 {
			call.Fail("empty_response")
			return domain.BatchEmbeddingResult{}, fmt.Errorf("empty embedding at %d: %w", i, domain.ErrEmbeddingService)
		}
		out[i] = data[i].Embedding
	}

	call.Done(resp.Usage.PromptTokens, 0)
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck lists models, which costs no tokens.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return apiError("list models", err, domain.ErrEmbeddingService)
	}
	return nil
}
