package gemini

import (
	"context"
	"fmt"

	generativelanguage "google.golang.org/api/generativelanguage/v1beta"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// Task types understood by batchEmbedContents.
const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// EmbedderConfig adds the output dimension to Config.
type EmbedderConfig struct {
	Config
	Dimensions int
}

// Embedder uses models.batchEmbedContents with a native task type per purpose.
type Embedder struct {
	svc        *generativelanguage.Service
	model      string
	dimensions int
}

// NewEmbedder creates a Gemini embedding provider.
func NewEmbedder(ctx context.Context, cfg EmbedderConfig) (*Embedder, error) {
	svc, err := newService(ctx, cfg.Config)
	if err != nil {
		return nil, err
	}
	return &Embedder{svc: svc, model: modelName(cfg.Model), dimensions: cfg.Dimensions}, nil
}

func taskType(p domain.Purpose) string {
	if p == domain.PurposeQuery {
		return taskRetrievalQuery
	}
	return taskRetrievalDocument
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string, purpose domain.Purpose) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text}, purpose)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0]}, nil
}

// BatchEmbed implements domain.BatchEmbedder. The API returns embeddings in request order.
// Gemini does not report token usage for embeddings.
func (e *Embedder) BatchEmbed(
	ctx context.Context, texts []string, purpose domain.Purpose,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	reqs := make([]*generativelanguage.EmbedContentRequest, len(texts))
	for i, t := range texts {
		reqs[i] = &generativelanguage.EmbedContentRequest{
			Model:                e.model,
			Content:              &generativelanguage.Content{Parts: []*generativelanguage.Part{{Text: t}}},
			TaskType:             taskType(purpose),
			OutputDimensionality: int64(e.dimensions),
		}
	}

	call := metrics.StartCall(metrics.KindEmbedding, provider, e.model)
	resp, err := e.svc.Models.BatchEmbedContents(e.model, &generativelanguage.BatchEmbedContentsRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	if err != nil {
		call.Fail(errorType(err))
		return domain.BatchEmbeddingResult{}, parseAPIError("embedding", err, domain.ErrEmbeddingService)
	}
	if len(resp.Embeddings) != len(texts) {
		call.Fail("count_mismatch")
		return domain.BatchEmbeddingResult{}, fmt.Errorf("got %d embeddings for %d texts: %w",
			len(resp.Embeddings), len(texts), domain.ErrEmbeddingService)
	}

	embeddings := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			call.Fail("empty_response")
			return domain.BatchEmbeddingResult{}, fmt.Errorf("empty embedding at %d: %w", i, domain.ErrEmbeddingService)
		}
		vec := make([]float32, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float32(v)
		}
		embeddings[i] = vec
	}

	// batchEmbedContents reports no token usage.
	call.Done(0, 0)

	return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
}

// HealthCheck fetches the model metadata (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.svc.Models.Get(e.model).Context(ctx).Do(); err != nil {
		return parseAPIError("model lookup", err, domain.ErrEmbeddingService)
	}
	return nil
}
