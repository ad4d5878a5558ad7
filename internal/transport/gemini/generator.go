package gemini

import (
	"context"
	"fmt"
	"strings"

	generativelanguage "google.golang.org/api/generativelanguage/v1beta"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// GeneratorConfig adds output limits to Config.
type GeneratorConfig struct {
	Config
	MaxTokens int
}

// Generator answers prompts with models.generateContent.
type Generator struct {
	svc       *generativelanguage.Service
	model     string
	maxTokens int
}

// NewGenerator creates a Gemini text generator.
func NewGenerator(ctx context.Context, cfg GeneratorConfig) (*Generator, error) {
	svc, err := newService(ctx, cfg.Config)
	if err != nil {
		return nil, err
	}
	return &Generator{svc: svc, model: modelName(cfg.Model), maxTokens: cfg.MaxTokens}, nil
}

// Generate implements domain.Generator. Text parts of the first candidate are concatenated.
func (g *Generator) Generate(ctx context.Context, prompt string) (domain.GenerationResult, error) {
	req := &generativelanguage.GenerateContentRequest{
		Contents: []*generativelanguage.Content{{
			Role:  "user",
			Parts: []*generativelanguage.Part{{Text: prompt}},
		}},
	}
	if g.maxTokens > 0 {
		req.GenerationConfig = &generativelanguage.GenerationConfig{MaxOutputTokens: int64(g.maxTokens)}
	}

	call := metrics.StartCall(metrics.KindGeneration, provider, g.model)
	resp, err := g.svc.Models.GenerateContent(g.model, req).Context(ctx).Do()
	if err != nil {
		call.Fail(errorType(err))
		return domain.GenerationResult{}, parseAPIError("generation", err, domain.ErrGenerationService)
	}

	text, ok := candidateText(resp)
	if !ok {
		call.Fail("empty_response")
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "blocked: " + resp.PromptFeedback.BlockReason
		}
		return domain.GenerationResult{}, fmt.Errorf("empty generation response (%s): %w", reason, domain.ErrGenerationService)
	}

	var promptTokens, completionTokens int
	if u := resp.UsageMetadata; u != nil {
		promptTokens = int(u.PromptTokenCount)
		completionTokens = int(u.CandidatesTokenCount)
	}

	call.Done(promptTokens, completionTokens)

	return domain.GenerationResult{
		Text:             text,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}, nil
}

func candidateText(resp *generativelanguage.GenerateContentResponse) (string, bool) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", false
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	return text, text != ""
}
