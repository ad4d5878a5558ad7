package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// GeneratorConfig adds sampling settings to Config.
type GeneratorConfig struct {
	Config
	Temperature float32
	MaxTokens   int
}

// Generator answers prompts through /chat/completions.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	provider    string
	logger      *zap.Logger
}

// NewGenerator creates a generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	return &Generator{
		client:      newClient(cfg.Config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		provider:    cfg.provider(),
		logger:      cfg.logger(),
	}
}

// Generate implements domain.Generator. The prompt is sent as one user message.
func (g *Generator) Generate(ctx context.Context, prompt string) (domain.GenerationResult, error) {
	call := metrics.StartCall(metrics.KindGeneration, g.provider, g.model)
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		call.Fail(errorType(err))
		return domain.GenerationResult{}, apiError("generation", err, domain.ErrGenerationService)
	}
	if len(resp.Choices) == 0 {
		call.Fail("empty_response")
		return domain.GenerationResult{}, fmt.Errorf("completion without choices: %w", domain.ErrGenerationService)
	}

	choice := resp.Choices[0]
	call.Done(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if choice.FinishReason == openai.FinishReasonLength {
		g.logger.Warn("Answer truncated at max tokens",
			zap.String("model", g.model), zap.Int("max_tokens", g.maxTokens))
	}

	return domain.GenerationResult{
		Text:             strings.TrimSpace(choice.Message.Content),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
