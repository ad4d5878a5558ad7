package domain

import "context"

// Generator produces text for a prompt through a remote model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (GenerationResult, error)
}

// GenerationResult carries generated text and token usage.
type GenerationResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}
