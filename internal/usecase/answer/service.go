// Package answer turns retrieved chunks into an answer through a text generator.
package answer

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/tracing"
)

// NoInformation is returned when nothing relevant was retrieved.
const NoInformation = "I couldn't find relevant information in the document to answer this question."

// DefaultMaxContextMatches is how many top matches go into the prompt.
const DefaultMaxContextMatches = 3

const promptTemplate = `You are answering questions about a document using only the excerpts below.
If the excerpts do not contain the answer, say that the document does not provide this information.
Do not use outside knowledge.

Context:
%s

Question: %s

Answer:`

// Synthesizer builds a grounded prompt and asks the generator to answer it.
type Synthesizer struct {
	gen        domain.Generator
	maxMatches int
	logger     *zap.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithMaxContextMatches limits how many matches are included in the prompt.
func WithMaxContextMatches(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.maxMatches = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an answer synthesizer.
func New(gen domain.Generator, opts ...Option) *Synthesizer {
	s := &Synthesizer{gen: gen, maxMatches: DefaultMaxContextMatches, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Answer answers question from matches, which must be ordered best first.
// With no matches it returns NoInformation without calling the generator.
func (s *Synthesizer) Answer(ctx context.Context, question string, matches []domain.Match) (string, error) {
	if len(matches) == 0 {
		return NoInformation, nil
	}

	ctx, span := tracing.Start(ctx, "answer.generate", attribute.Int("matches", len(matches)))
	res, err := s.gen.Generate(ctx, BuildPrompt(question, matches, s.maxMatches))
	tracing.End(span, err)
	if err != nil {
		s.logger.Warn("Answer generation failed", zap.Error(err))
		return "", fmt.Errorf("generate answer: %w", err)
	}

	domain.UsageFromContext(ctx).AddGenerationTokens(res.PromptTokens + res.CompletionTokens)
	return strings.TrimSpace(res.Text), nil
}

// BuildPrompt joins the first limit match texts with a blank line and embeds them in the prompt.
func BuildPrompt(question string, matches []domain.Match, limit int) string {
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	return fmt.Sprintf(promptTemplate, strings.Join(texts, "\n\n"), question)
}
