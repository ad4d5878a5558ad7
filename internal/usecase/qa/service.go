// Package qa runs the full ingest-then-answer flow for a batch of questions.
package qa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/answer"
	logpkg "github.com/kailas-cloud/docqa/internal/logger"
)

// DefaultTopK is how many chunks are retrieved per question.
const DefaultTopK = 5

// Report is the outcome of one run.
type Report struct {
	Ingest  domain.ProcessingResult
	Results []answer.Result
}

// Answers returns the answer strings in question order. Failed questions are
// rendered with format.
func (r Report) Answers(format func(answer.Result) string) []string {
	out := make([]string, len(r.Results))
	for i, res := range r.Results {
		if res.OK() {
			out[i] = res.Text()
		} else {
			out[i] = format(res)
		}
	}
	return out
}

// Service ingests a document and answers questions about it.
type Service struct {
	sessions SessionFactory
	answerer Answerer
	topK     int
	logger   *zap.Logger
}

// New creates a qa service.
func New(sessions SessionFactory, answerer Answerer, topK int, logger *zap.Logger) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{sessions: sessions, answerer: answerer, topK: topK, logger: logger}
}

// Run ingests url and answers each question in order.
// An ingest failure aborts the run; per-question failures are kept in their result slot.
func (s *Service) Run(ctx context.Context, url string, questions []string) (Report, error) {
	session := s.sessions()

	ingest := session.Ingest(ctx, url)
	if !ingest.Success {
		err := ingest.Err
		if err == nil {
			err = errors.New(ingest.Message)
		}
		return Report{Ingest: ingest}, fmt.Errorf("ingest %s: %w", ingest.IndexName, err)
	}

	ctx, _ = logpkg.With(ctx, s.logger, zap.String("index", ingest.IndexName))
	results := make([]answer.Result, len(questions))
	for i, q := range questions {
		results[i] = s.answer(ctx, session, ingest.IndexName, q)
	}
	return Report{Ingest: ingest, Results: results}, nil
}

func (s *Service) answer(ctx context.Context, session Session, index, question string) answer.Result {
	start := time.Now()
	log := logpkg.FromContextOr(ctx, s.logger)

	matches, err := session.Query(ctx, index, question, s.topK)
	if err != nil {
		log.Warn("Question query failed", zap.Error(err))
		return answer.NewFailed(question, answer.KindQueryFailed, err)
	}

	text, err := s.answerer.Answer(ctx, question, matches)
	if err != nil {
		return answer.NewFailed(question, answer.KindGenerationFailed, err)
	}

	log.Debug("Question answered",
		zap.Int("matches", len(matches)),
		zap.Duration("duration", time.Since(start)),
	)
	return answer.NewOK(question, text)
}
