package qa

import (
	"context"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Session ingests one document and answers searches against it.
type Session interface {
	Ingest(ctx context.Context, url string) domain.ProcessingResult
	Query(ctx context.Context, indexName, question string, topK int) ([]domain.Match, error)
}

// SessionFactory opens a fresh Session for one run.
type SessionFactory func() Session

// Answerer turns retrieved matches into an answer.
type Answerer interface {
	Answer(ctx context.Context, question string, matches []domain.Match) (string, error)
}
