package document

import (
	"context"
	"sync"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Session remembers the last successfully ingested index so later queries can omit it.
// Use one Session per request or per sequential CLI run.
type Session struct {
	p *Processor

	mu    sync.Mutex
	index string
}

// NewSession opens a session on the processor.
func (p *Processor) NewSession() *Session {
	return &Session{p: p}
}

// Ingest ingests url and records its index on success.
func (s *Session) Ingest(ctx context.Context, url string) domain.ProcessingResult {
	res := s.p.Ingest(ctx, url)
	if res.Success {
		s.mu.Lock()
		s.index = res.IndexName
		s.mu.Unlock()
	}
	return res
}

// Query searches indexName, or the last ingested index when indexName is empty.
func (s *Session) Query(ctx context.Context, indexName, question string, topK int) ([]domain.Match, error) {
	if indexName == "" {
		indexName = s.Index()
	}
	return s.p.Query(ctx, indexName, question, topK)
}

// Index returns the last ingested index name, or "" if none.
func (s *Session) Index() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}
