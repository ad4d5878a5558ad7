// Package valkey keeps each document's chunks as hashes behind an FT vector index.
package valkey

import (
	"context"
	"errors"
	"fmt"

	dbvalkey "github.com/kailas-cloud/docqa/internal/db/valkey"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

var _ vectorindex.Store = (*Store)(nil)

// HNSW parameters used for every chunk index.
const (
	hnswM              = 16
	hnswEFConstruction = 200
)

// chunkDB is the part of the Valkey client the index needs.
type chunkDB interface {
	Ping(ctx context.Context) error
	Close()
	CreateChunkIndex(ctx context.Context, ix dbvalkey.ChunkIndex) error
	IndexState(ctx context.Context, name string) (dbvalkey.IndexState, error)
	WriteChunks(ctx context.Context, index string, chunks []dbvalkey.Chunk) error
	NearestChunks(ctx context.Context, index string, vector []float32, k int) ([]dbvalkey.Neighbor, error)
}

// Store implements vectorindex.Store on Valkey search.
type Store struct {
	db chunkDB
}

// New wraps a connected client.
func New(db chunkDB) *Store {
	return &Store{db: db}
}

// Exists reports whether the FT index is defined.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	st, err := s.db.IndexState(ctx, name)
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %w", domain.ErrIndexStore, name, err)
	}
	return st.Exists, nil
}

// Create defines a cosine HNSW index over the "<name>:" hashes.
// An index that already exists is not an error.
func (s *Store) Create(ctx context.Context, name string, dimension int) error {
	err := s.db.CreateChunkIndex(ctx, dbvalkey.ChunkIndex{
		Name:           name,
		Dimension:      dimension,
		M:              hnswM,
		EFConstruction: hnswEFConstruction,
	})
	if err != nil && !errors.Is(err, dbvalkey.ErrIndexExists) {
		return fmt.Errorf("%w: create %s: %w", domain.ErrIndexStore, name, err)
	}
	return nil
}

// Ready is false while the index is missing or still scanning existing hashes.
func (s *Store) Ready(ctx context.Context, name string) (bool, error) {
	st, err := s.db.IndexState(ctx, name)
	if err != nil {
		return false, fmt.Errorf("%w: info %s: %w", domain.ErrIndexStore, name, err)
	}
	return st.Exists && !st.Indexing, nil
}

// Upsert writes records in one pipelined round-trip. Rewriting an ID replaces its hash.
func (s *Store) Upsert(ctx context.Context, name string, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	chunks := make([]dbvalkey.Chunk, len(records))
	for i, r := range records {
		chunks[i] = dbvalkey.Chunk{ID: r.ID, Text: r.Text, Vector: r.Values}
	}
	if err := s.db.WriteChunks(ctx, name, chunks); err != nil {
		return fmt.Errorf("%w: upsert %s: %w", domain.ErrIndexStore, name, err)
	}
	return nil
}

// Query returns the topK nearest chunks. Score is cosine similarity clamped to [0, 1].
func (s *Store) Query(ctx context.Context, name string, vector []float32, topK int) ([]domain.Match, error) {
	if topK <= 0 {
		return []domain.Match{}, nil
	}
	hits, err := s.db.NearestChunks(ctx, name, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", domain.ErrIndexStore, name, err)
	}

	matches := make([]domain.Match, 0, min(len(hits), topK))
	for _, h := range hits[:min(len(hits), topK)] {
		matches = append(matches, domain.Match{
			ID:    h.ID,
			Text:  h.Text,
			Score: min(1, max(0, 1-h.Distance)),
		})
	}
	return matches, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIndexStore, err)
	}
	return nil
}

// Close releases the client.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}
