// Package memory is an in-process vector index using brute-force cosine similarity.
package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

var _ vectorindex.Store = (*Store)(nil)

type index struct {
	dimension int
	order     []string
	records   map[string]domain.Record
}

// Store keeps every index in memory. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	indexes map[string]*index
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{indexes: make(map[string]*index)}
}

// Exists reports whether the named index has been created.
func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexes[name]
	return ok, nil
}

// Create registers an empty index. Creating an existing index is a no-op.
func (s *Store) Create(_ context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", domain.ErrIndexStore)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[name]; !ok {
		s.indexes[name] = &index{dimension: dimension, records: make(map[string]domain.Record)}
	}
	return nil
}

// Ready is true as soon as the index exists.
func (s *Store) Ready(ctx context.Context, name string) (bool, error) {
	return s.Exists(ctx, name)
}

// Upsert inserts or replaces records by ID.
func (s *Store) Upsert(_ context.Context, name string, records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[name]
	if !ok {
		return fmt.Errorf("%w: index %s not found", domain.ErrIndexStore, name)
	}
	for _, r := range records {
		if len(r.Values) != idx.dimension {
			return fmt.Errorf("%w: record %s has %d values, index expects %d",
				domain.ErrVectorDimMismatch, r.ID, len(r.Values), idx.dimension)
		}
		if _, seen := idx.records[r.ID]; !seen {
			idx.order = append(idx.order, r.ID)
		}
		idx.records[r.ID] = domain.Record{ID: r.ID, Values: slices.Clone(r.Values), Text: r.Text}
	}
	return nil
}

// Query ranks every record by cosine similarity. Ties keep insertion order.
func (s *Store) Query(_ context.Context, name string, vector []float32, topK int) ([]domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: index %s not found", domain.ErrIndexStore, name)
	}
	if topK <= 0 || len(idx.order) == 0 {
		return []domain.Match{}, nil
	}

	matches := make([]domain.Match, 0, len(idx.order))
	for _, id := range idx.order {
		r := idx.records[id]
		matches = append(matches, domain.Match{ID: r.ID, Text: r.Text, Score: cosine(vector, r.Values)})
	}
	slices.SortStableFunc(matches, func(a, b domain.Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len returns the number of records in the named index.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.indexes[name]; ok {
		return len(idx.records)
	}
	return 0
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := range n {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
