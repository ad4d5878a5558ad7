package memory

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kailas-cloud/docqa/internal/domain"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	ctx := context.Background()
	if err := s.Create(ctx, "idx", 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.Upsert(ctx, "idx", []domain.Record{
		{ID: "a", Values: []float32{1, 0}, Text: "east"},
		{ID: "b", Values: []float32{0, 1}, Text: "north"},
		{ID: "c", Values: []float32{1, 1}, Text: "north-east"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	return s
}

func TestQuery_OrderedByScore(t *testing.T) {
	s := seeded(t)
	got, err := s.Query(context.Background(), "idx", []float32{1, 0.1}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("unexpected order: %+v", got)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("scores not descending: %+v", got)
	}
}

func TestQuery_EmptyIndex(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Create(ctx, "empty", 2)
	got, err := s.Query(ctx, "empty", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no matches, got %d", len(got))
	}
}

func TestQuery_UnknownIndex(t *testing.T) {
	_, err := New().Query(context.Background(), "missing", []float32{1}, 5)
	if !errors.Is(err, domain.ErrIndexStore) {
		t.Fatalf("expected ErrIndexStore, got %v", err)
	}
}

func TestUpsert_ReplacesByID(t *testing.T) {
	s := seeded(t)
	err := s.Upsert(context.Background(), "idx", []domain.Record{{ID: "a", Values: []float32{0, 1}, Text: "moved"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len("idx") != 3 {
		t.Errorf("expected 3 records, got %d", s.Len("idx"))
	}
	got, _ := s.Query(context.Background(), "idx", []float32{0, 1}, 1)
	// a and b tie; insertion order wins
	if got[0].ID != "a" || got[0].Text != "moved" {
		t.Errorf("unexpected top match: %+v", got[0])
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	s := seeded(t)
	err := s.Upsert(context.Background(), "idx", []domain.Record{{ID: "x", Values: []float32{1, 2, 3}}})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestReady_FollowsExistence(t *testing.T) {
	s := New()
	ctx := context.Background()
	if ok, _ := s.Ready(ctx, "idx"); ok {
		t.Error("missing index should not be ready")
	}
	_ = s.Create(ctx, "idx", 4)
	if ok, _ := s.Ready(ctx, "idx"); !ok {
		t.Error("created index should be ready")
	}
}

func TestCosine(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal: got %f", got)
	}
	if got := cosine([]float32{2, 2}, []float32{1, 1}); math.Abs(got-1) > 1e-9 {
		t.Errorf("parallel: got %f", got)
	}
	if got := cosine([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("zero vector: got %f", got)
	}
}
