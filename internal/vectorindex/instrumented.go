package vectorindex

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
	"github.com/kailas-cloud/docqa/internal/tracing"
)

// InstrumentedStore records metrics, spans and debug logs around a Store.
type InstrumentedStore struct {
	inner  Store
	driver string
	logger *zap.Logger
}

// Instrument wraps s; driver labels metrics (qdrant, valkey, memory).
func Instrument(s Store, driver string, logger *zap.Logger) *InstrumentedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedStore{inner: s, driver: driver, logger: logger}
}

func (s *InstrumentedStore) observe(ctx context.Context, op, name string, fn func(context.Context) error) error {
	ctx, span := tracing.Start(ctx, "vectorindex."+op,
		attribute.String("docqa.index", name),
		attribute.String("docqa.vector_driver", s.driver),
	)
	start := time.Now()
	err := fn(ctx)
	tracing.End(span, err)
	metrics.ObserveIndexOp(s.driver, op, err)

	fields := []zap.Field{
		zap.String("driver", s.driver),
		zap.String("op", op),
		zap.String("index", name),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		s.logger.Warn("vector index operation failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Debug("vector index operation", fields...)
	}
	return err
}

// Exists implements Store.
func (s *InstrumentedStore) Exists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := s.observe(ctx, "exists", name, func(ctx context.Context) error {
		var err error
		ok, err = s.inner.Exists(ctx, name)
		return err
	})
	return ok, err
}

// Create implements Store.
func (s *InstrumentedStore) Create(ctx context.Context, name string, dimension int) error {
	return s.observe(ctx, "create", name, func(ctx context.Context) error {
		return s.inner.Create(ctx, name, dimension)
	})
}

// Ready is not counted; WaitReady calls it in a loop.
func (s *InstrumentedStore) Ready(ctx context.Context, name string) (bool, error) {
	return s.inner.Ready(ctx, name)
}

// Upsert implements Store.
func (s *InstrumentedStore) Upsert(ctx context.Context, name string, records []domain.Record) error {
	return s.observe(ctx, "upsert", name, func(ctx context.Context) error {
		return s.inner.Upsert(ctx, name, records)
	})
}

// Query implements Store.
func (s *InstrumentedStore) Query(ctx context.Context, name string, vector []float32, topK int) ([]domain.Match, error) {
	var matches []domain.Match
	err := s.observe(ctx, "query", name, func(ctx context.Context) error {
		var err error
		matches, err = s.inner.Query(ctx, name, vector, topK)
		return err
	})
	return matches, err
}

// Ping implements Store.
func (s *InstrumentedStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close implements Store.
func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
