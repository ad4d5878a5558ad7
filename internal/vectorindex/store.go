// Package vectorindex defines the per-document vector index contract and
// the readiness wait shared by every driver.
package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Default readiness polling parameters.
const (
	DefaultPollInterval = time.Second
	DefaultReadyTimeout = 60 * time.Second
)

// Store is a named collection of vector records searchable by similarity.
// Implementations wrap remote failures with domain.ErrIndexStore.
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name string, dimension int) error
	Ready(ctx context.Context, name string) (bool, error)
	Upsert(ctx context.Context, name string, records []domain.Record) error
	// Query returns at most topK matches ordered by descending score.
	Query(ctx context.Context, name string, vector []float32, topK int) ([]domain.Match, error)
	Ping(ctx context.Context) error
	Close() error
}

// WaitReady polls Ready every interval until the index reports ready.
// It gives up with domain.ErrIndexNotReady once timeout elapses.
// Probe errors are retried until the ceiling; the last one is reported.
func WaitReady(ctx context.Context, s Store, name string, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		ready, err := s.Ready(ctx, name)
		if err == nil && ready {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for index %s: %w", name, ctx.Err())
		case <-deadline.C:
			if lastErr != nil {
				return fmt.Errorf("%w: %s after %s: %w", domain.ErrIndexNotReady, name, timeout, lastErr)
			}
			return fmt.Errorf("%w: %s after %s", domain.ErrIndexNotReady, name, timeout)
		case <-ticker.C:
		}
	}
}

// EnsureIndex creates the index when it is missing and waits until it is ready.
func EnsureIndex(ctx context.Context, s Store, name string, dimension int, interval, timeout time.Duration) error {
	exists, err := s.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.Create(ctx, name, dimension); err != nil {
			return err
		}
	}
	return WaitReady(ctx, s, name, interval, timeout)
}
