// Package health aggregates component probes into the /health report.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the overall verdict.
type Status string

const (
	// Healthy means every probe passed.
	Healthy Status = "ok"
	// Degraded means only optional components failed; answering still works.
	Degraded Status = "degraded"
	// Unhealthy means the vector index is unreachable.
	Unhealthy Status = "error"
)

// CheckResult is one component's outcome.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// Component names reported in Report.Checks.
const (
	ComponentVectorIndex = "vector_index"
	ComponentEmbedding   = "embedding"
	ComponentCache       = "cache"
)

const defaultCheckTimeout = 5 * time.Second

// Report is the aggregated result of one Check.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type probe struct {
	name     string
	critical bool
	run      func(context.Context) error
}

// Service probes components concurrently.
type Service struct {
	probes  []probe
	timeout time.Duration
	logger  *zap.Logger
}

// New builds a Service. The index is critical; embedding and cache are
// optional and skipped when nil.
func New(index Pinger, embedding EmbeddingChecker, cache Pinger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{timeout: defaultCheckTimeout, logger: logger}
	s.probes = append(s.probes, probe{name: ComponentVectorIndex, critical: true, run: index.Ping})
	if embedding != nil {
		s.probes = append(s.probes, probe{name: ComponentEmbedding, run: embedding.HealthCheck})
	}
	if cache != nil {
		s.probes = append(s.probes, probe{name: ComponentCache, run: cache.Ping})
	}
	return s
}

// WithTimeout bounds each probe. d <= 0 keeps the current value.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check runs every probe and folds the outcomes into a Report.
func (s *Service) Check(ctx context.Context) Report {
	failed := make([]error, len(s.probes))

	var wg sync.WaitGroup
	for i, p := range s.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			failed[i] = p.run(pctx)
		}()
	}
	wg.Wait()

	r := Report{Status: Healthy, Checks: make(map[string]CheckResult, len(s.probes))}
	for i, p := range s.probes {
		if failed[i] == nil {
			r.Checks[p.name] = CheckOK
			continue
		}
		s.logger.Warn("Health check failed", zap.String("component", p.name), zap.Error(failed[i]))
		r.Checks[p.name] = CheckError
		switch {
		case p.critical:
			r.Status = Unhealthy
		case r.Status == Healthy:
			r.Status = Degraded
		}
	}
	return r
}
