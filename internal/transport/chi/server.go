package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/answer"
	"github.com/kailas-cloud/docqa/internal/logger"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	"github.com/kailas-cloud/docqa/internal/usecase/qa"
)

const (
	defaultMaxQuestions = 50
	maxBodyBytes        = 1 << 20
)

// Runner ingests a document and answers questions about it.
type Runner interface {
	Run(ctx context.Context, url string, questions []string) (qa.Report, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the question answering API.
type Server struct {
	runner        Runner
	health        HealthChecker
	maxQuestions  int
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. maxQuestions <= 0 uses the default.
func NewServer(runner Runner, health HealthChecker, maxQuestions int, logger *zap.Logger) *Server {
	if maxQuestions <= 0 {
		maxQuestions = defaultMaxQuestions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:       runner,
		health:       health,
		maxQuestions: maxQuestions,
		logger:       logger,
	}
	// Every failure before answering maps to 400; the code narrows the cause.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusBadRequest, CodeUnsupportedFormat),
		sentinelHandler(domain.ErrEmptyExtraction, http.StatusBadRequest, CodeEmptyDocument),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/hackrx/run", s.Run)
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// Run handles POST /hackrx/run.
func (s *Server) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate(&req); err != nil {
		s.respondError(w, err, err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	report, err := s.runner.Run(ctx, req.Documents, req.Questions)
	setUsageHeaders(w, usage)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	log := logger.FromContext(r.Context())
	failed := 0
	answers := report.Answers(func(res answer.Result) string {
		failed++
		log.Warn("Question failed",
			zap.String("kind", string(res.Kind())),
			zap.Error(res.Err()),
		)
		return "Error processing question: " + domain.SafeMessage(res.Err())
	})
	log.Info("Questions answered",
		zap.String("index", report.Ingest.IndexName),
		zap.Int("chunks", report.Ingest.ChunksProcessed),
		zap.Int("questions", len(answers)),
		zap.Int("failed", failed),
	)

	writeJSON(w, http.StatusOK, RunResponse{Answers: answers})
}

func (s *Server) validate(req *RunRequest) error {
	req.Documents = strings.TrimSpace(req.Documents)
	if req.Documents == "" {
		return fmt.Errorf("%w: documents is required", domain.ErrInvalidRequest)
	}
	u, err := url.Parse(req.Documents)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: documents must be an http(s) URL", domain.ErrInvalidRequest)
	}
	if len(req.Questions) == 0 || len(req.Questions) > s.maxQuestions {
		return fmt.Errorf("%w: questions count must be between 1 and %d", domain.ErrInvalidRequest, s.maxQuestions)
	}
	for i, q := range req.Questions {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("%w: questions[%d] is empty", domain.ErrInvalidRequest, i)
		}
	}
	return nil
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
		s.logger.Warn("Health check not ok", zap.String("status", string(report.Status)))
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.Usage) {
	embedding, generation := usage.Totals()
	if embedding > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(embedding))
	}
	if generation > 0 {
		w.Header().Set("X-Generation-Tokens", strconv.Itoa(generation))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	logger.FromContext(ctx).Warn("Document ingest failed", zap.Error(err))
	s.respondError(w, err, "Error processing document: "+domain.SafeMessage(err))
}

// respondError writes the first matching handler's response, or ingest_failed.
func (s *Server) respondError(w http.ResponseWriter, err error, msg string) {
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	writeError(w, http.StatusBadRequest, CodeIngestFailed, msg)
}
