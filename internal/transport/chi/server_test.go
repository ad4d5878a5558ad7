package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/chunker"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/fetcher"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	"github.com/kailas-cloud/docqa/internal/usecase/answer"
	"github.com/kailas-cloud/docqa/internal/usecase/document"
	"github.com/kailas-cloud/docqa/internal/usecase/qa"
	"github.com/kailas-cloud/docqa/internal/vectorindex/memory"
)

const (
	testSecret = "team-secret"
	testDim    = 3
)

// --- fakes ---

type staticExtractor struct{ text string }

func (e staticExtractor) Extract(context.Context, string) (string, error) { return e.text, nil }

type constEmbedder struct{ calls atomic.Int32 }

func (e *constEmbedder) Embed(context.Context, string, domain.Purpose) (domain.EmbeddingResult, error) {
	e.calls.Add(1)
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0}, TotalTokens: 3}, nil
}

type echoGenerator struct{ calls atomic.Int32 }

func (g *echoGenerator) Generate(_ context.Context, prompt string) (domain.GenerationResult, error) {
	g.calls.Add(1)
	q := prompt[strings.LastIndex(prompt, "Question: ")+len("Question: "):]
	q = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(q), "Answer:"))
	return domain.GenerationResult{Text: "answer: " + q, PromptTokens: 10, CompletionTokens: 2}, nil
}

type countingStore struct {
	*memory.Store
	upserts atomic.Int32
}

func (s *countingStore) Upsert(ctx context.Context, name string, records []domain.Record) error {
	s.upserts.Add(1)
	return s.Store.Upsert(ctx, name, records)
}

type stubHealth struct{ report healthuc.Report }

func (s stubHealth) Check(context.Context) healthuc.Report { return s.report }

type errRunner struct{ err error }

func (r errRunner) Run(context.Context, string, []string) (qa.Report, error) { return qa.Report{}, r.err }

type env struct {
	handler  http.Handler
	docs     *httptest.Server
	store    *countingStore
	embedder *constEmbedder
	gen      *echoGenerator
}

func newEnv(t *testing.T) *env {
	t.Helper()

	docs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/policy.pdf":
			_, _ = w.Write([]byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n"))
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<!DOCTYPE html><html><body>not a pdf</body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(docs.Close)

	e := &env{
		docs:     docs,
		store:    &countingStore{Store: memory.New()},
		embedder: &constEmbedder{},
		gen:      &echoGenerator{},
	}

	f := fetcher.New(fetcher.Config{
		Client:    docs.Client(),
		Extractor: staticExtractor{text: "The grace period is thirty days.\n\nMaternity is covered after two years."},
		TempDir:   t.TempDir(),
	})
	proc := document.New(f, chunker.New(chunker.WithChunkSize(60), chunker.WithOverlap(10)), e.embedder, e.store,
		document.WithDimension(testDim),
		document.WithPacer(nil),
	)
	runner := qa.New(func() qa.Session { return proc.NewSession() }, answer.New(e.gen), 5, nil)
	health := stubHealth{report: healthuc.Report{
		Status: healthuc.Healthy,
		Checks: map[string]healthuc.CheckResult{healthuc.ComponentVectorIndex: healthuc.CheckOK},
	}}

	e.handler = NewRouter(NewServer(runner, health, 10, nil), RouterConfig{APIKeys: []string{testSecret}})
	return e
}

func (e *env) post(t *testing.T, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/hackrx/run", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

// --- tests ---

func TestRun_ThreeQuestions(t *testing.T) {
	e := newEnv(t)
	questions := []string{"What is the grace period?", "Is maternity covered?", "Any waiting period?"}

	rr := e.post(t, testSecret, RunRequest{Documents: e.docs.URL + "/policy.pdf", Questions: questions})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp RunResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Answers) != len(questions) {
		t.Fatalf("answers = %d, want %d", len(resp.Answers), len(questions))
	}
	for i, a := range resp.Answers {
		if a != "answer: "+questions[i] {
			t.Errorf("answer %d = %q", i, a)
		}
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if rr.Header().Get("X-Generation-Tokens") != "36" {
		t.Errorf("X-Generation-Tokens = %q, want 36", rr.Header().Get("X-Generation-Tokens"))
	}
}

func TestRun_InvalidToken_NoIngest(t *testing.T) {
	e := newEnv(t)

	rr := e.post(t, "wrong", RunRequest{Documents: e.docs.URL + "/policy.pdf", Questions: []string{"q"}})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Errorf("WWW-Authenticate = %q", rr.Header().Get("WWW-Authenticate"))
	}
	if e.embedder.calls.Load() != 0 || e.store.upserts.Load() != 0 {
		t.Error("no ingestion may happen for an unauthorized request")
	}
}

func TestRun_NonPDF_UnsupportedFormat(t *testing.T) {
	e := newEnv(t)

	rr := e.post(t, testSecret, RunRequest{Documents: e.docs.URL + "/page.html", Questions: []string{"q"}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	resp := decodeError(t, rr)
	if resp.Code != CodeUnsupportedFormat {
		t.Errorf("code = %s, want %s", resp.Code, CodeUnsupportedFormat)
	}
	if !strings.Contains(resp.Message, "unsupported format") {
		t.Errorf("message = %q", resp.Message)
	}
	if e.store.upserts.Load() != 0 {
		t.Errorf("upserts = %d, want 0", e.store.upserts.Load())
	}
	if e.gen.calls.Load() != 0 {
		t.Error("generator must not be called after a failed ingest")
	}
}

func TestRun_DownloadFailure_IngestFailed(t *testing.T) {
	e := newEnv(t)

	rr := e.post(t, testSecret, RunRequest{Documents: e.docs.URL + "/missing.pdf", Questions: []string{"q"}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != CodeIngestFailed {
		t.Errorf("code = %s, want %s", resp.Code, CodeIngestFailed)
	}
}

func TestRun_Validation(t *testing.T) {
	e := newEnv(t)
	tooMany := make([]string, 11)
	for i := range tooMany {
		tooMany[i] = "q"
	}

	cases := map[string]RunRequest{
		"missing url":    {Questions: []string{"q"}},
		"ftp url":        {Documents: "ftp://example.com/a.pdf", Questions: []string{"q"}},
		"no questions":   {Documents: "https://example.com/a.pdf"},
		"blank question": {Documents: "https://example.com/a.pdf", Questions: []string{"q", "  "}},
		"too many":       {Documents: "https://example.com/a.pdf", Questions: tooMany},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := e.post(t, testSecret, body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			resp := decodeError(t, rr)
			if resp.Code != CodeValidationFailed {
				t.Errorf("code = %s", resp.Code)
			}
			if !strings.HasPrefix(resp.Message, domain.ErrInvalidRequest.Error()+": ") {
				t.Errorf("message = %q", resp.Message)
			}
		})
	}
}

func TestValidate_WrapsInvalidRequest(t *testing.T) {
	s := NewServer(errRunner{}, stubHealth{}, 2, nil)
	for _, req := range []RunRequest{
		{Questions: []string{"q"}},
		{Documents: "mailto:a@b.c", Questions: []string{"q"}},
		{Documents: "https://example.com/a.pdf", Questions: []string{"a", "b", "c"}},
		{Documents: "https://example.com/a.pdf", Questions: []string{" "}},
	} {
		if err := s.validate(&req); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("validate(%+v) = %v, want ErrInvalidRequest", req, err)
		}
	}
	ok := RunRequest{Documents: " https://example.com/a.pdf ", Questions: []string{"q"}}
	if err := s.validate(&ok); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
}

func TestRun_MalformedBody(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/hackrx/run", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+testSecret)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != CodeBadRequest {
		t.Errorf("code = %s", resp.Code)
	}
}

func TestRun_EmptyDocument(t *testing.T) {
	srv := NewServer(errRunner{err: domain.ErrEmptyExtraction}, stubHealth{}, 0, nil)
	h := NewRouter(srv, RouterConfig{})

	raw, _ := json.Marshal(RunRequest{Documents: "https://example.com/scan.pdf", Questions: []string{"q"}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/hackrx/run", bytes.NewReader(raw)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != CodeEmptyDocument {
		t.Errorf("code = %s, want %s", resp.Code, CodeEmptyDocument)
	}
}

func TestRun_ProviderDetailsNotLeaked(t *testing.T) {
	err := errors.New("dial tcp 10.0.0.7:6334: connection refused")
	srv := NewServer(errRunner{err: err}, stubHealth{}, 0, nil)
	h := NewRouter(srv, RouterConfig{})

	raw, _ := json.Marshal(RunRequest{Documents: "https://example.com/a.pdf", Questions: []string{"q"}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/hackrx/run", bytes.NewReader(raw)))

	resp := decodeError(t, rr)
	if resp.Code != CodeIngestFailed || strings.Contains(resp.Message, "10.0.0.7") {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHealth_ExemptFromAuth(t *testing.T) {
	e := newEnv(t)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Checks[healthuc.ComponentVectorIndex] != "ok" {
		t.Errorf("unexpected health %+v", resp)
	}
}

func TestHealth_Unhealthy503(t *testing.T) {
	srv := NewServer(errRunner{}, stubHealth{report: healthuc.Report{Status: healthuc.Unhealthy}}, 0, nil)
	rr := httptest.NewRecorder()
	NewRouter(srv, RouterConfig{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestJSONRecovererDecodesError(t *testing.T) {
	h := JSONRecoverer(nopLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != CodeInternalError {
		t.Errorf("code = %s", resp.Code)
	}
}

func nopLogger() *zap.Logger { return zap.NewNop() }
