// Package gemini adapts the Google Generative Language API to the embedding
// and generation contracts.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	generativelanguage "google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	defaultEndpoint = "https://generativelanguage.googleapis.com/"
	defaultTimeout  = 60 * time.Second
	provider        = "gemini"
)

// Config holds the Gemini API settings shared by Embedder and Generator.
type Config struct {
	APIKey   string
	Model    string
	Endpoint string // override for proxies and tests
	Timeout  time.Duration
}

// apiKeyTransport sends the key as a header so it never appears in URLs or logs.
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("x-goog-api-key", t.key)
	return t.base.RoundTrip(r)
}

func newService(ctx context.Context, cfg Config) (*generativelanguage.Service, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: &apiKeyTransport{key: cfg.APIKey, base: http.DefaultTransport},
	}
	svc, err := generativelanguage.NewService(ctx,
		option.WithHTTPClient(client),
		option.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("create generative language service: %w", err)
	}
	return svc, nil
}

// modelName normalizes "embedding-001" to "models/embedding-001".
func modelName(m string) string {
	if strings.HasPrefix(m, "models/") || strings.HasPrefix(m, "tunedModels/") {
		return m
	}
	return "models/" + m
}

// parseAPIError turns a googleapi.Error into a readable message wrapped with sentinel.
func parseAPIError(kind string, err error, sentinel error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return fmt.Errorf("%s API error %d: %s: %w", kind, gerr.Code, msg, sentinel)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s request: %w: %w", kind, err, sentinel)
	}
	return fmt.Errorf("%s request failed: %w", kind, sentinel)
}

// errorType labels a failure for the errors metric.
func errorType(err error) string {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return "transport"
	}
	switch {
	case gerr.Code == http.StatusTooManyRequests:
		return "rate_limited"
	case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
		return "auth"
	case gerr.Code >= 500:
		return "server"
	default:
		return "api_error"
	}
}
