// Package openai adapts OpenAI-compatible APIs (OpenAI, Nebius, vLLM, ...) to the
// domain embedder and generator interfaces via go-openai.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const defaultProvider = "openai"

// Config holds the settings shared by Embedder and Generator.
type Config struct {
	APIKey  string
	BaseURL string // empty uses api.openai.com
	Model   string
	// Provider labels metrics and logs, e.g. "nebius".
	Provider string
	Timeout  time.Duration
	Logger   *zap.Logger
}

func (c Config) provider() string {
	if c.Provider != "" {
		return c.Provider
	}
	return defaultProvider
}

func (c Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func newClient(cfg Config) *openai.Client {
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return openai.NewClientWithConfig(cc)
}

// statusOf returns the HTTP status of an API failure, or 0 for transport errors.
func statusOf(err error) int {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	return 0
}

// errorType is the metrics label for a failed call.
func errorType(err error) string {
	switch code := statusOf(err); {
	case code == http.StatusTooManyRequests:
		return "rate_limited"
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return "auth"
	case code >= 500:
		return "server"
	case code != 0:
		return "api_error"
	default:
		return "transport"
	}
}

// apiError builds a client-facing error wrapping sentinel. The provider's own
// message is kept for logs; callers only ever show the sentinel text.
func apiError(kind string, err, sentinel error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := nebiusDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("%s API error %d: %s: %w", kind, reqErr.HTTPStatusCode, detail, sentinel)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w", kind, apiErr.HTTPStatusCode, apiErr.Message, sentinel)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s request: %w: %w", kind, err, sentinel)
	}
	return fmt.Errorf("%s request failed: %w", kind, sentinel)
}

// nebiusDetail reads the {"detail": "..."} error body some compatible providers return.
func nebiusDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Detail
	}
	return ""
}
