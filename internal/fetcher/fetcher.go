// Package fetcher downloads remote documents to scoped temporary files and
// extracts their plain text.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes = 50 << 20

// sniffLen is the number of leading bytes used for content detection.
const sniffLen = 512

// Extractor reads plain text from a local document file.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Config holds fetcher settings.
type Config struct {
	Client    *http.Client
	Extractor Extractor
	TempDir   string
	MaxBytes  int64
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Fetcher downloads a document and returns its extracted text.
type Fetcher struct {
	client    *http.Client
	extractor Extractor
	tempDir   string
	maxBytes  int64
	logger    *zap.Logger
}

// New creates a fetcher. Zero-value fields fall back to defaults.
func New(cfg Config) *Fetcher {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	extractor := cfg.Extractor
	if extractor == nil {
		extractor = PDFExtractor{}
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:    client,
		extractor: extractor,
		tempDir:   cfg.TempDir,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// Fetch downloads rawURL, checks that it is a PDF and extracts its text.
// The temporary file is removed on every return path.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid document url %q: %w", rawURL, domain.ErrFetch)
	}

	tmp, err := os.CreateTemp(f.tempDir, "docqa-*-"+TempName(u))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		if rmErr := os.Remove(tmp.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			f.logger.Warn("Failed to remove temp file", zap.String("path", tmp.Name()), zap.Error(rmErr))
		}
	}()

	dl, err := f.download(ctx, u.String(), tmp)
	if err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	if !isPDF(u, dl) {
		return "", fmt.Errorf("content type %q, sniffed %s: %w",
			dl.contentType, http.DetectContentType(dl.head), domain.ErrUnsupportedFormat)
	}

	f.logger.Debug("Document downloaded",
		zap.String("url", u.Redacted()),
		zap.String("content_type", dl.contentType),
		zap.Int64("bytes", dl.size),
	)

	text, err := f.extractor.Extract(ctx, tmp.Name())
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrEmptyExtraction
	}
	return text, nil
}

// downloaded is what a completed download tells us about the document.
type downloaded struct {
	head        []byte
	size        int64
	contentType string
}

// download streams the body into dst and keeps its leading bytes, size and Content-Type.
func (f *Fetcher) download(ctx context.Context, rawURL string, dst io.Writer) (downloaded, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return downloaded{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return downloaded{}, fmt.Errorf("download: %v: %w", err, domain.ErrFetch)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return downloaded{}, fmt.Errorf("download: HTTP %d: %w", resp.StatusCode, domain.ErrFetch)
	}

	sniff := &prefixWriter{limit: sniffLen}
	n, err := io.Copy(io.MultiWriter(dst, sniff), io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return downloaded{}, fmt.Errorf("download body: %v: %w", err, domain.ErrFetch)
	}
	if n > f.maxBytes {
		return downloaded{}, fmt.Errorf("document exceeds %d bytes: %w", f.maxBytes, domain.ErrFetch)
	}
	return downloaded{head: sniff.buf, size: n, contentType: resp.Header.Get("Content-Type")}, nil
}

var pdfMagic = []byte("%PDF-")

// isPDF accepts a .pdf URL path, a %PDF- marker in the leading bytes, or an
// application/pdf Content-Type. Readers tolerate junk before the marker.
func isPDF(u *url.URL, dl downloaded) bool {
	if strings.EqualFold(path.Ext(u.Path), ".pdf") {
		return true
	}
	if bytes.Contains(dl.head, pdfMagic) {
		return true
	}
	mt, _, err := mime.ParseMediaType(dl.contentType)
	return err == nil && mt == "application/pdf"
}

// TempName derives a filesystem-safe file name from the URL path.
func TempName(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.ReplaceAll(base, " ", "_")

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	name := strings.TrimLeft(b.String(), ".")
	if len(name) > 64 {
		name = name[len(name)-64:]
	}
	if name == "" {
		return "document"
	}
	return name
}

// prefixWriter keeps the first limit bytes written to it.
type prefixWriter struct {
	buf   []byte
	limit int
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	if room := w.limit - len(w.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		w.buf = append(w.buf, p[:room]...)
	}
	return len(p), nil
}
