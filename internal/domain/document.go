package domain

import (
	"crypto/md5" //nolint:gosec // naming only, not a security boundary
	"encoding/hex"
)

// DefaultIndexPrefix is prepended to the URL hash to form an index name.
const DefaultIndexPrefix = "hackrx-doc-"

// IndexName derives the per-document index name from the document URL.
// The same URL always maps to the same name.
func IndexName(prefix, url string) string {
	h := md5.Sum([]byte(url)) //nolint:gosec // see import
	return prefix + hex.EncodeToString(h[:])[:8]
}

// Record is one embedded chunk written to a vector index.
type Record struct {
	ID     string
	Values []float32
	Text   string
}

// Match is a stored record returned by similarity search, highest score first.
type Match struct {
	ID    string
	Text  string
	Score float64
}

// ProcessingResult is the outcome of ingesting one document.
type ProcessingResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	ChunksProcessed int    `json:"chunks_processed"`
	TextLength      int    `json:"text_length"`
	IndexName       string `json:"index_name"`

	// Err is the failure cause, kept for errors.Is at the boundary.
	Err error `json:"-"`
}
