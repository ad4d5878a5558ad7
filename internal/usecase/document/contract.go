package document

import (
	"context"
)

// Fetcher downloads a document and returns its plain text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Chunker splits text into ordered, overlapping chunks.
type Chunker interface {
	Split(text string) []string
}
