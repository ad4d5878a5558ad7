package domain

import "errors"

var (
	// ErrFetch signals a network or HTTP failure while downloading a document.
	ErrFetch = errors.New("document fetch failed")
	// ErrUnsupportedFormat signals a document that is not a PDF.
	ErrUnsupportedFormat = errors.New("unsupported format: only PDF documents are supported")
	// ErrEmptyExtraction signals a valid document without extractable text.
	ErrEmptyExtraction = errors.New("no text could be extracted from the document")
	// ErrEmbeddingService signals an embedding provider failure.
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrIndexStore signals a vector index failure.
	ErrIndexStore = errors.New("vector index error")
	// ErrIndexNotReady signals that a freshly created index did not become ready in time.
	ErrIndexNotReady = errors.New("vector index not ready")
	// ErrGenerationService signals a text generation failure.
	ErrGenerationService = errors.New("generation service error")
	// ErrNoIndex signals a query without a resolvable index.
	ErrNoIndex = errors.New("no document has been ingested")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrUnauthorized signals a missing or invalid bearer token. Its text is the 401 body message.
	ErrUnauthorized = errors.New("Invalid or missing API Key") //nolint:revive,stylecheck // wire message
	// ErrInvalidRequest signals a malformed request.
	ErrInvalidRequest = errors.New("invalid request")
)

// Sentinels returns the errors whose text is safe to show to API clients.
func Sentinels() []error {
	return []error{
		ErrFetch, ErrUnsupportedFormat, ErrEmptyExtraction, ErrEmbeddingService,
		ErrIndexStore, ErrIndexNotReady, ErrGenerationService, ErrNoIndex,
		ErrVectorDimMismatch, ErrUnauthorized, ErrInvalidRequest,
	}
}

// SafeMessage returns the text of the first known sentinel wrapped by err,
// or a generic message when err carries none.
func SafeMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, s := range Sentinels() {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}
