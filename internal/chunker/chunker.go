// Package chunker splits extracted document text into overlapping chunks.
//
// Splitting is recursive: the text is cut on the coarsest separator it contains,
// pieces are greedily merged up to the chunk size, and pieces that are still too
// large are split again on the next finer separator. The final separator is the
// empty string, which splits into single characters.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the default chunk size in characters.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of characters shared by adjacent chunks.
const DefaultChunkOverlap = 100

// DefaultSeparators are tried in order: paragraph, line, word, character.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits text into bounded, overlapping chunks.
type Chunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the maximum chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between adjacent chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithSeparators replaces the separator hierarchy. The empty string is appended
// when missing so that every piece can be reduced below the chunk size.
func WithSeparators(seps ...string) Option {
	return func(c *Chunker) {
		if len(seps) == 0 {
			return
		}
		c.separators = append([]string(nil), seps...)
		if c.separators[len(c.separators)-1] != "" {
			c.separators = append(c.separators, "")
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// ChunkSize returns the configured chunk size.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the chunks of text in document order.
// The result is deterministic for a given text and configuration.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.split(text, c.separators)
}

func (c *Chunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			finer = separators[i+1:]
			break
		}
	}

	var chunks, good []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if length(piece) < c.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, c.merge(good)...)
			good = nil
		}
		if len(finer) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, c.split(piece, finer)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, c.merge(good)...)
	}
	return chunks
}

// merge joins consecutive pieces into chunks of at most chunkSize characters,
// carrying up to overlap characters of trailing pieces into the next chunk.
func (c *Chunker) merge(pieces []string) []string {
	var chunks, window []string
	total := 0

	for _, p := range pieces {
		n := length(p)
		if total+n > c.chunkSize && len(window) > 0 {
			if doc := join(window); doc != "" {
				chunks = append(chunks, doc)
			}
			for total > c.overlap || (total+n > c.chunkSize && total > 0) {
				total -= length(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += n
	}

	if doc := join(window); doc != "" {
		chunks = append(chunks, doc)
	}
	return chunks
}

// splitKeepingSeparator cuts text on sep and attaches each separator to the
// start of the piece that follows it. Empty pieces are dropped.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}

func join(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
