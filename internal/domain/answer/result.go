// Package answer holds the per-question outcome of a question batch.
package answer

// Kind classifies how a question was resolved.
type Kind string

// Result kinds.
const (
	KindOK               Kind = "ok"
	KindQueryFailed      Kind = "query_failed"
	KindGenerationFailed Kind = "generation_failed"
)

// Result is the outcome of answering one question.
type Result struct {
	question string
	text     string
	kind     Kind
	err      error
}

// NewOK creates a successful result.
func NewOK(question, text string) Result {
	return Result{question: question, text: text, kind: KindOK}
}

// NewFailed creates a failed result of the given kind.
func NewFailed(question string, kind Kind, err error) Result {
	return Result{question: question, kind: kind, err: err}
}

// Question returns the question text.
func (r Result) Question() string { return r.question }

// Text returns the answer text. Empty for failed results.
func (r Result) Text() string { return r.text }

// Kind returns the resolution kind.
func (r Result) Kind() Kind { return r.kind }

// Err returns the failure cause, if any.
func (r Result) Err() error { return r.err }

// OK reports whether the question was answered.
func (r Result) OK() bool { return r.kind == KindOK }
