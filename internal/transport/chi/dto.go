package chi

// ErrorCode is a machine-readable error class in ErrorResponse.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeIngestFailed      ErrorCode = "ingest_failed"
	CodeUnsupportedFormat ErrorCode = "unsupported_format"
	CodeEmptyDocument     ErrorCode = "empty_document"
	CodeInternalError     ErrorCode = "internal_error"
)

// RunRequest is the body of POST /hackrx/run.
type RunRequest struct {
	Documents string   `json:"documents"`
	Questions []string `json:"questions"`
}

// RunResponse carries one answer per question, in question order.
type RunResponse struct {
	Answers []string `json:"answers"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
