package api

// =============================================================================
// Response Types
// =============================================================================

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Stage is the pipeline step that failed, when known.
	Stage string `json:"stage,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// Error codes.
const (
	CodeInvalidDocument  = "invalid_document"
	CodeInvalidRequest   = "invalid_request"
	CodeBodyTooLarge     = "body_too_large"
	CodeResolutionFailed = "resolution_failed"
	CodeCompileFailed    = "compile_failed"
	CodeInternal         = "internal_error"
)
