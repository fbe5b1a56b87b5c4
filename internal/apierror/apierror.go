// Package apierror provides standardized error response structures for the API.
// All errors returned to clients go through this package to ensure consistency
// and to prevent leaking internal details (stack traces, DB errors, etc.).
package apierror

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Detail string `json:"detail"`
	// Kind is the machine-readable error class (unattributable, conflict, ...).
	Kind string `json:"kind,omitempty"`
	// RequestID lets an operator find the log lines of a failed request.
	RequestID string `json:"request_id,omitempty"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// NewKind builds an error envelope tagged with a machine-readable kind.
func NewKind(kind, msg string) *APIError {
	return &APIError{Detail: msg, Kind: kind}
}

// WithRequestID tags the envelope with the request id.
func (e *APIError) WithRequestID(id string) *APIError {
	e.RequestID = id
	return e
}

// Validation wraps multiple field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "validation failed", Fields: fields}
}
