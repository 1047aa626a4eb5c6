package search

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Provider is a remote similarity-search backend.
type Provider interface {
	// Name returns the provider name used in logs and metrics
	Name() string

	// Search executes a single query. Implementations must not retry.
	Search(ctx context.Context, q Query) (*Response, error)

	// Health checks whether the provider is reachable
	Health(ctx context.Context) error
}

// FieldBoost weights one document field in the relevance computation.
type FieldBoost struct {
	Field string  `json:"field" yaml:"field"`
	Boost float64 `json:"boost" yaml:"boost"`
}

// Query is the provider-neutral search request.
type Query struct {
	Text     string       `json:"query"`
	Fields   []FieldBoost `json:"fields"`
	Limit    int          `json:"limit"`
	Offset   int          `json:"offset"`
	Filter   string       `json:"filter,omitempty"`
	MinScore float64      `json:"min_score"`
}

// Document is one raw hit. Data is the provider-defined bag of source fields.
type Document struct {
	ID    string          `json:"id"`
	Score float64         `json:"score"`
	Data  json.RawMessage `json:"data"`
}

// Response is the raw provider result in relevance order.
type Response struct {
	Total     int           `json:"total"`
	Documents []Document    `json:"documents"`
	Latency   time.Duration `json:"-"`
}

// Error codes carried by ProviderError
const (
	CodeRequest     = "REQUEST_ERROR"
	CodeHTTP        = "HTTP_ERROR"
	CodeTimeout     = "TIMEOUT"
	CodeRead        = "READ_ERROR"
	CodeStatus      = "STATUS_ERROR"
	CodeMalformed   = "MALFORMED_RESPONSE"
	CodeUnavailable = "UNAVAILABLE"
)

// ProviderError represents an error from a search provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is one of the Code* constants
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code, 0 when no response was received
	StatusCode int

	// Retryable indicates if the caller may retry the request
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// AsProviderError unwraps err into a ProviderError when possible.
func AsProviderError(err error) (*ProviderError, bool) {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if provErr, ok := AsProviderError(err); ok {
		return provErr.Retryable
	}
	return false
}
