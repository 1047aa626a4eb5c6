package services

import (
	"errors"
	"fmt"
	"sort"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeUpstream     ErrorType = "upstream"
	ErrorTypeCache        ErrorType = "cache"
	ErrorTypeInternal     ErrorType = "internal"
)

// Detail keys shared between the service layer and the HTTP error mapping.
const (
	DetailViolations        = "violations"
	DetailUpstreamStatus    = "upstream_status"
	DetailTimeout           = "timeout"
	DetailMalformedResponse = "malformed_response"
	DetailCacheOperation    = "operation"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Violation is a single failed input constraint.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidationError builds one validation error carrying every violation,
// ordered by field then message so the output is stable.
func NewValidationError(violations []Violation) *DomainError {
	sorted := make([]Violation, len(violations))
	copy(sorted, violations)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Field != sorted[j].Field {
			return sorted[i].Field < sorted[j].Field
		}
		return sorted[i].Message < sorted[j].Message
	})

	msg := "request validation failed"
	if len(sorted) == 1 {
		msg = "request validation failed: " + sorted[0].Message
	} else if len(sorted) > 1 {
		msg = fmt.Sprintf("request validation failed: %d violations", len(sorted))
	}

	return NewDomainError(ErrorTypeValidation, msg, nil).WithDetail(DetailViolations, sorted)
}

// NewUpstreamError wraps a search provider failure. status is the HTTP status
// returned by the provider, or 0 when no response was received.
func NewUpstreamError(status int, message string, err error) *DomainError {
	return NewDomainError(ErrorTypeUpstream, message, err).WithDetail(DetailUpstreamStatus, status)
}

// NewCacheError wraps a cache store failure for the given operation (get, set).
func NewCacheError(op string, err error) *DomainError {
	return NewDomainError(ErrorTypeCache, "cache "+op+" failed", err).WithDetail(DetailCacheOperation, op)
}

// Token sentinels returned by bearer token validation.
var (
	ErrInvalidToken = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrTokenExpired = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)
)

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsUpstreamError checks if an error came from the search provider
func IsUpstreamError(err error) bool {
	return GetErrorType(err) == ErrorTypeUpstream
}

// IsCacheError checks if an error came from the cache store
func IsCacheError(err error) bool {
	return GetErrorType(err) == ErrorTypeCache
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsUpstreamTimeout reports whether an upstream error was caused by a deadline.
func IsUpstreamTimeout(err error) bool {
	if !IsUpstreamError(err) {
		return false
	}
	timeout, _ := GetErrorDetails(err)[DetailTimeout].(bool)
	return timeout
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// GetViolations returns the violations carried by a validation error.
func GetViolations(err error) []Violation {
	v, _ := GetErrorDetails(err)[DetailViolations].([]Violation)
	return v
}

// UpstreamStatus returns the provider status carried by an upstream error, or 0.
func UpstreamStatus(err error) int {
	status, _ := GetErrorDetails(err)[DetailUpstreamStatus].(int)
	return status
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
