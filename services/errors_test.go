package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeUpstream,
				Message: "search failed",
				Err:     errors.New("connection refused"),
			},
			wantMsg: "upstream: search failed (connection refused)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "invalid input",
			},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_IsAndUnwrap(t *testing.T) {
	baseErr := errors.New("base error")
	err := NewDomainError(ErrorTypeCache, "get failed", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(err))
	assert.True(t, errors.Is(err, NewCacheError("set", nil)))
	assert.False(t, errors.Is(err, ErrInvalidToken))
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", err), NewCacheError("set", nil)))
}

func TestNewValidationError(t *testing.T) {
	t.Run("sorts violations by field", func(t *testing.T) {
		err := NewValidationError([]Violation{
			{Field: "query", Message: "query must be at least 10 characters"},
			{Field: "k", Message: "k must be at most 50"},
			{Field: "k", Message: "k must be an integer"},
		})

		require.True(t, IsValidationError(err))
		violations := GetViolations(err)
		require.Len(t, violations, 3)
		assert.Equal(t, "k", violations[0].Field)
		assert.Equal(t, "k must be an integer", violations[0].Message)
		assert.Equal(t, "k", violations[1].Field)
		assert.Equal(t, "query", violations[2].Field)
		assert.Contains(t, err.Message, "3 violations")
	})

	t.Run("single violation in message", func(t *testing.T) {
		err := NewValidationError([]Violation{{Field: "min_score", Message: "min_score must be at most 1"}})
		assert.Equal(t, "request validation failed: min_score must be at most 1", err.Message)
	})

	t.Run("does not reorder caller slice", func(t *testing.T) {
		in := []Violation{{Field: "z"}, {Field: "a"}}
		NewValidationError(in)
		assert.Equal(t, "z", in[0].Field)
	})
}

func TestNewUpstreamError(t *testing.T) {
	base := errors.New("503 from provider")
	err := NewUpstreamError(503, "search provider returned an error", base)

	assert.True(t, IsUpstreamError(err))
	assert.False(t, IsUpstreamTimeout(err))
	assert.Equal(t, 503, UpstreamStatus(err))
	assert.Equal(t, base, errors.Unwrap(err))

	timeout := NewUpstreamError(504, "search provider timed out", nil).WithDetail(DetailTimeout, true)
	assert.True(t, IsUpstreamTimeout(timeout))
}

func TestNewCacheError(t *testing.T) {
	err := NewCacheError("get", errors.New("connection reset"))

	assert.True(t, IsCacheError(err))
	assert.Equal(t, "cache get failed", err.Message)
	assert.Equal(t, "get", GetErrorDetails(err)[DetailCacheOperation])
}

func TestErrorTypeCheckers(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"not found", NewDomainError(ErrorTypeNotFound, "missing", nil), ErrorTypeNotFound},
		{"validation", NewValidationError([]Violation{{Field: "k", Message: "k must be at least 1"}}), ErrorTypeValidation},
		{"unauthorized", ErrInvalidToken, ErrorTypeUnauthorized},
		{"token expired", ErrTokenExpired, ErrorTypeUnauthorized},
		{"upstream", NewUpstreamError(504, "vector search timed out", nil), ErrorTypeUpstream},
		{"cache", NewCacheError("get", errors.New("down")), ErrorTypeCache},
		{"internal", WrapInternal("boom", errors.New("x")), ErrorTypeInternal},
		{"wrapped domain error", fmt.Errorf("ctx: %w", NewUpstreamError(0, "vector search unavailable", nil)), ErrorTypeUpstream},
		{"regular error", errors.New("regular"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorType(tt.err))
			assert.Equal(t, tt.want == ErrorTypeNotFound, IsNotFoundError(tt.err))
			assert.Equal(t, tt.want == ErrorTypeValidation, IsValidationError(tt.err))
			assert.Equal(t, tt.want == ErrorTypeUnauthorized, IsUnauthorizedError(tt.err))
			assert.Equal(t, tt.want == ErrorTypeUpstream, IsUpstreamError(tt.err))
			assert.Equal(t, tt.want == ErrorTypeCache, IsCacheError(tt.err))
			assert.Equal(t, tt.want == ErrorTypeInternal, IsInternalError(tt.err))
		})
	}
}

func TestGetErrorDetails(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "validation error", nil)
	err.WithDetail("field", "query").WithDetail("reason", "too short")

	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "query", details["field"])
	assert.Equal(t, "too short", details["reason"])

	assert.Nil(t, GetErrorDetails(errors.New("regular error")))
	assert.Nil(t, GetViolations(errors.New("regular error")))
	assert.Equal(t, 0, UpstreamStatus(errors.New("regular error")))
}

func TestWrapError(t *testing.T) {
	baseErr := errors.New("base error")
	wrapped := WrapError(ErrorTypeInternal, "wrapped message", baseErr)

	var domainErr *DomainError
	require.True(t, errors.As(wrapped, &domainErr))
	assert.Equal(t, ErrorTypeInternal, domainErr.Type)
	assert.Equal(t, "wrapped message", domainErr.Message)
	assert.Equal(t, baseErr, errors.Unwrap(wrapped))
}
