package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRequest struct {
	Query    string  `json:"query" validate:"required,min=10,max=500"`
	K        int     `json:"k" validate:"gte=1,lte=50"`
	MinScore float64 `json:"min_score" validate:"gte=0,lte=1"`
	Kind     string  `json:"kind,omitempty" validate:"omitempty,slug"`
	Internal string  `json:"-"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := testRequest{Query: "wordpress hardening", K: 10, MinScore: 0.5, Kind: "post"}
		assert.NoError(t, ValidateStruct(&s))
	})

	t.Run("reports json field names", func(t *testing.T) {
		s := testRequest{Query: "short", K: 0, MinScore: 1.5}

		err := ValidateStruct(&s)
		require.Error(t, err)
		require.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "query must be at least 10 characters", fields["query"])
		assert.Equal(t, "k must be at least 1", fields["k"])
		assert.Equal(t, "min_score must be at most 1", fields["min_score"])
	})

	t.Run("missing required field", func(t *testing.T) {
		s := testRequest{K: 5}

		fields := GetValidationFields(ValidateStruct(&s))
		assert.Equal(t, "query is required", fields["query"])
	})

	t.Run("string length counts characters not bytes", func(t *testing.T) {
		s := testRequest{Query: "ñññññññññññ", K: 1}
		assert.NoError(t, ValidateStruct(&s))
	})

	t.Run("slug tag", func(t *testing.T) {
		s := testRequest{Query: "a long enough query", K: 1, Kind: "Not A Slug"}
		fields := GetValidationFields(ValidateStruct(&s))
		assert.Equal(t, "kind must be a lowercase slug", fields["kind"])
	})
}

func TestValidateVar(t *testing.T) {
	assert.True(t, ValidateVar("how-to", "slug"))
	assert.False(t, ValidateVar("How To", "slug"))
	assert.False(t, ValidateVar("this-slug-is-way-too-long-for-a-type", "slug"))
}

func TestValidateOneOf(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		allowed []string
		wantErr bool
	}{
		{"allowed", "strict", []string{"lenient", "standard", "strict"}, false},
		{"not allowed", "extreme", []string{"lenient", "standard", "strict"}, true},
		{"empty allowed list", "x", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOneOf(tt.value, "strictness", tt.allowed)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "Validation failed"}
	assert.Equal(t, "Validation failed", err.Error())
	assert.Nil(t, GetValidationFields(assert.AnError))
	assert.False(t, IsValidationError(assert.AnError))
}
