package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorsSurviveWrapping(t *testing.T) {
	validation := fmt.Errorf("generate: %w", NewValidationError("no ingredients"))
	capacity := fmt.Errorf("add: %w", &CapacityError{Rejected: 2, Limit: 15})
	generation := fmt.Errorf("coordinator: %w", NewGenerationError("model unavailable", errors.New("502")))

	assert.True(t, IsValidationError(validation))
	assert.False(t, IsValidationError(capacity))

	assert.True(t, IsCapacityError(capacity))
	assert.EqualError(t, capacity, "add: ingredient limit of 15 reached, 2 rejected")

	assert.True(t, IsGenerationError(generation))
	assert.False(t, IsGenerationError(validation))
}

func TestGenerationErrorMessage(t *testing.T) {
	cause := errors.New("dial tcp: timeout")

	assert.Equal(t, "model unavailable", NewGenerationError("model unavailable", cause).Error())
	assert.Equal(t, "dial tcp: timeout", NewGenerationError("", cause).Error())
	assert.ErrorIs(t, NewGenerationError("x", cause), cause)
}

func TestCustomErrorResponse(t *testing.T) {
	err := ErrGeneration.WithErr(errors.New("upstream 500"))

	assert.Equal(t, http.StatusBadGateway, err.Status)
	assert.Empty(t, err.Response(false).Details)
	assert.Equal(t, "upstream 500", err.Response(true).Details)
	assert.Nil(t, ErrGeneration.Err, "predefined error must not be mutated")
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here you go: {\"a\":{\"b\":2}} enjoy!", `{"a":{"b":2}}`},
		{"no object", "sorry", "sorry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSONObject(tt.in))
		})
	}
}

func TestParseJSONRejectsTrailingData(t *testing.T) {
	var v map[string]any
	require.NoError(t, ParseJSON(`{"a":1}  `, &v))
	assert.Error(t, ParseJSON(`{"a":1}{"b":2}`, &v))
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"Step 1", "Step 2"}, SplitLines("Step 1\nStep 2\n"))
	assert.Equal(t, []string{"a", "b"}, SplitLines("\n a\r\n\n  \nb"))
	assert.Empty(t, SplitLines(""))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", MaskAPIKey("short"))
	assert.Equal(t, "sk-o...wxyz", MaskAPIKey("sk-or-v1-abcdwxyz"))
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFrom(ctx))
	assert.Empty(t, RequestIDFrom(context.Background()))

	same := WithRequestID(ctx, "")
	assert.Equal(t, "req-1", RequestIDFrom(same))
}
