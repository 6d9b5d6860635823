package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venturedesk/internal/domain"
)

func TestWithSchemaValidation(t *testing.T) {
	inner := &fakeTool{
		name: "typed",
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string"},
				"count": {"type": "integer", "minimum": 1}
			},
			"required": ["query"]
		}`),
		execute: func(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
			return TextResult("ran"), nil
		},
	}

	wrapped, err := WithSchemaValidation(inner)
	require.NoError(t, err)

	result, err := wrapped.Execute(t.Context(), json.RawMessage(`{"query": "x", "count": 3}`))
	require.NoError(t, err)
	assert.Equal(t, "ran", result.Content)

	_, err = wrapped.Execute(t.Context(), json.RawMessage(`{"count": 0}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidToolParams))

	_, err = wrapped.Execute(t.Context(), json.RawMessage(`{not json`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidToolParams))
}

func TestWithSchemaValidationNoSchema(t *testing.T) {
	inner := &fakeTool{name: "loose"}
	wrapped, err := WithSchemaValidation(inner)
	require.NoError(t, err)
	assert.Same(t, domain.Tool(inner), wrapped)
}

func TestWithSchemaValidationBadSchema(t *testing.T) {
	inner := &fakeTool{name: "broken", schema: json.RawMessage(`{"type": 42}`)}
	_, err := WithSchemaValidation(inner)
	assert.Error(t, err)
}
