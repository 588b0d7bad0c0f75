package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_BracketIndex(t *testing.T) {
	payload := map[string]any{
		"events": []any{
			map[string]any{"name": "x"},
		},
	}
	v, ok := Get(payload, "events[0].name")
	require.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestGet_DottedIndex(t *testing.T) {
	payload := map[string]any{
		"events": []any{
			map[string]any{"name": "x"},
		},
	}
	v, ok := Get(payload, "events.0.name")
	require.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestGet_MissingIntermediate(t *testing.T) {
	payload := map[string]any{"events": []any{}}
	_, ok := Get(payload, "events[0].name")
	assert.False(t, ok)

	_, ok = Get(payload, "missing.path")
	assert.False(t, ok)
}

func TestGet_FormDecodedPayload(t *testing.T) {
	payload := map[string][]string{
		"event":  {"Signup"},
		"userId": {"u2"},
	}
	v, ok := Get(payload, "event")
	require.True(t, ok)
	assert.Equal(t, "Signup", v)
}

func TestGet_NestedMap(t *testing.T) {
	payload := map[string]any{
		"properties": map[string]any{
			"page": "/x",
		},
	}
	v, ok := Get(payload, "properties.page")
	require.True(t, ok)
	assert.Equal(t, "/x", v)
}

func TestGetString_NumberCoercion(t *testing.T) {
	payload := map[string]any{"ts": float64(1700000000)}
	s, ok := GetString(payload, "ts")
	require.True(t, ok)
	assert.Equal(t, "1700000000", s)
}
