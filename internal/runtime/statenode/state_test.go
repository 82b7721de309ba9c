package statenode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/dataflow/internal/runtime"
)

func TestRuntime_Execute_ObjectModeDropsIgnoredKeys(t *testing.T) {
	rt := New()
	outcome, err := rt.Execute(context.Background(), runtime.RunContext{
		Config: map[string]any{"output_mode": "object", "ignored_keys": []string{"secret"}},
		Input:  map[string]any{"a": 1, "secret": "shh"},
	})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, map[string]any{"a": 1}, outcome.Output)
}

func TestRuntime_Execute_ArrayModeOrdersByKey(t *testing.T) {
	rt := New()
	outcome, err := rt.Execute(context.Background(), runtime.RunContext{
		Config: map[string]any{"output_mode": "array"},
		Input:  map[string]any{"b": 2, "a": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, outcome.Output)
}

func TestRuntime_Execute_NilInputProducesEmptyResult(t *testing.T) {
	rt := New()
	outcome, err := rt.Execute(context.Background(), runtime.RunContext{Config: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, outcome.Output)
}
