package agentnode

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/dataflow/internal/runtime"
)

func TestToolCallRuntime_Execute_DispatchesToHandler(t *testing.T) {
	rt := NewToolCallRuntime(map[string]ToolHandler{
		"lookup": func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"echo": args["q"]}, nil
		},
	})

	outcome, err := rt.Execute(context.Background(), runtime.RunContext{
		Config: map[string]any{"tool_name": "lookup", "arguments": `{"q":"go"}`},
	})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, map[string]any{"echo": "go"}, outcome.Output)
}

func TestToolCallRuntime_Execute_UnknownTool(t *testing.T) {
	rt := NewToolCallRuntime(nil)
	outcome, err := rt.Execute(context.Background(), runtime.RunContext{Config: map[string]any{"tool_name": "missing"}})
	require.NoError(t, err)
	assert.False(t, outcome.Success)
}

func TestToolCallRuntime_Execute_HandlerError(t *testing.T) {
	rt := NewToolCallRuntime(map[string]ToolHandler{
		"fail": func(_ context.Context, _ map[string]any) (any, error) { return nil, errors.New("boom") },
	})
	outcome, err := rt.Execute(context.Background(), runtime.RunContext{Config: map[string]any{"tool_name": "fail"}})
	require.NoError(t, err)
	assert.False(t, outcome.Success)
}
