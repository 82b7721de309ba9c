package dataflow

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/dataflow/internal/runtime/funcnode"
)

type fakeHTTPClient struct{}

func (fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return nil, nil
}

func TestEngine_StartFlowAndRun_LinearChainProducesOutput(t *testing.T) {
	st := NewMemoryStore(nil)
	registry := NewDefaultRegistry(RuntimeDeps{
		HTTPClient: fakeHTTPClient{},
		FuncEndpoints: map[string]funcnode.Endpoint{
			"A": {Method: "POST", URL: "http://example.invalid/a"},
		},
	})
	e := NewEngine(st, registry, nil)

	ctx := context.Background()
	ops := []Op{
		WithInput(map[string]any{"x": 1}),
		Func("A", nil),
	}
	flowID, err := e.StartFlow(ctx, "actor-1", ops)
	require.NoError(t, err)
	assert.NotEmpty(t, flowID)

	nodes, err := st.ListNodes(ctx, flowID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
}

func TestNewEngine_DefaultsSchedulerOptionsWhenConfigNil(t *testing.T) {
	st := NewMemoryStore(nil)
	registry := NewDefaultRegistry(RuntimeDeps{})
	e := NewEngine(st, registry, nil)
	assert.Equal(t, 10, e.opts.MaxConcurrentNodes)
	assert.True(t, e.opts.EnableInputConcurrency)
	assert.False(t, e.opts.EnableYieldConcurrency)
}

func TestNewEngine_UsesProvidedConfig(t *testing.T) {
	st := NewMemoryStore(nil)
	registry := NewDefaultRegistry(RuntimeDeps{})
	cfg := &Config{MaxConcurrentNodes: 3, EnableInputConcurrency: false, EnableYieldConcurrency: true}
	e := NewEngine(st, registry, cfg)
	assert.Equal(t, 3, e.opts.MaxConcurrentNodes)
	assert.False(t, e.opts.EnableInputConcurrency)
	assert.True(t, e.opts.EnableYieldConcurrency)
}
