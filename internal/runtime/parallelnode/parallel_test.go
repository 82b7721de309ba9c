package parallelnode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/runtime"
	"github.com/smilemakc/dataflow/internal/store"
	"github.com/smilemakc/dataflow/internal/store/memstore"
)

func seedTemplate(t *testing.T, ms *memstore.MemStore, flowID, parentID string) {
	t.Helper()
	tmpl := &domain.Node{
		NodeID: "template-1", FlowID: flowID, ParentNodeID: &parentID,
		Type: domain.RuntimeFunc, Status: domain.NodeStatusTemplate, Config: map[string]any{"func_id": "classify"},
	}
	_, err := ms.Execute(context.Background(), flowID, domain.NewID(), []store.Command{store.CreateNodeCommand(tmpl)}, false)
	require.NoError(t, err)
}

func TestRuntime_Execute_DispatchesOneChildPerItem(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New(nil)
	flowID := domain.NewID()
	require.NoError(t, ms.CreateFlow(ctx, &domain.Flow{FlowID: flowID, Status: domain.FlowStatusActive}))
	parentID := "parallel-1"
	seedTemplate(t, ms, flowID, parentID)

	rt := New()
	rc := runtime.RunContext{
		FlowID: flowID,
		NodeID: parentID,
		Config: map[string]any{"source_array_key": "items"},
		Input:  map[string]any{"items": []any{"ok", "bad", "ok"}},
		Store:  ms,
	}
	outcome, err := rt.Execute(ctx, rc)
	require.NoError(t, err)
	require.NotNil(t, outcome.Yield)
	assert.Len(t, outcome.Yield.Children, 3)
	require.NotNil(t, outcome.Metadata)
}

func TestRuntime_Execute_ReduceAllFilterKeepsEverything(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New(nil)
	flowID := domain.NewID()
	require.NoError(t, ms.CreateFlow(ctx, &domain.Flow{FlowID: flowID, Status: domain.FlowStatusActive}))
	parentID := "parallel-1"
	seedTemplate(t, ms, flowID, parentID)

	rt := New()
	rc := runtime.RunContext{
		FlowID: flowID,
		NodeID: parentID,
		Config: map[string]any{"source_array_key": "items"},
		Input:  map[string]any{"items": []any{"a", "b"}},
		Store:  ms,
	}
	dispatched, err := rt.Execute(ctx, rc)
	require.NoError(t, err)
	require.Len(t, dispatched.Yield.Children, 2)

	for i, child := range dispatched.Yield.Children {
		n := &domain.Node{NodeID: child.NodeID, FlowID: flowID, ParentNodeID: &parentID, Type: domain.RuntimeFunc, Status: domain.NodeStatusCompletedSuccess, Config: map[string]any{}}
		_, err := ms.Execute(ctx, flowID, domain.NewID(), []store.Command{store.CreateNodeCommand(n)}, false)
		require.NoError(t, err)
		_, err = ms.Execute(ctx, flowID, domain.NewID(), []store.Command{
			store.CreateDataCommand(domain.NewRecord(flowID, &child.NodeID, domain.DataNodeResult, "result.success", "", i, "", nil)),
		}, false)
		require.NoError(t, err)
	}

	rc2 := rc
	rc2.Metadata = dispatched.Metadata
	outcome, err := rt.Execute(ctx, rc2)
	require.NoError(t, err)
	assert.Nil(t, outcome.Yield)
	assert.True(t, outcome.Success)
	out, ok := outcome.Output.([]any)
	require.True(t, ok)
	assert.Len(t, out, 2)

	rows, err := ms.Reader(flowID).WithNodes(parentID).WithDataTypes(domain.DataIterationResult).Content(true).All(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "reduce should record one iteration_result per settled child")
}

func TestRuntime_Execute_FailFastReportsPartialResults(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New(nil)
	flowID := domain.NewID()
	require.NoError(t, ms.CreateFlow(ctx, &domain.Flow{FlowID: flowID, Status: domain.FlowStatusActive}))
	parentID := "parallel-1"
	seedTemplate(t, ms, flowID, parentID)

	rt := New()
	rc := runtime.RunContext{
		FlowID: flowID,
		NodeID: parentID,
		Config: map[string]any{"source_array_key": "items", "on_error": "fail_fast"},
		Input:  map[string]any{"items": []any{"ok", "bad"}},
		Store:  ms,
	}
	dispatched, err := rt.Execute(ctx, rc)
	require.NoError(t, err)
	require.Len(t, dispatched.Yield.Children, 2)

	statuses := []domain.NodeStatus{domain.NodeStatusCompletedSuccess, domain.NodeStatusCompletedFailure}
	for i, child := range dispatched.Yield.Children {
		n := &domain.Node{NodeID: child.NodeID, FlowID: flowID, ParentNodeID: &parentID, Type: domain.RuntimeFunc, Status: statuses[i], Config: map[string]any{}}
		_, err := ms.Execute(ctx, flowID, domain.NewID(), []store.Command{store.CreateNodeCommand(n)}, false)
		require.NoError(t, err)
	}

	rc2 := rc
	rc2.Metadata = dispatched.Metadata
	outcome, err := rt.Execute(ctx, rc2)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	require.Error(t, outcome.Err)
	m, ok := outcome.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ITERATION_FAILED", m["code"])

	errRows, err := ms.Reader(flowID).WithNodes(parentID).WithDataTypes(domain.DataIterationError).All(ctx)
	require.NoError(t, err)
	assert.Len(t, errRows, 1, "the failing iteration should be recorded as iteration_error")
}
