package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/engine"
	"github.com/smilemakc/dataflow/internal/eval"
	"github.com/smilemakc/dataflow/internal/store"
	"github.com/smilemakc/dataflow/internal/store/memstore"
)

type fakeRuntime struct {
	typ     domain.RuntimeType
	outcome Outcome
	err     error
	calls   int
}

func (f *fakeRuntime) Type() domain.RuntimeType { return f.typ }
func (f *fakeRuntime) Execute(_ context.Context, _ RunContext) (Outcome, error) {
	f.calls++
	return f.outcome, f.err
}

func seedFlow(t *testing.T, ms *memstore.MemStore, flowID string, nodes ...*domain.Node) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, ms.CreateFlow(ctx, &domain.Flow{FlowID: flowID, Status: domain.FlowStatusActive, Metadata: map[string]any{}}))
	cmds := make([]store.Command, 0, len(nodes))
	for _, n := range nodes {
		cmds = append(cmds, store.CreateNodeCommand(n))
	}
	_, err := ms.Execute(ctx, flowID, domain.NewID(), cmds, false)
	require.NoError(t, err)
}

func TestHost_RunNode_CompletesSynchronouslyAndRoutes(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New(nil)
	flowID := domain.NewID()

	target := domain.Target{DataType: domain.DataWorkflowOutput, Discriminator: "result"}
	node := &domain.Node{NodeID: "n1", FlowID: flowID, Type: domain.RuntimeFunc, Status: domain.NodeStatusPending,
		Config: map[string]any{"data_targets": []domain.Target{target}}}
	seedFlow(t, ms, flowID, node)

	s, err := engine.Load(ctx, ms, flowID)
	require.NoError(t, err)

	rt := &fakeRuntime{typ: domain.RuntimeFunc, outcome: Completed("done", nil)}
	h := NewHost(ms, eval.New(), NewRegistry(rt))

	require.NoError(t, h.RunNode(ctx, s, "n1"))
	assert.Equal(t, 1, rt.calls)
	assert.Equal(t, domain.NodeStatusCompletedSuccess, s.Nodes["n1"].Status)
	assert.False(t, s.ActiveProcesses["n1"])

	rows, err := ms.Reader(flowID).WithDataTypes(domain.DataWorkflowOutput).Content(true).All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "done", rows[0].Record.Content)
}

func TestHost_RunNode_FailureRoutesToErrorTargets(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New(nil)
	flowID := domain.NewID()

	errTarget := domain.Target{DataType: domain.DataWorkflowOutput, Discriminator: "failure"}
	node := &domain.Node{NodeID: "n1", FlowID: flowID, Type: domain.RuntimeFunc, Status: domain.NodeStatusPending,
		Config: map[string]any{"error_targets": []domain.Target{errTarget}}}
	seedFlow(t, ms, flowID, node)

	s, err := engine.Load(ctx, ms, flowID)
	require.NoError(t, err)

	rt := &fakeRuntime{typ: domain.RuntimeFunc, outcome: Completed(nil, assertError("boom"))}
	h := NewHost(ms, eval.New(), NewRegistry(rt))

	require.NoError(t, h.RunNode(ctx, s, "n1"))
	assert.Equal(t, domain.NodeStatusCompletedFailure, s.Nodes["n1"].Status)

	rows, err := ms.Reader(flowID).WithDataTypes(domain.DataWorkflowOutput).Content(true).All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "boom", rows[0].Record.Content)
}

func TestHost_RunNode_YieldRegistersChildrenAndMetadata(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New(nil)
	flowID := domain.NewID()

	node := &domain.Node{NodeID: "agent-1", FlowID: flowID, Type: domain.RuntimeAgent, Status: domain.NodeStatusPending, Config: map[string]any{}}
	seedFlow(t, ms, flowID, node)

	s, err := engine.Load(ctx, ms, flowID)
	require.NoError(t, err)

	rt := &fakeRuntime{typ: domain.RuntimeAgent, outcome: Suspended(Yield{
		ReplyTo:  "agent:agent-1",
		Children: []ChildSpec{{Type: domain.RuntimeToolCall, Config: map[string]any{"tool_name": "lookup"}}},
	}).WithMetadata(map[string]any{"agent_state": map[string]any{"iteration": 1}})}
	h := NewHost(ms, eval.New(), NewRegistry(rt))

	require.NoError(t, h.RunNode(ctx, s, "agent-1"))
	assert.False(t, s.ActiveProcesses["agent-1"])
	y, ok := s.ActiveYields["agent-1"]
	require.True(t, ok)
	assert.Len(t, y.PendingChildren, 1)

	updated, err := ms.GetNode(ctx, flowID, "agent-1")
	require.NoError(t, err)
	assert.NotNil(t, updated.Metadata["agent_state"])
}

func TestHost_SatisfyYield_ResumesParent(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New(nil)
	flowID := domain.NewID()

	parent := &domain.Node{NodeID: "agent-1", FlowID: flowID, Type: domain.RuntimeAgent, Status: domain.NodeStatusRunning, Config: map[string]any{}}
	childID := "tool-1"
	child := &domain.Node{NodeID: childID, FlowID: flowID, ParentNodeID: &parent.NodeID, Type: domain.RuntimeToolCall, Status: domain.NodeStatusCompletedSuccess, Config: map[string]any{}}
	seedFlow(t, ms, flowID, parent, child)

	s, err := engine.Load(ctx, ms, flowID)
	require.NoError(t, err)
	s.RegisterYield("agent-1", "yield-1", "reply-1", []string{childID}, []string{"agent-1", childID})
	s.ActiveYields["agent-1"].PendingChildren[childID] = engine.ChildCompletedSuccess
	s.ActiveYields["agent-1"].Results[childID] = "tool result"

	resumed := &fakeRuntime{typ: domain.RuntimeAgent, outcome: Completed("final answer", nil)}
	h := NewHost(ms, eval.New(), NewRegistry(resumed))

	require.NoError(t, h.SatisfyYield(ctx, s, "agent-1"))
	assert.Equal(t, 1, resumed.calls)
	assert.NotContains(t, s.ActiveYields, "agent-1")
	assert.Equal(t, domain.NodeStatusCompletedSuccess, s.Nodes["agent-1"].Status)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertError(msg string) error { return simpleError(msg) }
