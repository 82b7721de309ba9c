package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/store"
	"github.com/smilemakc/dataflow/internal/store/memstore"
)

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

func TestLoad_ReplaysAvailabilityAndOutputFlags(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New(nil)
	flowID := domain.NewID()

	n1 := &domain.Node{NodeID: "n1", FlowID: flowID, Type: domain.RuntimeFunc, Status: domain.NodeStatusPending, Config: map[string]any{}}
	seedFlow(t, ms, flowID, n1)

	nodeID := "n1"
	in := domain.NewRecord(flowID, &nodeID, domain.DataNodeInput, "default", "", 1, "", nil)
	out := domain.NewRecord(flowID, nil, domain.DataWorkflowOutput, "result", "", "done", "", nil)
	_, err := ms.Execute(ctx, flowID, domain.NewID(), []store.Command{store.CreateDataCommand(in), store.CreateDataCommand(out)}, false)
	require.NoError(t, err)

	s, err := Load(ctx, ms, flowID)
	require.NoError(t, err)
	assert.True(t, s.Available["n1"]["default"])
	assert.True(t, s.HasWorkflowOutput)
}

func TestLoad_RecoversCrashedRunningNodes(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New(nil)
	flowID := domain.NewID()

	n1 := &domain.Node{NodeID: "n1", FlowID: flowID, Type: domain.RuntimeFunc, Status: domain.NodeStatusRunning, Config: map[string]any{}}
	seedFlow(t, ms, flowID, n1)

	s, err := Load(ctx, ms, flowID)
	require.NoError(t, err)

	assert.Equal(t, domain.NodeStatusPending, s.Nodes["n1"].Status)
	assert.Equal(t, "running", s.Nodes["n1"].Metadata["previous_status_on_restart"])

	persisted, err := ms.GetNode(ctx, flowID, "n1")
	require.NoError(t, err)
	assert.Equal(t, domain.NodeStatusPending, persisted.Status, "recovery must be persisted, not just in-memory")
}

func TestLoad_ReconstructsPendingYield(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New(nil)
	flowID := domain.NewID()

	parent := &domain.Node{NodeID: "parent", FlowID: flowID, Type: domain.RuntimeAgent, Status: domain.NodeStatusPending, Config: map[string]any{}}
	child := &domain.Node{NodeID: "child", FlowID: flowID, Type: domain.RuntimeToolCall, Status: domain.NodeStatusPending, Config: map[string]any{}}
	seedFlow(t, ms, flowID, parent, child)

	parentID := "parent"
	yieldContent := RunNodes("yield-1", "reply-1", []string{"child"}, []string{"parent", "child"})
	yieldRec := domain.NewRecord(flowID, &parentID, domain.DataNodeYield, domain.DefaultDiscriminator, "", yieldContent, "", nil)
	_, err := ms.Execute(ctx, flowID, domain.NewID(), []store.Command{store.CreateDataCommand(yieldRec)}, false)
	require.NoError(t, err)

	s, err := Load(ctx, ms, flowID)
	require.NoError(t, err)

	require.Contains(t, s.ActiveYields, "parent")
	y := s.ActiveYields["parent"]
	assert.Equal(t, "yield-1", y.YieldID)
	assert.Equal(t, ChildPending, y.PendingChildren["child"])
}

func TestLoad_ReconstructsYieldWithCompletedChild(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New(nil)
	flowID := domain.NewID()

	parent := &domain.Node{NodeID: "parent", FlowID: flowID, Type: domain.RuntimeAgent, Status: domain.NodeStatusPending, Config: map[string]any{}}
	child := &domain.Node{NodeID: "child", FlowID: flowID, Type: domain.RuntimeToolCall, Status: domain.NodeStatusCompletedSuccess, Config: map[string]any{}}
	seedFlow(t, ms, flowID, parent, child)

	childID := "child"
	resultRec := domain.NewRecord(flowID, &childID, domain.DataNodeResult, "result.success", "", "ok", "", nil)

	parentID := "parent"
	yieldContent := RunNodes("yield-1", "reply-1", []string{"child"}, []string{"parent", "child"})
	yieldRec := domain.NewRecord(flowID, &parentID, domain.DataNodeYield, domain.DefaultDiscriminator, "", yieldContent, "", nil)

	_, err := ms.Execute(ctx, flowID, domain.NewID(), []store.Command{store.CreateDataCommand(resultRec), store.CreateDataCommand(yieldRec)}, false)
	require.NoError(t, err)

	s, err := Load(ctx, ms, flowID)
	require.NoError(t, err)

	y := s.ActiveYields["parent"]
	require.NotNil(t, y)
	assert.Empty(t, y.PendingChildren)
	assert.Equal(t, resultRec.DataID, y.Results["child"])
}
