package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/store/memstore"
)

func TestBuildProcessExitCommands_SuccessAndFailureDiscriminators(t *testing.T) {
	s := NewState("flow-1")
	status, cmds := s.BuildProcessExitCommands("n1", true, "ok")
	require.Len(t, cmds, 2)
	assert.Equal(t, domain.NodeStatusCompletedSuccess, status)
	assert.Equal(t, "result.success", cmds[1].Data.Discriminator)

	status, cmds = s.BuildProcessExitCommands("n1", false, "boom")
	assert.Equal(t, domain.NodeStatusCompletedFailure, status)
	assert.Equal(t, "result.error", cmds[1].Data.Discriminator)
}

func TestApplyProcessExit_UpdatesYieldAndDetectsDeadlock(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New(nil)
	flowID := domain.NewID()

	parent := &domain.Node{NodeID: "parent", FlowID: flowID, Type: domain.RuntimeAgent, Status: domain.NodeStatusPending, Config: map[string]any{}}
	childID := "child"
	child := &domain.Node{NodeID: childID, FlowID: flowID, ParentNodeID: &parent.NodeID, Type: domain.RuntimeToolCall, Status: domain.NodeStatusRunning, Config: map[string]any{}}
	seedFlow(t, ms, flowID, parent, child)

	s, err := Load(ctx, ms, flowID)
	require.NoError(t, err)
	s.RegisterYield("parent", "yield-1", "reply-1", []string{childID}, []string{"parent", childID})
	s.ActiveProcesses[childID] = true

	status, cmds := s.BuildProcessExitCommands(childID, true, "tool output")
	result, err := ms.Execute(ctx, flowID, domain.NewID(), cmds, false)
	require.NoError(t, err)

	require.NoError(t, s.ApplyProcessExit(ctx, ms, childID, status, result))

	assert.False(t, s.ActiveProcesses[childID])
	y := s.ActiveYields["parent"]
	require.NotNil(t, y)
	assert.Equal(t, ChildCompletedSuccess, y.PendingChildren[childID])
	assert.NotEmpty(t, y.Results[childID])
	assert.True(t, y.AllSettled())
}

func TestApplyProcessExit_TriggersDeadlockWhenSiblingUnrunnable(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New(nil)
	flowID := domain.NewID()

	parentID := "parent"
	parent := &domain.Node{NodeID: parentID, FlowID: flowID, Type: domain.RuntimeParallel, Status: domain.NodeStatusPending, Config: map[string]any{}}
	failing := &domain.Node{NodeID: "failing", FlowID: flowID, ParentNodeID: &parentID, Type: domain.RuntimeFunc, Status: domain.NodeStatusRunning, Config: map[string]any{}}
	stuck := &domain.Node{NodeID: "stuck", FlowID: flowID, ParentNodeID: &parentID, Type: domain.RuntimeFunc, Status: domain.NodeStatusPending, Config: map[string]any{"inputs": map[string]any{"required": []string{"a"}}}}
	seedFlow(t, ms, flowID, parent, failing, stuck)

	s, err := Load(ctx, ms, flowID)
	require.NoError(t, err)
	s.RegisterYield(parentID, "yield-1", "reply-1", []string{"failing", "stuck"}, []string{parentID})
	s.ActiveProcesses["failing"] = true

	status, cmds := s.BuildProcessExitCommands("failing", false, "error")
	result, err := ms.Execute(ctx, flowID, domain.NewID(), cmds, false)
	require.NoError(t, err)

	require.NoError(t, s.ApplyProcessExit(ctx, ms, "failing", status, result))

	y := s.ActiveYields[parentID]
	require.NotNil(t, y)
	assert.Equal(t, ChildCompletedFailure, y.PendingChildren["failing"])
	assert.Equal(t, ChildCancelled, y.PendingChildren["stuck"], "sibling with no runnable path should be cancelled by deadlock detection")
	assert.Equal(t, domain.NodeStatusCancelled, s.Nodes["stuck"].Status)
	assert.True(t, y.AllSettled())
}

// TestApplyProcessExit_DeadlockCancellationSurvivesReload confirms the
// deadlock-triggered cancellation in the previous test isn't just an
// in-memory side effect of DetectYieldDeadlock: it must reach the store
// through the same update_node-command-then-Fold path recoverCrashedNodes
// uses, so a fresh Load sees "stuck" already cancelled.
func TestApplyProcessExit_DeadlockCancellationSurvivesReload(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New(nil)
	flowID := domain.NewID()

	parentID := "parent"
	parent := &domain.Node{NodeID: parentID, FlowID: flowID, Type: domain.RuntimeParallel, Status: domain.NodeStatusPending, Config: map[string]any{}}
	failing := &domain.Node{NodeID: "failing", FlowID: flowID, ParentNodeID: &parentID, Type: domain.RuntimeFunc, Status: domain.NodeStatusRunning, Config: map[string]any{}}
	stuck := &domain.Node{NodeID: "stuck", FlowID: flowID, ParentNodeID: &parentID, Type: domain.RuntimeFunc, Status: domain.NodeStatusPending, Config: map[string]any{"inputs": map[string]any{"required": []string{"a"}}}}
	seedFlow(t, ms, flowID, parent, failing, stuck)

	s, err := Load(ctx, ms, flowID)
	require.NoError(t, err)
	s.RegisterYield(parentID, "yield-1", "reply-1", []string{"failing", "stuck"}, []string{parentID})
	s.ActiveProcesses["failing"] = true

	status, cmds := s.BuildProcessExitCommands("failing", false, "error")
	result, err := ms.Execute(ctx, flowID, domain.NewID(), cmds, false)
	require.NoError(t, err)
	require.NoError(t, s.ApplyProcessExit(ctx, ms, "failing", status, result))

	reloaded, err := Load(ctx, ms, flowID)
	require.NoError(t, err)
	assert.Equal(t, domain.NodeStatusCancelled, reloaded.Nodes["stuck"].Status)
	assert.Equal(t, "yield_deadlock", reloaded.Nodes["stuck"].Metadata["cancel_reason"])
}

func TestSatisfyYieldRoundTrip(t *testing.T) {
	s := NewState("flow-1")
	s.registerNode(newPendingNode("parent", nil))
	s.RegisterYield("parent", "yield-1", "reply-1", []string{"child"}, []string{"parent"})
	s.ActiveYields["parent"].PendingChildren["child"] = ChildCompletedSuccess
	s.ActiveYields["parent"].Results["child"] = "data-1"

	cmd, ok := s.BuildSatisfyYieldCommand("parent")
	require.True(t, ok)
	assert.Equal(t, domain.DataNodeYieldResult, cmd.Data.Type)

	s.CompleteYield("parent")
	assert.NotContains(t, s.ActiveYields, "parent")

	_, ok = s.BuildSatisfyYieldCommand("parent")
	assert.False(t, ok)
}
