package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/store"
)

func newPendingNode(nodeID string, inputs map[string]any) *domain.Node {
	cfg := map[string]any{}
	if inputs != nil {
		cfg["inputs"] = inputs
	}
	return &domain.Node{NodeID: nodeID, FlowID: "flow-1", Type: domain.RuntimeFunc, Status: domain.NodeStatusPending, Config: cfg}
}

func results(cmds ...store.Command) []store.Result {
	out := make([]store.Result, len(cmds))
	for i, c := range cmds {
		out[i] = store.Result{Input: c}
	}
	return out
}

func TestHasRequiredInputs_NoDeclaredInputsAnyAvailable(t *testing.T) {
	s := NewState("flow-1")
	s.registerNode(newPendingNode("n1", nil))
	assert.False(t, s.HasRequiredInputs("n1"))

	s.Available["n1"] = map[string]bool{"default": true}
	assert.True(t, s.HasRequiredInputs("n1"))
}

func TestHasRequiredInputs_RequiredMustAllBePresent(t *testing.T) {
	s := NewState("flow-1")
	s.registerNode(newPendingNode("n1", map[string]any{"required": []string{"a", "b"}}))

	assert.False(t, s.HasRequiredInputs("n1"))

	s.Available["n1"] = map[string]bool{"a": true}
	assert.False(t, s.HasRequiredInputs("n1"), "only one of two required keys present")

	s.Available["n1"]["b"] = true
	assert.True(t, s.HasRequiredInputs("n1"))
}

func TestFold_CreateNodeUpdateNodeDeleteNode(t *testing.T) {
	s := NewState("flow-1")

	n := newPendingNode("n1", nil)
	status := domain.NodeStatusRunning
	meta := map[string]any{"attempt": 1}

	s.Fold(results(
		store.CreateNodeCommand(n),
		store.UpdateNodeCommand("n1", &status, nil, meta),
	))

	require.Contains(t, s.Nodes, "n1")
	assert.Equal(t, domain.NodeStatusRunning, s.Nodes["n1"].Status)
	assert.Equal(t, 1, s.Nodes["n1"].Metadata["attempt"])

	s.Fold(results(store.Command{Kind: store.CommandDeleteNode, NodeID: "n1"}))
	assert.NotContains(t, s.Nodes, "n1")
}

func TestFold_CreateDataWorkflowOutputAndNodeInput(t *testing.T) {
	s := NewState("flow-1")
	s.registerNode(newPendingNode("n1", nil))

	out := domain.NewRecord("flow-1", nil, domain.DataWorkflowOutput, "result", "", "done", "", nil)
	nodeID := "n1"
	in := domain.NewRecord("flow-1", &nodeID, domain.DataNodeInput, "default", "", 42, "", nil)

	s.Fold(results(store.CreateDataCommand(out), store.CreateDataCommand(in)))

	assert.True(t, s.HasWorkflowOutput)
	assert.True(t, s.Available["n1"]["default"])
}

func TestFold_CreateDataWorkflowError(t *testing.T) {
	s := NewState("flow-1")
	errRec := domain.NewRecord("flow-1", nil, domain.DataWorkflowOutput, "error", "", "boom", "", nil)
	s.Fold(results(store.CreateDataCommand(errRec)))
	assert.True(t, s.HasWorkflowError)
	assert.False(t, s.HasWorkflowOutput)
}

func TestIsYieldChild(t *testing.T) {
	s := NewState("flow-1")
	s.registerNode(newPendingNode("parent", nil))
	s.registerNode(newPendingNode("child", nil))
	s.ActiveYields["parent"] = &YieldInfo{
		YieldID:         "y1",
		PendingChildren: map[string]ChildStatus{"child": ChildPending},
		Results:         map[string]string{},
	}
	assert.True(t, s.IsYieldChild("child"))
	assert.False(t, s.IsYieldChild("parent"))
}
