package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/eval"
)

func TestApply_PlainTarget(t *testing.T) {
	ev := eval.New()
	target := domain.Target{DataType: domain.DataNodeInput, NodeID: "n2", Discriminator: "default"}

	out, err := Apply(ev, "flow-1", "n1", target, Env{Output: map[string]any{"x": 1}}, false)
	require.NoError(t, err)
	require.False(t, out.Skipped)
	assert.Equal(t, map[string]any{"x": 1}, out.Record.Content)
	assert.Equal(t, domain.DataNodeInput, out.Record.Type)
}

func TestApply_ConditionFalseSkips(t *testing.T) {
	ev := eval.New()
	target := domain.Target{DataType: domain.DataNodeInput, NodeID: "n2", Discriminator: "default", Condition: "output.k == 2"}

	out, err := Apply(ev, "flow-1", "n1", target, Env{Output: map[string]any{"k": 1}}, false)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
}

func TestApply_TransformRewritesContent(t *testing.T) {
	ev := eval.New()
	target := domain.Target{DataType: domain.DataNodeInput, NodeID: "n2", Discriminator: "default", Transform: "output.k + 1"}

	out, err := Apply(ev, "flow-1", "n1", target, Env{Output: map[string]any{"k": 1}}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Record.Content)
}

func TestApply_ConditionErrorFatalOnDataTarget(t *testing.T) {
	ev := eval.New()
	target := domain.Target{DataType: domain.DataNodeInput, NodeID: "n2", Discriminator: "default", Condition: "output.k +"}

	_, err := Apply(ev, "flow-1", "n1", target, Env{Output: map[string]any{"k": 1}}, false)
	require.Error(t, err)
}

func TestApply_ConditionErrorToleratedOnErrorTarget(t *testing.T) {
	ev := eval.New()
	target := domain.Target{DataType: domain.DataWorkflowOutput, Discriminator: "error", Condition: "output.k +"}

	out, err := Apply(ev, "flow-1", "n1", target, Env{Err: "boom"}, true)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
}

func TestMerge_WithArgs(t *testing.T) {
	args := map[string]any{"base": true, "shadowed": "orig"}
	inputs := Inputs{"shadowed": "new", "extra": 1}

	got := Merge(args, inputs)
	assert.Equal(t, map[string]any{"base": true, "shadowed": "new", "extra": 1}, got)
}

func TestMerge_NoArgsSingleDefault(t *testing.T) {
	got := Merge(nil, Inputs{"default": 42})
	assert.Equal(t, 42, got)
}

func TestMerge_NoArgsSingleNamed(t *testing.T) {
	got := Merge(nil, Inputs{"a": 1})
	assert.Equal(t, map[string]any{"a": 1}, got)
}

func TestMerge_NoArgsMultipleNamed(t *testing.T) {
	got := Merge(nil, Inputs{"a": 1, "b": 2})
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, got)
}

func TestTransformInput_StringForm(t *testing.T) {
	ev := eval.New()
	out, err := TransformInput(ev, "input.x + 1", map[string]any{"x": 1}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out["default"])
}

func TestTransformInput_TableForm(t *testing.T) {
	ev := eval.New()
	transform := map[string]any{"y": "input.x * 2", "z": "input.x - 1"}
	out, err := TransformInput(ev, transform, map[string]any{"x": 3}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, out["y"])
	assert.Equal(t, 2, out["z"])
}

func TestTransformInput_TableFieldErrorIsPerField(t *testing.T) {
	ev := eval.New()
	transform := map[string]any{"y": "input.x +"}
	_, err := TransformInput(ev, transform, map[string]any{"x": 3}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Transform failed for y")
}
