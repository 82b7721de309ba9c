package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/store"
)

func countCreateNodes(cmds []store.Command) int {
	n := 0
	for _, c := range cmds {
		if c.Kind == store.CommandCreateNode {
			n++
		}
	}
	return n
}

func countDataOfType(cmds []store.Command, typ domain.DataType) int {
	n := 0
	for _, c := range cmds {
		if c.Kind == store.CommandCreateData && c.Data.Type == typ {
			n++
		}
	}
	return n
}

func countReferences(cmds []store.Command, typ domain.DataType) int {
	n := 0
	for _, c := range cmds {
		if c.Kind == store.CommandCreateData && c.Data.Type == typ && c.Data.IsReference() {
			n++
		}
	}
	return n
}

// Scenario 1: linear auto-chain.
func TestCompile_LinearAutoChain(t *testing.T) {
	ops := []Op{
		WithInput(map[string]any{"x": 1}),
		Func("A", nil),
		Func("B", nil),
		Func("C", nil),
	}

	g, cmds, err := Compile(ops, SessionContext{})
	require.NoError(t, err)
	require.Len(t, g.Nodes, 3)

	for _, e := range g.Edges {
		if !e.Terminal {
			assert.True(t, e.IsAutoChain)
			assert.Equal(t, domain.DefaultDiscriminator, e.Discriminator)
		}
	}

	last := g.Nodes[2]
	targets, ok := last.Config["data_targets"]
	require.True(t, ok, "terminal node must carry an implicit output target")
	ts := targets.([]domain.Target)
	require.Len(t, ts, 1)
	assert.Equal(t, domain.DataWorkflowOutput, ts[0].DataType)
	assert.Equal(t, "result", ts[0].Discriminator)

	assert.Equal(t, 3, countCreateNodes(cmds))
	assert.Equal(t, 1, countDataOfType(cmds, domain.DataWorkflowInput))
}

// Scenario 2: static data shared by two routes gets one full record
// and one reference.
func TestCompile_StaticDataSharing(t *testing.T) {
	ops := []Op{
		WithData(map[string]any{"k": 1}),
		As("cfg"),
		To("N", "cfg", ""),
		To("M", "cfg", ""),
		Func("N", nil),
		As("N"),
		Func("M", nil),
		As("M"),
	}

	_, cmds, err := Compile(ops, SessionContext{})
	require.NoError(t, err)

	assert.Equal(t, 2, countDataOfType(cmds, domain.DataNodeInput))
	assert.Equal(t, 1, countReferences(cmds, domain.DataNodeInput))
}

// Scenario 3: diamond into a state join node.
func TestCompile_DiamondWithStateJoin(t *testing.T) {
	ops := []Op{
		WithInput(map[string]any{"v": 1}),
		To("a", "", ""),
		To("b", "", ""),
		Func("A", nil),
		As("a"),
		To("J", "a", ""),
		Func("B", nil),
		As("b"),
		To("J", "b", ""),
		State(map[string]any{"inputs": map[string]any{"required": []string{"a", "b"}}, "output_mode": "object"}),
		As("J"),
	}

	g, _, err := Compile(ops, SessionContext{})
	require.NoError(t, err)
	require.Len(t, g.Nodes, 3)

	var j *domain.Node
	for i := range g.Nodes {
		if g.Nodes[i].Type == domain.RuntimeState {
			j = &g.Nodes[i]
		}
	}
	require.NotNil(t, j)
	reqs, ok := j.Config["inputs"].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a", "b"}, reqs["required"])
}

// Scenario 4: when() on a static-data route is a compile error.
func TestCompile_WhenOnStaticRouteFails(t *testing.T) {
	ops := []Op{
		WithData(map[string]any{}),
		As("x"),
		To("N", "", ""),
		When("output.k == 1"),
		Func("N", nil),
	}

	_, _, err := Compile(ops, SessionContext{})
	require.Error(t, err)
}

// Scenario: cycle node with a nested template chains its template children
// and leaves the parent's own routing intact.
func TestCompile_CycleWithTemplate(t *testing.T) {
	ops := []Op{
		WithInput(map[string]any{"target": 5}),
		Cycle(
			map[string]any{
				"continue_condition": "state.current_value < input.target && iteration < 8",
				"initial_state":       map[string]any{"current_value": 1},
				"max_iterations":      8,
			},
			Func("increment", nil),
		),
	}

	g, _, err := Compile(ops, SessionContext{})
	require.NoError(t, err)

	var cycleNode *domain.Node
	var childCount int
	for i := range g.Nodes {
		if g.Nodes[i].Type == domain.RuntimeCycle {
			cycleNode = &g.Nodes[i]
		}
		if g.Nodes[i].HasParent() {
			childCount++
		}
	}
	require.NotNil(t, cycleNode)
	assert.Equal(t, 1, childCount)

	// The cycle node has no explicit route, so it picks up an implicit
	// success output at compile time; the record itself is only written
	// once the node actually completes at runtime.
	targets, ok := cycleNode.Config["data_targets"].([]domain.Target)
	require.True(t, ok)
	require.Len(t, targets, 1)
	assert.Equal(t, domain.DataWorkflowOutput, targets[0].DataType)
}

// Scenario 6: parallel node config carries its fan-out knobs through
// unchanged.
func TestCompile_ParallelFailFast(t *testing.T) {
	ops := []Op{
		WithInput([]any{"ok", "bad", "ok"}),
		Parallel(
			map[string]any{"source_array_key": "default", "on_error": "fail_fast", "unwrap": false},
			Func("process", nil),
		),
	}

	g, _, err := Compile(ops, SessionContext{})
	require.NoError(t, err)

	var p *domain.Node
	for i := range g.Nodes {
		if g.Nodes[i].Type == domain.RuntimeParallel {
			p = &g.Nodes[i]
		}
	}
	require.NotNil(t, p)
	assert.Equal(t, "fail_fast", p.Config["on_error"])
	assert.Equal(t, false, p.Config["unwrap"])
}

func TestCompile_UndefinedReferenceFails(t *testing.T) {
	ops := []Op{
		WithInput(nil),
		Func("A", nil),
		To("does-not-exist", "", ""),
	}
	_, _, err := Compile(ops, SessionContext{})
	require.Error(t, err)
}

func TestCompile_CycleDetectionFails(t *testing.T) {
	ops := []Op{
		WithInput(nil),
		Func("A", nil),
		As("a"),
		To("b", "", ""),
		Func("B", nil),
		As("b"),
		To("a", "", ""),
	}
	_, _, err := Compile(ops, SessionContext{})
	require.Error(t, err)
}

func TestCompile_ArgsWithStringTransformConflict(t *testing.T) {
	ops := []Op{
		WithInput(map[string]any{"x": 1}),
		Func("A", map[string]any{"args": map[string]any{"base": true}, "input_transform": "input.x"}),
	}
	_, _, err := Compile(ops, SessionContext{})
	require.Error(t, err)
}

func TestCompile_ArgsWithAutoChainDefaultInputConflict(t *testing.T) {
	// Spec §8.2 scenario 1's linear auto-chain (A -> B -> C), but B declares
	// config.args: the auto-chain edge A --default--> B is itself a
	// default-discriminated input, which conflicts with B's args the same
	// way an explicit default route or a string input_transform would.
	ops := []Op{
		WithInput(map[string]any{"x": 1}),
		Func("A", nil),
		Func("B", map[string]any{"args": map[string]any{"base": true}}),
		Func("C", nil),
	}
	_, _, err := Compile(ops, SessionContext{})
	require.Error(t, err)
}

func TestCompile_MissingSuccessPathFails(t *testing.T) {
	ops := []Op{
		WithInput(nil),
		Func("A", nil),
		ErrorTo("@fail", "", ""),
	}
	_, _, err := Compile(ops, SessionContext{})
	require.Error(t, err)
}
