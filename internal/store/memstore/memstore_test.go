package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/store"
)

func TestMemStore_FlowAndNodeRoundtrip(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	flow := domain.NewFlow("actor-1", nil)
	require.NoError(t, s.CreateFlow(ctx, flow))

	got, err := s.GetFlow(ctx, flow.FlowID)
	require.NoError(t, err)
	assert.Equal(t, flow.FlowID, got.FlowID)

	node := &domain.Node{NodeID: domain.NewID(), FlowID: flow.FlowID, Type: domain.RuntimeFunc, Status: domain.NodeStatusPending}
	res, err := s.Execute(ctx, flow.FlowID, domain.NewID(), []store.Command{store.CreateNodeCommand(node)}, false)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, node.NodeID, res.Results[0].NodeID)

	nodes, err := s.ListNodes(ctx, flow.FlowID)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestMemStore_Execute_DedupsByOpID(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	flow := domain.NewFlow("actor-1", nil)
	require.NoError(t, s.CreateFlow(ctx, flow))

	opID := domain.NewID()
	rec := domain.NewRecord(flow.FlowID, nil, domain.DataWorkflowInput, "", "", map[string]any{"x": 1}, "", nil)
	cmds := []store.Command{store.CreateDataCommand(rec)}

	first, err := s.Execute(ctx, flow.FlowID, opID, cmds, false)
	require.NoError(t, err)

	second, err := s.Execute(ctx, flow.FlowID, opID, cmds, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	count, err := s.Reader(flow.FlowID).All(ctx)
	require.NoError(t, err)
	assert.Len(t, count, 1, "retried opID must not apply commands twice")
}

func TestMemStore_Reader_ResolvesReferences(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	flow := domain.NewFlow("actor-1", nil)
	require.NoError(t, s.CreateFlow(ctx, flow))

	target := domain.NewRecord(flow.FlowID, nil, domain.DataNodeOutput, "default", "", "hello", "", nil)
	ref := domain.NewReference(flow.FlowID, nil, domain.DataNodeInput, "default", target.DataID, nil)

	_, err := s.Execute(ctx, flow.FlowID, domain.NewID(), []store.Command{
		store.CreateDataCommand(target),
		store.CreateDataCommand(ref),
	}, false)
	require.NoError(t, err)

	rows, err := s.Reader(flow.FlowID).WithData(ref.DataID).All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].RefResolved())
	assert.Equal(t, "hello", rows[0].RefContent)
}

func TestMemStore_Reader_DanglingReferenceDoesNotFail(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	flow := domain.NewFlow("actor-1", nil)
	require.NoError(t, s.CreateFlow(ctx, flow))

	ref := domain.NewReference(flow.FlowID, nil, domain.DataNodeInput, "default", "missing-data-id", nil)
	_, err := s.Execute(ctx, flow.FlowID, domain.NewID(), []store.Command{store.CreateDataCommand(ref)}, false)
	require.NoError(t, err)

	rows, err := s.Reader(flow.FlowID).All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].RefResolved())
}

func TestMemStore_Reader_ReplaceReferencesRewritesRow(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	flow := domain.NewFlow("actor-1", nil)
	require.NoError(t, s.CreateFlow(ctx, flow))

	target := domain.NewRecord(flow.FlowID, nil, domain.DataNodeOutput, "default", "", "hello", "text/plain", map[string]any{"owner": "target"})
	ref := domain.NewReference(flow.FlowID, nil, domain.DataNodeInput, "default", target.DataID, nil)

	_, err := s.Execute(ctx, flow.FlowID, domain.NewID(), []store.Command{
		store.CreateDataCommand(target),
		store.CreateDataCommand(ref),
	}, false)
	require.NoError(t, err)

	rows, err := s.Reader(flow.FlowID).WithData(ref.DataID).Content(true).Metadata(true).ReplaceReferences(true).All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, target.DataID, row.Record.DataID, "reference transparency requires the row's own data_id to become the target's")
	assert.Equal(t, target.Key, row.Record.Key, "key is overwritten from the resolved target, not left as the reference's own key")
	assert.Equal(t, "hello", row.Record.Content)
	assert.Equal(t, "text/plain", row.Record.ContentType)
	assert.Equal(t, map[string]any{"owner": "target"}, row.Record.Metadata)
	assert.False(t, row.RefResolved(), "replaced rows report through Record, not the Ref* side-channel")
	assert.Empty(t, row.RefContent)
}
