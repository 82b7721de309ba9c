package engine

import (
	"context"
	"time"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/store"
)

// Load implements: read the flow, nodes, and every existing
// workflow_output/node_input record to compute initial availability, then
// run crash recovery and yield reconstruction.
func Load(ctx context.Context, st store.Store, flowID string) (*State, error) {
	if _, err := st.GetFlow(ctx, flowID); err != nil {
		return nil, err
	}

	nodes, err := st.ListNodes(ctx, flowID)
	if err != nil {
		return nil, err
	}

	s := NewState(flowID)
	for i := range nodes {
		s.registerNode(&nodes[i])
	}

	rows, err := st.Reader(flowID).
		WithDataTypes(domain.DataWorkflowOutput, domain.DataNodeInput).
		Content(false).
		All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		s.foldCreateData(&rows[i].Record)
	}

	if err := s.recoverCrashedNodes(ctx, st); err != nil {
		return nil, err
	}
	if err := s.reconstructYields(ctx, st); err != nil {
		return nil, err
	}
	return s, nil
}

// recoverCrashedNodes implements the "crash recovery" rule: any node
// observed running is rewritten to pending with restart metadata, applied
// as a silent commit (no notification).
func (s *State) recoverCrashedNodes(ctx context.Context, st store.Store) error {
	now := time.Now().UTC()
	var cmds []store.Command
	for _, ns := range s.Nodes {
		if ns.Status != domain.NodeStatusRunning {
			continue
		}
		meta := cloneMeta(ns.Metadata)
		meta["orchestrator_restarted_at"] = now
		meta["previous_status_on_restart"] = "running"
		pending := domain.NodeStatusPending
		cmds = append(cmds, store.UpdateNodeCommand(ns.NodeID, &pending, nil, meta))
	}
	if len(cmds) == 0 {
		return nil
	}

	result, err := st.Execute(ctx, s.FlowID, domain.NewID(), cmds, false)
	if err != nil {
		return err
	}
	s.Fold(result.Results)
	return nil
}

func cloneMeta(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// reconstructYields implements "Yield reconstruction": every node_yield
// record belonging to a still-pending node is decoded and turned back into
// an active yield entry, with completed children linked to their
// node_result id and the rest populating pending_children.
func (s *State) reconstructYields(ctx context.Context, st store.Store) error {
	rows, err := st.Reader(s.FlowID).WithDataTypes(domain.DataNodeYield).All(ctx)
	if err != nil {
		return err
	}

	for i := range rows {
		rec := &rows[i].Record
		if rec.NodeID == nil {
			continue
		}
		parent, ok := s.Nodes[*rec.NodeID]
		if !ok || parent.Status != domain.NodeStatusPending {
			continue
		}

		yc, err := decodeYieldContent(rec.Content)
		if err != nil {
			continue
		}

		info := &YieldInfo{
			YieldID:         yc.YieldID,
			ReplyTo:         yc.ReplyTo,
			PendingChildren: make(map[string]ChildStatus),
			Results:         make(map[string]string),
			ChildPath:       yc.ChildPath,
		}

		for _, childID := range yc.YieldContext.RunNodes {
			child, ok := s.Nodes[childID]
			if !ok {
				continue
			}
			if child.Status.IsTerminal() {
				resultID, err := s.findNodeResultID(ctx, st, childID)
				if err == nil {
					info.Results[childID] = resultID
				}
				continue
			}
			info.PendingChildren[childID] = childStatusOf(child.Status)
		}

		s.ActiveYields[*rec.NodeID] = info
	}
	return nil
}

// findNodeResultID locates the most recent node_result record for childID,
// so a reconstructed yield can link it into Results the same way a live
// process-exit would.
func (s *State) findNodeResultID(ctx context.Context, st store.Store, childID string) (string, error) {
	row, err := st.Reader(s.FlowID).
		WithNodes(childID).
		WithDataTypes(domain.DataNodeResult).
		Content(false).
		OrderBy("created_at", store.Descending).
		One(ctx)
	if err != nil {
		return "", err
	}
	return row.Record.DataID, nil
}
