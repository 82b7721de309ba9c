package engine

import (
	"context"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/store"
)

// BuildProcessExitCommands implements steps (a)-(b) of "Process
// exit": the status update and node_result record a driver persists when a
// node runtime reports completion. The caller executes the returned
// commands through the Store, then passes the resulting CommitResult to
// ApplyProcessExit to fold steps (c)-(e) into memory.
func (s *State) BuildProcessExitCommands(nodeID string, success bool, resultContent any) (domain.NodeStatus, []store.Command) {
	status := domain.NodeStatusCompletedFailure
	discriminator := "result.error"
	if success {
		status = domain.NodeStatusCompletedSuccess
		discriminator = "result.success"
	}

	rec := domain.NewRecord(s.FlowID, &nodeID, domain.DataNodeResult, discriminator, "", resultContent, "", nil)
	cmds := []store.Command{
		store.UpdateNodeCommand(nodeID, &status, nil, nil),
		store.CreateDataCommand(rec),
	}
	return status, cmds
}

// ApplyProcessExit folds an already-persisted process-exit commit into
// memory: (a) the node leaves active_processes, (b) its status/result
// become visible via Fold, (c) a parent yield listing this node is updated,
// (d) deadlock detection runs on the parent's remaining pending children and,
// when it fires, persists their cancellation through st the same way
// recoverCrashedNodes persists its own silent commit. Step (e) — marking the
// yield ready for satisfaction — falls out of (c)/(d) automatically: the
// scheduler's yield-completion check reads YieldInfo.AllSettled() on the
// next find_next_work call.
func (s *State) ApplyProcessExit(ctx context.Context, st store.Store, nodeID string, status domain.NodeStatus, result *store.CommitResult) error {
	delete(s.ActiveProcesses, nodeID)
	s.Fold(result.Results)

	var resultDataID string
	for _, r := range result.Results {
		if r.Input.Kind == store.CommandCreateData && r.Input.Data != nil && r.Input.Data.Type == domain.DataNodeResult {
			resultDataID = r.DataID
		}
	}
	s.RecordChildResult(nodeID, status, resultDataID)

	child, ok := s.Nodes[nodeID]
	if !ok || !child.HasParent() {
		return nil
	}
	cancelled := s.DetectYieldDeadlock(*child.ParentNodeID)
	if len(cancelled) == 0 {
		return nil
	}

	cancelledStatus := domain.NodeStatusCancelled
	cmds := make([]store.Command, 0, len(cancelled))
	for _, id := range cancelled {
		meta := cloneMeta(s.Nodes[id].Metadata)
		meta["cancel_reason"] = "yield_deadlock"
		cmds = append(cmds, store.UpdateNodeCommand(id, &cancelledStatus, nil, meta))
	}
	deadlockResult, err := st.Execute(ctx, s.FlowID, domain.NewID(), cmds, false)
	if err != nil {
		return err
	}
	s.Fold(deadlockResult.Results)
	return nil
}

// BuildYieldCommand implements the write half of yield protocol: a
// node_yield record for the given parent, children, and reply channel.
func (s *State) BuildYieldCommand(parentNodeID, yieldID, replyTo string, runNodeIDs, childPath []string) store.Command {
	content := RunNodes(yieldID, replyTo, runNodeIDs, childPath)
	rec := domain.NewRecord(s.FlowID, &parentNodeID, domain.DataNodeYield, domain.DefaultDiscriminator, "", content, "", nil)
	return store.CreateDataCommand(rec)
}

// RegisterYield folds a freshly-persisted node_yield into active_yields,
// the live-path analogue of load.go's reconstructYields.
func (s *State) RegisterYield(parentNodeID, yieldID, replyTo string, runNodeIDs, childPath []string) {
	info := &YieldInfo{
		YieldID:         yieldID,
		ReplyTo:         replyTo,
		PendingChildren: make(map[string]ChildStatus, len(runNodeIDs)),
		Results:         make(map[string]string),
		ChildPath:       childPath,
	}
	for _, id := range runNodeIDs {
		info.PendingChildren[id] = ChildPending
	}
	s.ActiveYields[parentNodeID] = info
}

// BuildSatisfyYieldCommand implements "Satisfaction": a
// node_yield_result record keyed by the yield's id, carrying whatever
// results were collected.
func (s *State) BuildSatisfyYieldCommand(parentNodeID string) (store.Command, bool) {
	y, ok := s.ActiveYields[parentNodeID]
	if !ok {
		return store.Command{}, false
	}
	content := map[string]any{"yield_id": y.YieldID, "results": y.Results}
	rec := domain.NewRecord(s.FlowID, &parentNodeID, domain.DataNodeYieldResult, domain.DefaultDiscriminator, "", content, "", nil)
	return store.CreateDataCommand(rec), true
}

// CompleteYield removes a satisfied yield from active_yields.
func (s *State) CompleteYield(parentNodeID string) {
	delete(s.ActiveYields, parentNodeID)
}
