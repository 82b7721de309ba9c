package engine

import (
	"encoding/json"

	"github.com/smilemakc/dataflow/internal/domain"
)

// ChildStatus mirrors a yield's view of one of its children.
type ChildStatus string

const (
	ChildPending           ChildStatus = "pending"
	ChildCompletedSuccess  ChildStatus = "completed_success"
	ChildCompletedFailure  ChildStatus = "completed_failure"
	ChildCancelled         ChildStatus = "cancelled"
)

func childStatusOf(s domain.NodeStatus) ChildStatus {
	switch s {
	case domain.NodeStatusCompletedSuccess:
		return ChildCompletedSuccess
	case domain.NodeStatusCompletedFailure:
		return ChildCompletedFailure
	case domain.NodeStatusCancelled:
		return ChildCancelled
	default:
		return ChildPending
	}
}

// YieldInfo is the engine's view of one active yield.
type YieldInfo struct {
	YieldID         string
	ReplyTo         string
	PendingChildren map[string]ChildStatus
	Results         map[string]string // child_id -> node_result data_id
	ChildPath       []string
}

// AllSettled reports whether every listed child has left ChildPending.
func (y *YieldInfo) AllSettled() bool {
	for _, status := range y.PendingChildren {
		if status == ChildPending {
			return false
		}
	}
	return true
}

// yieldContent is the persisted shape of a node_yield record's content:
// {yield_id, reply_to, yield_context: {run_nodes}, child_path}.
type yieldContent struct {
	YieldID      string `json:"yield_id"`
	ReplyTo      string `json:"reply_to"`
	YieldContext struct {
		RunNodes []string `json:"run_nodes"`
	} `json:"yield_context"`
	ChildPath []string `json:"child_path"`
}

func decodeYieldContent(content any) (*yieldContent, error) {
	buf, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	var yc yieldContent
	if err := json.Unmarshal(buf, &yc); err != nil {
		return nil, err
	}
	return &yc, nil
}

// RunNodes builds the content for a node_yield record a node runtime writes
// when it suspends.
func RunNodes(yieldID, replyTo string, runNodeIDs, childPath []string) map[string]any {
	return map[string]any{
		"yield_id": yieldID,
		"reply_to": replyTo,
		"yield_context": map[string]any{
			"run_nodes": runNodeIDs,
		},
		"child_path": childPath,
	}
}

// RecordChildResult implements step (c) of "process exit": when a
// completed node has a parent with an active yield listing it, update that
// yield's bookkeeping.
func (s *State) RecordChildResult(childID string, status domain.NodeStatus, resultDataID string) {
	child, ok := s.Nodes[childID]
	if !ok || !child.HasParent() {
		return
	}
	yield, ok := s.ActiveYields[*child.ParentNodeID]
	if !ok {
		return
	}
	if _, tracked := yield.PendingChildren[childID]; !tracked {
		return
	}
	yield.PendingChildren[childID] = childStatusOf(status)
	if status.IsTerminal() {
		yield.Results[childID] = resultDataID
	}
}

// DetectYieldDeadlock handles the case where, for an active yield, no child is
// running and no pending child has its required inputs: every pending
// child's yield-bookkeeping entry is marked cancelled so the yield is ready
// for satisfaction with whatever results exist. It does not itself touch
// node status/metadata — the cancellation still needs to be persisted, so
// the caller (ApplyProcessExit) builds update_node commands for the
// returned ids, runs them through the Store, and folds the result the same
// way every other state mutation reaches s.Nodes.
func (s *State) DetectYieldDeadlock(parentID string) []string {
	yield, ok := s.ActiveYields[parentID]
	if !ok {
		return nil
	}

	anyRunning := false
	anyRunnable := false
	for childID, status := range yield.PendingChildren {
		if status != ChildPending {
			continue
		}
		if ns, ok := s.Nodes[childID]; ok && ns.Status == domain.NodeStatusRunning {
			anyRunning = true
		}
		if s.HasRequiredInputs(childID) {
			anyRunnable = true
		}
	}
	if anyRunning || anyRunnable {
		return nil
	}

	var cancelled []string
	for childID, status := range yield.PendingChildren {
		if status != ChildPending {
			continue
		}
		yield.PendingChildren[childID] = ChildCancelled
		cancelled = append(cancelled, childID)
	}
	return cancelled
}
