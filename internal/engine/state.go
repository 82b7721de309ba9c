// Package engine implements the workflow-state engine: the
// in-memory view of one flow's nodes, input availability, active yields and
// output flags, built by replaying persisted commands, and the pure
// Scheduler that decides what to run next from a snapshot of that
// state. The separation between a stateful in-memory run tracker and a
// stateless decision step is kept deliberately strict so the decision step
// stays trivially testable; the yield/deadlock semantics on top of it are
// this engine's own.
package engine

import (
	"encoding/json"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/store"
)

// NodeState is the engine's in-memory mirror of a persisted Node:
// {status, type, parent_node_id, metadata, config}.
type NodeState struct {
	NodeID       string
	Type         domain.RuntimeType
	Status       domain.NodeStatus
	ParentNodeID *string
	Config       map[string]any
	Metadata     map[string]any
}

func (n *NodeState) HasParent() bool {
	return n.ParentNodeID != nil && *n.ParentNodeID != ""
}

// State holds everything the engine tracks for one flow.
type State struct {
	FlowID string

	Nodes map[string]*NodeState

	// Requirements/Available together form the input_tracker (,
	//).
	Requirements map[string]domain.InputRequirements
	Available    map[string]map[string]bool

	ActiveProcesses map[string]bool
	ActiveYields    map[string]*YieldInfo

	HasWorkflowOutput bool
	HasWorkflowError  bool

	QueuedCommands []store.Command
}

// NewState returns an empty State for flowID.
func NewState(flowID string) *State {
	return &State{
		FlowID:          flowID,
		Nodes:           make(map[string]*NodeState),
		Requirements:    make(map[string]domain.InputRequirements),
		Available:       make(map[string]map[string]bool),
		ActiveProcesses: make(map[string]bool),
		ActiveYields:    make(map[string]*YieldInfo),
	}
}

func (s *State) registerNode(n *domain.Node) {
	ns := &NodeState{
		NodeID:       n.NodeID,
		Type:         n.Type,
		Status:       n.Status,
		ParentNodeID: n.ParentNodeID,
		Config:       n.Config,
		Metadata:     n.Metadata,
	}
	s.Nodes[n.NodeID] = ns

	if raw, ok := n.Config["inputs"]; ok {
		req, hasReq := decodeRequirements(raw)
		if hasReq {
			s.Requirements[n.NodeID] = req
		}
	}
}

// decodeRequirements round-trips whatever config["inputs"] holds (a
// map[string]any from a JSON-backed store, or a domain.InputRequirements
// value set directly by an in-process compile) into the typed shape.
func decodeRequirements(raw any) (domain.InputRequirements, bool) {
	if raw == nil {
		return domain.InputRequirements{}, false
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return domain.InputRequirements{}, false
	}
	var req domain.InputRequirements
	if err := json.Unmarshal(buf, &req); err != nil {
		return domain.InputRequirements{}, false
	}
	return req, true
}

func (s *State) applyUpdateNode(cmd store.Command) {
	ns, ok := s.Nodes[cmd.NodeID]
	if !ok {
		return
	}
	if cmd.StatusUpdate != nil {
		ns.Status = *cmd.StatusUpdate
	}
	if cmd.ConfigUpdate != nil {
		if ns.Config == nil {
			ns.Config = map[string]any{}
		}
		for k, v := range cmd.ConfigUpdate {
			ns.Config[k] = v
		}
	}
	if cmd.MetadataUpdate != nil {
		if ns.Metadata == nil {
			ns.Metadata = map[string]any{}
		}
		for k, v := range cmd.MetadataUpdate {
			ns.Metadata[k] = v
		}
	}
}

func (s *State) foldCreateData(rec *domain.Record) {
	switch rec.Type {
	case domain.DataWorkflowOutput:
		if rec.Discriminator == "error" {
			s.HasWorkflowError = true
		} else {
			s.HasWorkflowOutput = true
		}
	case domain.DataNodeInput:
		if rec.NodeID == nil {
			return
		}
		disc := rec.Discriminator
		if disc == "" {
			disc = rec.Key
		}
		if disc == "" {
			disc = domain.DefaultDiscriminator
		}
		if s.Available[*rec.NodeID] == nil {
			s.Available[*rec.NodeID] = map[string]bool{}
		}
		s.Available[*rec.NodeID][disc] = true
	}
}

// Fold applies the persistence engine's reported results for one commit
// into in-memory state.
func (s *State) Fold(results []store.Result) {
	for _, r := range results {
		s.foldOne(r.Input)
	}
}

func (s *State) foldOne(cmd store.Command) {
	switch cmd.Kind {
	case store.CommandCreateNode:
		s.registerNode(cmd.Node)
	case store.CommandUpdateNode:
		s.applyUpdateNode(cmd)
	case store.CommandDeleteNode:
		delete(s.Nodes, cmd.NodeID)
	case store.CommandCreateData:
		s.foldCreateData(cmd.Data)
	case store.CommandUpdateWorkflow, store.CommandApplyCommit:
		// update_workflow only touches flow-level metadata, which this
		// engine doesn't mirror node-wise; apply_commit is a pure replay
		// marker with no additional state to fold.
	}
}

// HasRequiredInputs implements: with no declared requirements, any
// observed input satisfies the node; otherwise every required key must be
// present.
func (s *State) HasRequiredInputs(nodeID string) bool {
	req, hasReq := s.Requirements[nodeID]
	avail := s.Available[nodeID]
	if !hasReq {
		return len(avail) > 0
	}
	for _, key := range req.Required {
		if !avail[key] {
			return false
		}
	}
	return true
}

// IsYieldChild reports whether nodeID is listed as a pending child of any
// active yield.
func (s *State) IsYieldChild(nodeID string) bool {
	for _, y := range s.ActiveYields {
		if _, ok := y.PendingChildren[nodeID]; ok {
			return true
		}
	}
	return false
}
