package runtime

import (
	"context"
	"fmt"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/domain/dferrors"
	"github.com/smilemakc/dataflow/internal/engine"
	"github.com/smilemakc/dataflow/internal/eval"
	"github.com/smilemakc/dataflow/internal/routing"
	"github.com/smilemakc/dataflow/internal/store"
)

// Host drives one node invocation end to end: gather its inputs, dispatch to
// the right NodeRuntime, route the outcome, and fold the resulting commit
// into the engine's in-memory State. Split out as its own type because this
// engine separates the pure decision step (scheduler.FindNextWork) from the
// side effects a decision implies.
type Host struct {
	Store     store.Store
	Evaluator eval.Evaluator
	Registry  *Registry
}

// NewHost builds a Host.
func NewHost(st store.Store, evaluator eval.Evaluator, registry *Registry) *Host {
	return &Host{Store: st, Evaluator: evaluator, Registry: registry}
}

// RunNode executes a single node named by the scheduler's execute_nodes
// decision, persists whatever commands that produces (process exit, routed
// data_targets/error_targets, or a suspending node_yield), and folds the
// result into s. It writes to s's maps without locking, so concurrent calls
// against the same State are not safe.
func (h *Host) RunNode(ctx context.Context, s *engine.State, nodeID string) error {
	ns, ok := s.Nodes[nodeID]
	if !ok {
		return fmt.Errorf("runtime: node %s not registered", nodeID)
	}
	rt := h.Registry.Lookup(ns.Type)
	if rt == nil {
		return dferrors.NewEngineError(dferrors.CodeInvalidConfig, s.FlowID, nodeID, "no runtime registered for type "+string(ns.Type), nil)
	}

	merged, err := h.gatherInput(ctx, s.FlowID, ns)
	if err != nil {
		return err
	}

	rc := RunContext{
		FlowID:    s.FlowID,
		NodeID:    nodeID,
		Config:    ns.Config,
		Metadata:  ns.Metadata,
		Input:     merged,
		Store:     h.Store,
		Evaluator: h.Evaluator,
	}

	s.ActiveProcesses[nodeID] = true
	outcome, err := rt.Execute(ctx, rc)
	if err != nil {
		outcome = Completed(nil, err)
	}

	if outcome.Yield != nil {
		return h.applyYield(ctx, s, nodeID, *outcome.Yield, outcome.Metadata)
	}
	return h.applyCompletion(ctx, s, ns, nodeID, outcome, merged)
}

// gatherInput reads every node_input record for this node (references
// replaced by their target's content) and merges it per input-merging rules.
func (h *Host) gatherInput(ctx context.Context, flowID string, ns *engine.NodeState) (any, error) {
	rows, err := h.Store.Reader(flowID).
		WithNodes(ns.NodeID).
		WithDataTypes(domain.DataNodeInput).
		Content(true).
		ReplaceReferences(true).
		All(ctx)
	if err != nil {
		return nil, err
	}

	inputs := make(routing.Inputs, len(rows))
	for _, row := range rows {
		disc := row.Record.Discriminator
		if disc == "" {
			disc = domain.DefaultDiscriminator
		}
		inputs[disc] = row.Record.Content
	}

	var args map[string]any
	if raw, ok := ns.Config["args"].(map[string]any); ok {
		args = raw
	}
	merged := routing.Merge(args, inputs)

	if transform, ok := ns.Config["input_transform"]; ok && transform != nil {
		out, err := routing.TransformInput(h.Evaluator, transform, merged, inputs, nil)
		if err != nil {
			return nil, dferrors.NewEngineError(dferrors.CodeTransformEval, flowID, ns.NodeID, err.Error(), err)
		}
		return out, nil
	}
	return merged, nil
}

// applyCompletion builds and executes the process-exit commit for a
// synchronously-completed node: the node_result record plus whatever
// data_targets/error_targets fire.
func (h *Host) applyCompletion(ctx context.Context, s *engine.State, ns *engine.NodeState, nodeID string, outcome Outcome, input any) error {
	status, cmds := s.BuildProcessExitCommands(nodeID, outcome.Success, completionContent(outcome))
	if outcome.Metadata != nil {
		cmds = append(cmds, store.UpdateNodeCommand(nodeID, nil, nil, outcome.Metadata))
	}

	targets, err := routing.DecodeTargets(ns.Config["data_targets"])
	if err != nil {
		return err
	}
	errTargets, err := routing.DecodeTargets(ns.Config["error_targets"])
	if err != nil {
		return err
	}

	env := routing.Env{Output: outcome.Output, NodeID: nodeID, Input: input}
	if !outcome.Success {
		env.Err = errContent(outcome.Err)
	}

	routeSet := targets
	isError := false
	if !outcome.Success {
		routeSet = errTargets
		isError = true
	}
	for _, target := range routeSet {
		routed, err := routing.Apply(h.Evaluator, s.FlowID, nodeID, target, env, isError)
		if err != nil {
			return err
		}
		if routed.Skipped {
			continue
		}
		cmds = append(cmds, store.CreateDataCommand(routed.Record))
	}

	result, err := h.Store.Execute(ctx, s.FlowID, domain.NewID(), cmds, true)
	if err != nil {
		return dferrors.NewEngineError(dferrors.CodePersistenceFailure, s.FlowID, nodeID, err.Error(), err)
	}
	return s.ApplyProcessExit(ctx, h.Store, nodeID, status, result)
}

// applyYield persists a node_yield record for a suspending node along with
// its newly-created children, then folds it into s.
func (h *Host) applyYield(ctx context.Context, s *engine.State, nodeID string, y Yield, metadata map[string]any) error {
	childIDs := make([]string, 0, len(y.Children))
	cmds := make([]store.Command, 0, len(y.Children)+2)
	if metadata != nil {
		cmds = append(cmds, store.UpdateNodeCommand(nodeID, nil, nil, metadata))
	}
	for _, child := range y.Children {
		childID := child.NodeID
		if childID == "" {
			childID = domain.NewID()
		}
		parentID := nodeID
		cmds = append(cmds, store.CreateNodeCommand(&domain.Node{
			NodeID:       childID,
			FlowID:       s.FlowID,
			ParentNodeID: &parentID,
			Type:         child.Type,
			Status:       domain.NodeStatusPending,
			Config:       child.Config,
		}))
		childIDs = append(childIDs, childID)
	}

	yieldID := domain.NewID()
	childPath := ancestorPath(s, nodeID)
	cmds = append(cmds, s.BuildYieldCommand(nodeID, yieldID, y.ReplyTo, childIDs, childPath))

	result, err := h.Store.Execute(ctx, s.FlowID, domain.NewID(), cmds, true)
	if err != nil {
		return dferrors.NewEngineError(dferrors.CodePersistenceFailure, s.FlowID, nodeID, err.Error(), err)
	}
	delete(s.ActiveProcesses, nodeID)
	s.Fold(result.Results)
	s.RegisterYield(nodeID, yieldID, y.ReplyTo, childIDs, childPath)
	return nil
}

// SatisfyYield implements the driver side of "Satisfaction": emit
// the node_yield_result record, drop the yield from active_yields, then
// resume the parent node by re-invoking its runtime — the parent's own
// reply_to channel is this re-invocation, since this host has no literal
// blocked goroutine to wake.
func (h *Host) SatisfyYield(ctx context.Context, s *engine.State, parentID string) error {
	cmd, ok := s.BuildSatisfyYieldCommand(parentID)
	if !ok {
		return fmt.Errorf("runtime: no active yield for parent %s", parentID)
	}
	result, err := h.Store.Execute(ctx, s.FlowID, domain.NewID(), []store.Command{cmd}, true)
	if err != nil {
		return dferrors.NewEngineError(dferrors.CodePersistenceFailure, s.FlowID, parentID, err.Error(), err)
	}
	s.Fold(result.Results)
	s.CompleteYield(parentID)
	return h.RunNode(ctx, s, parentID)
}

// ancestorPath walks a node's parent chain, outermost ancestor first,
// ending with nodeID itself — the child_path attaches to a node_yield
// record.
func ancestorPath(s *engine.State, nodeID string) []string {
	var path []string
	cur := nodeID
	for cur != "" {
		path = append([]string{cur}, path...)
		ns, ok := s.Nodes[cur]
		if !ok || !ns.HasParent() {
			break
		}
		cur = *ns.ParentNodeID
	}
	return path
}

func completionContent(o Outcome) any {
	if o.Success {
		return o.Output
	}
	return errContent(o.Err)
}

func errContent(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}
