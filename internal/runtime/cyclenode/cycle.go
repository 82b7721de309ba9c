// Package cyclenode is a reference cycle-runtime: repeats a step — either a
// single func_id call or a one-node nested template — until a
// continue_condition expression or continue_func_id call says stop, or
// max_iterations is reached. Shaped like a retry loop (attempt, delay,
// repeat) generalized from a fixed retry count to a data-driven continue
// check, and built on the engine's own yield protocol for the
// nested-template case since a template step is itself a full node
// invocation the host must run.
package cyclenode

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/runtime"
)

// FuncInvoker calls a func_id directly, outside the NodeRuntime contract —
// satisfied by *funcnode.Runtime's Call method.
type FuncInvoker interface {
	Call(ctx context.Context, funcID string, input any) (any, error)
}

// Runtime is the cycle node runtime.
type Runtime struct {
	funcs FuncInvoker
}

// New builds a cycle runtime. funcs services both a func_id step and a
// continue_func_id check; it may be nil if a deployment only uses
// nested-template cycles with continue_condition.
func New(funcs FuncInvoker) *Runtime {
	return &Runtime{funcs: funcs}
}

func (r *Runtime) Type() domain.RuntimeType { return domain.RuntimeCycle }

// cycleState is persisted under the node's metadata.cycle_state across both
// synchronous iterations and yield/resume cycles (the nested-template case
// suspends once per iteration, so the loop position must survive a resume
// the same way the agent runtime's conversation does).
type cycleState struct {
	Value          map[string]any `json:"value"`
	Iteration      int            `json:"iteration"`
	PendingChildID string         `json:"pending_child_id,omitempty"`
}

func (r *Runtime) Execute(ctx context.Context, rc runtime.RunContext) (runtime.Outcome, error) {
	cfg, err := domain.DecodeConfig[domain.CycleConfig](rc.Config)
	if err != nil {
		return runtime.Outcome{}, fmt.Errorf("cyclenode: decode config: %w", err)
	}

	state := loadState(rc.Metadata)
	if state.Value == nil {
		state.Value = cfg.InitialState
		if state.Value == nil {
			state.Value = map[string]any{}
		}
	}

	if state.PendingChildID != "" {
		result, err := readChildResult(ctx, rc, state.PendingChildID)
		if err != nil {
			return runtime.Outcome{}, err
		}
		if next, ok := result.(map[string]any); ok {
			state.Value = next
		} else if result != nil {
			state.Value = map[string]any{"value": result}
		}
		state.PendingChildID = ""
	}

	for {
		shouldContinue, err := r.checkContinue(ctx, rc, cfg, state)
		if err != nil {
			return runtime.Completed(nil, err), nil
		}
		if !shouldContinue || (cfg.MaxIterations > 0 && state.Iteration >= cfg.MaxIterations) {
			return runtime.Completed(state.Value, nil), nil
		}
		state.Iteration++

		if cfg.FuncID != "" {
			if r.funcs == nil {
				return runtime.Completed(nil, fmt.Errorf("cyclenode: func_id step configured without a func invoker")), nil
			}
			out, err := r.funcs.Call(ctx, cfg.FuncID, state.Value)
			if err != nil {
				return runtime.Completed(nil, fmt.Errorf("cyclenode: step %s: %w", cfg.FuncID, err)), nil
			}
			if next, ok := out.(map[string]any); ok {
				state.Value = next
			} else if out != nil {
				state.Value = map[string]any{"value": out}
			}
			continue
		}

		template, err := findTemplate(ctx, rc)
		if err != nil {
			return runtime.Outcome{}, err
		}
		if template == nil {
			return runtime.Completed(nil, fmt.Errorf("cyclenode: no func_id and no nested template found")), nil
		}

		childID := domain.NewID()
		state.PendingChildID = childID
		outcome := runtime.Suspended(runtime.Yield{
			ReplyTo: "cycle:" + rc.NodeID,
			Children: []runtime.ChildSpec{
				{NodeID: childID, Type: template.Type, Config: templateInput(template.Config, state.Value)},
			},
		})
		return outcome.WithMetadata(stateMetadata(state)), nil
	}
}

// checkContinue evaluates continue_condition (an expr-lang expression over
// {state, iteration, input}) or calls continue_func_id, defaulting to "keep
// going" when neither is configured and max_iterations alone bounds the
// loop.
func (r *Runtime) checkContinue(ctx context.Context, rc runtime.RunContext, cfg *domain.CycleConfig, state *cycleState) (bool, error) {
	switch {
	case cfg.ContinueCondition != "":
		if rc.Evaluator == nil {
			return false, fmt.Errorf("cyclenode: continue_condition configured without an evaluator")
		}
		env := map[string]any{"state": state.Value, "iteration": state.Iteration, "input": rc.Input}
		out, err := rc.Evaluator.Eval(cfg.ContinueCondition, env)
		if err != nil {
			return false, fmt.Errorf("cyclenode: continue_condition: %w", err)
		}
		return truthy(out), nil
	case cfg.ContinueFuncID != "":
		if r.funcs == nil {
			return false, fmt.Errorf("cyclenode: continue_func_id configured without a func invoker")
		}
		out, err := r.funcs.Call(ctx, cfg.ContinueFuncID, map[string]any{"state": state.Value, "iteration": state.Iteration})
		if err != nil {
			return false, err
		}
		return truthy(out), nil
	default:
		return true, nil
	}
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case nil:
		return false
	default:
		return true
	}
}

func loadState(metadata map[string]any) *cycleState {
	raw, ok := metadata["cycle_state"]
	if !ok {
		return &cycleState{}
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return &cycleState{}
	}
	var s cycleState
	if err := json.Unmarshal(buf, &s); err != nil {
		return &cycleState{}
	}
	return &s
}

func stateMetadata(state *cycleState) map[string]any {
	return map[string]any{"cycle_state": state}
}

// templateInput seeds a fresh template child's config.args.state with the
// cycle's running state; the iteration count is not passed to the template
// step.
func templateInput(templateConfig map[string]any, state map[string]any) map[string]any {
	cfg := make(map[string]any, len(templateConfig)+1)
	for k, v := range templateConfig {
		cfg[k] = v
	}
	args, _ := cfg["args"].(map[string]any)
	merged := make(map[string]any, len(args)+1)
	for k, v := range args {
		merged[k] = v
	}
	merged["state"] = state
	cfg["args"] = merged
	return cfg
}

// findTemplate returns the single template-status child of this cycle node,
// the reference implementation's supported shape for a "nested template"
//: one step node, re-instantiated fresh each iteration. A
// multi-node template graph is out of scope here — see DESIGN.md.
func findTemplate(ctx context.Context, rc runtime.RunContext) (*domain.Node, error) {
	nodes, err := rc.Store.ListNodes(ctx, rc.FlowID)
	if err != nil {
		return nil, fmt.Errorf("cyclenode: list nodes: %w", err)
	}
	for i := range nodes {
		n := &nodes[i]
		if n.Status == domain.NodeStatusTemplate && n.HasParent() && *n.ParentNodeID == rc.NodeID {
			return n, nil
		}
	}
	return nil, nil
}

func readChildResult(ctx context.Context, rc runtime.RunContext, childID string) (any, error) {
	row, err := rc.Store.Reader(rc.FlowID).
		WithNodes(childID).
		WithDataTypes(domain.DataNodeResult).
		Content(true).
		OrderBy("created_at", "desc").
		One(ctx)
	if err != nil {
		return nil, fmt.Errorf("cyclenode: read step result for %s: %w", childID, err)
	}
	return row.Record.Content, nil
}
