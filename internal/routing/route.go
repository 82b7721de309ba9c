// Package routing implements the transform/condition layer applied to a
// node's outgoing edges at completion, and the input/args merging rules
// applied at node entry. It depends only on internal/eval's Evaluator
// contract and internal/domain's types, never on a specific node runtime.
package routing

import (
	"encoding/json"
	"fmt"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/domain/dferrors"
	"github.com/smilemakc/dataflow/internal/eval"
)

// DecodeTargets pulls a []domain.Target out of a node's raw config value,
// which may arrive either as the compiler's own typed slice (same-process
// invocation) or as the generic []any/map[string]any shape a JSON
// round-trip through persistence produces.
func DecodeTargets(raw any) ([]domain.Target, error) {
	if raw == nil {
		return nil, nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("routing: marshal targets: %w", err)
	}
	var targets []domain.Target
	if err := json.Unmarshal(buf, &targets); err != nil {
		return nil, fmt.Errorf("routing: unmarshal targets: %w", err)
	}
	return targets, nil
}

// Outcome is what applying one target produces: either a skip, or a
// concrete data record ready for a create_data command.
type Outcome struct {
	Skipped bool
	Record  *domain.Record
}

// Env is the environment exposed to condition/transform expressions:
// {output, error, node: {node_id}, input}.
type Env struct {
	Output any
	Err    any
	NodeID string
	Input  any
}

func (e Env) toMap() map[string]any {
	return map[string]any{
		"output": e.Output,
		"error":  e.Err,
		"node":   map[string]any{"node_id": e.NodeID},
		"input":  e.Input,
	}
}

// Apply implements steps 1-3 for a single target: evaluate condition
// (if set), evaluate transform (if set), and build the create_data record
// for the target. isError distinguishes data_targets from error_targets: a
// condition/transform evaluation error is fatal on a data target, tolerated
// (silently skipped) on an error target, so a failing error-routing rule
// never masks the original node failure.
func Apply(evaluator eval.Evaluator, flowID, sourceNodeID string, target domain.Target, env Env, isError bool) (Outcome, error) {
	content := env.Output
	if isError {
		content = env.Err
	}

	if target.Condition != "" {
		result, err := evaluator.Eval(target.Condition, env.toMap())
		if err != nil {
			if isError {
				return Outcome{Skipped: true}, nil
			}
			return Outcome{}, dferrors.NewEngineError(dferrors.CodeConditionEval, flowID, sourceNodeID, "condition evaluation failed: "+err.Error(), err)
		}
		if !truthy(result) {
			return Outcome{Skipped: true}, nil
		}
	}

	if target.Transform != "" {
		transformed, err := evaluator.Eval(target.Transform, env.toMap())
		if err != nil {
			if isError {
				return Outcome{Skipped: true}, nil
			}
			return Outcome{}, dferrors.NewEngineError(dferrors.CodeTransformEval, flowID, sourceNodeID, "transform evaluation failed: "+err.Error(), err)
		}
		content = transformed
	}

	var nodeID *string
	if target.NodeID != "" {
		id := target.NodeID
		nodeID = &id
	}

	rec := domain.NewRecord(flowID, nodeID, target.DataType, target.Discriminator, "", content, "", target.Metadata)
	return Outcome{Record: rec}, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		return true
	}
}
