package routing

import (
	"fmt"

	"github.com/smilemakc/dataflow/internal/eval"
)

// Inputs is the map a node runtime's inputs() call exposes: one entry per
// observed node_input record, keyed by discriminator (or key, or "default").
type Inputs map[string]any

// Merge implements the args-merging behavior: with
// config.args set, inputs are shallow-merged into a copy of args (inputs
// shadow args fields); without args, a single "default" input passes
// through raw, a single named input is wrapped as {name: value}, and
// multiple named inputs are presented as the map itself.
func Merge(args map[string]any, inputs Inputs) any {
	if args != nil {
		merged := make(map[string]any, len(args)+len(inputs))
		for k, v := range args {
			merged[k] = v
		}
		for k, v := range inputs {
			merged[k] = v
		}
		return merged
	}

	if len(inputs) == 1 {
		for k, v := range inputs {
			if k == "default" {
				return v
			}
			return map[string]any{k: v}
		}
	}
	return map[string]any(inputs)
}

// TransformInput implements the input_transform behavior: a string
// transform evaluates once against env={input, inputs, output} and yields a
// single value under "default"; a table transform evaluates each field
// expression separately and returns the resulting object.
func TransformInput(evaluator eval.Evaluator, transform any, input any, inputs Inputs, output any) (map[string]any, error) {
	env := map[string]any{"input": input, "inputs": map[string]any(inputs), "output": output}

	switch t := transform.(type) {
	case string:
		result, err := evaluator.Eval(t, env)
		if err != nil {
			return nil, fmt.Errorf("Input transformation failed: %w", err)
		}
		return map[string]any{"default": result}, nil

	case map[string]any:
		out := make(map[string]any, len(t))
		for field, expr := range t {
			exprStr, ok := expr.(string)
			if !ok {
				out[field] = expr
				continue
			}
			result, err := evaluator.Eval(exprStr, env)
			if err != nil {
				return nil, fmt.Errorf("Transform failed for %s: %w", field, err)
			}
			out[field] = result
		}
		return out, nil

	default:
		return nil, fmt.Errorf("input_transform: unsupported type %T", transform)
	}
}
