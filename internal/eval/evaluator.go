// Package eval adapts github.com/expr-lang/expr to the pure evaluator
// contract the core consumes: eval(expression, environment) -> (value, err).
// The evaluator itself is an external collaborator from the core's point of
// view — internal/routing and internal/runtime depend on the Evaluator
// interface, never on expr-lang directly.
package eval

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
)

// Evaluator evaluates an expression string against an environment map,
// returning the result or a compile/runtime error.
type Evaluator interface {
	Eval(expression string, env map[string]any) (any, error)
}

// ExprEvaluator implements Evaluator with github.com/expr-lang/expr.
// Programs are cached by source text since the same condition/transform
// string is evaluated repeatedly across iterations and parallel batches.
type ExprEvaluator struct {
	cache *programCache
}

// New creates an ExprEvaluator with program caching enabled.
func New() *ExprEvaluator {
	return &ExprEvaluator{cache: newProgramCache()}
}

// Eval compiles (or reuses a cached compile of) expression against a dynamic
// map environment and runs it. Compile errors and runtime errors are both
// returned as plain errors; the caller decides fatality.
func (e *ExprEvaluator) Eval(expression string, env map[string]any) (any, error) {
	if expression == "" {
		return nil, fmt.Errorf("eval: empty expression")
	}

	program, err := e.cache.get(expression)
	if err != nil {
		return nil, fmt.Errorf("eval: compile %q: %w", expression, err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("eval: run %q: %w", expression, err)
	}
	return result, nil
}

func compileOptions() []expr.Option {
	return []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.Function("sqrt", func(params ...any) (any, error) {
			f, err := toFloat(params[0])
			if err != nil {
				return nil, err
			}
			return math.Sqrt(f), nil
		}),
		expr.Function("pow", func(params ...any) (any, error) {
			base, err := toFloat(params[0])
			if err != nil {
				return nil, err
			}
			exp, err := toFloat(params[1])
			if err != nil {
				return nil, err
			}
			return math.Pow(base, exp), nil
		}),
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("eval: expected numeric argument, got %T", v)
	}
}
