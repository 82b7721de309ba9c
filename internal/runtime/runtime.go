// Package runtime hosts node runtimes: the workers that actually execute a
// node once the scheduler (internal/engine) decides it is
// runnable. Shaped like a NodeExecutor/NodeRuntime split with a registry of
// builtin node types, generalized to this engine's own yield/suspend
// protocol — a runtime may either finish outright or ask the host to
// suspend it behind a set of children.
package runtime

import (
	"context"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/eval"
	"github.com/smilemakc/dataflow/internal/store"
)

// RunContext is everything a NodeRuntime needs to execute one node.
type RunContext struct {
	FlowID   string
	NodeID   string
	Config   map[string]any
	Metadata map[string]any
	// Input is the already-merged value built by internal/routing (args
	// merged with inputs, input_transform applied).
	Input any

	Store     store.Store
	Evaluator eval.Evaluator
}

// ChildSpec describes a node a runtime wants the host to create as part of
// suspending itself (a cycle's template instantiation, a parallel batch
// member, an agent's tool call).
type ChildSpec struct {
	NodeID string
	Type   domain.RuntimeType
	Config map[string]any
}

// Yield is returned by a NodeRuntime that cannot complete synchronously: it
// names the children to create and run, and where the reply should resume
// once they settle.
type Yield struct {
	ReplyTo  string
	Children []ChildSpec
}

// Outcome is what Execute reports for one node invocation: either a
// synchronous result (Success/Output) or a Yield request. Exactly one of
// Yield or (Success, Output) is meaningful.
type Outcome struct {
	Yield   *Yield
	Success bool
	Output  any
	Err     error
	// Metadata, when non-nil, is merged into the node's own persisted
	// metadata alongside whatever else the outcome produces — a runtime's
	// only way to remember state across a yield/resume cycle, since the
	// engine gives it no other channel.
	Metadata map[string]any
}

// Completed builds a synchronous success/failure Outcome.
func Completed(output any, err error) Outcome {
	return Outcome{Success: err == nil, Output: output, Err: err}
}

// Suspended builds a Yield Outcome.
func Suspended(y Yield) Outcome {
	return Outcome{Yield: &y}
}

// WithMetadata attaches a metadata patch to an Outcome built by Completed or
// Suspended.
func (o Outcome) WithMetadata(m map[string]any) Outcome {
	o.Metadata = m
	return o
}

// NodeRuntime executes one runtime type. Implementations must be safe for
// concurrent use across distinct RunContext calls; Host itself calls
// Execute synchronously on the caller's goroutine.
type NodeRuntime interface {
	Type() domain.RuntimeType
	Execute(ctx context.Context, rc RunContext) (Outcome, error)
}

// Registry dispatches by domain.RuntimeType, the host-side analogue of the
// teacher's NodeRegistry (internal/application/registry).
type Registry struct {
	runtimes map[domain.RuntimeType]NodeRuntime
}

// NewRegistry builds a Registry from the given runtimes, keyed by their own
// Type().
func NewRegistry(runtimes ...NodeRuntime) *Registry {
	r := &Registry{runtimes: make(map[domain.RuntimeType]NodeRuntime, len(runtimes))}
	for _, rt := range runtimes {
		r.runtimes[rt.Type()] = rt
	}
	return r
}

// Lookup returns the runtime registered for typ, or nil if none is.
func (r *Registry) Lookup(typ domain.RuntimeType) NodeRuntime {
	return r.runtimes[typ]
}
