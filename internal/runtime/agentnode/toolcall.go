package agentnode

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/runtime"
)

// ToolHandler invokes one named tool with its raw (already-decoded)
// arguments and returns a JSON-serializable result.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// ToolCallRuntime executes the tool.call child nodes an agent's yield
// creates. It is mostly a viz/bookkeeping node — the actual side effect is
// whatever ToolHandler does; this runtime's job is just to decode the call
// the agent queued and report success/failure back through the normal
// process-exit path so the parent's yield resolves.
type ToolCallRuntime struct {
	handlers map[string]ToolHandler
}

// NewToolCallRuntime builds a tool.call runtime dispatching by tool name.
func NewToolCallRuntime(handlers map[string]ToolHandler) *ToolCallRuntime {
	return &ToolCallRuntime{handlers: handlers}
}

func (r *ToolCallRuntime) Type() domain.RuntimeType { return domain.RuntimeToolCall }

func (r *ToolCallRuntime) Execute(ctx context.Context, rc runtime.RunContext) (runtime.Outcome, error) {
	name, _ := rc.Config["tool_name"].(string)
	handler, ok := r.handlers[name]
	if !ok {
		return runtime.Completed(nil, fmt.Errorf("toolcall: unknown tool %q", name)), nil
	}

	var args map[string]any
	if raw, ok := rc.Config["arguments"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return runtime.Completed(nil, fmt.Errorf("toolcall: decode arguments: %w", err)), nil
		}
	}

	out, err := handler(ctx, args)
	return runtime.Completed(out, err), nil
}
