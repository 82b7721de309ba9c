// Package statenode is a reference state/join-runtime: it has no side
// effect of its own, it just reshapes whatever inputs the engine has already
// merged for it into an object or array. Like the func and tool.call
// runtimes, and unlike the agent, cycle and parallel runtimes, it never
// yields — a state node's required inputs are exactly what the scheduler's
// input-readiness check already waits for, so by the time Execute
// runs there is nothing left to suspend on.
package statenode

import (
	"context"
	"sort"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/runtime"
)

// Runtime is the state node runtime.
type Runtime struct{}

// New builds a state runtime.
func New() *Runtime { return &Runtime{} }

func (r *Runtime) Type() domain.RuntimeType { return domain.RuntimeState }

func (r *Runtime) Execute(_ context.Context, rc runtime.RunContext) (runtime.Outcome, error) {
	cfg, err := domain.DecodeConfig[domain.StateConfig](rc.Config)
	if err != nil {
		return runtime.Outcome{}, err
	}

	m, _ := rc.Input.(map[string]any)
	ignored := make(map[string]bool, len(cfg.IgnoredKeys))
	for _, k := range cfg.IgnoredKeys {
		ignored[k] = true
	}

	filtered := make(map[string]any, len(m))
	for k, v := range m {
		if ignored[k] {
			continue
		}
		filtered[k] = v
	}

	if cfg.OutputMode == domain.OutputModeArray {
		keys := make([]string, 0, len(filtered))
		for k := range filtered {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, filtered[k])
		}
		return runtime.Completed(out, nil), nil
	}

	return runtime.Completed(filtered, nil), nil
}
