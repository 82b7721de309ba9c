// Package parallelnode is a reference parallel-runtime: fans an array input
// out across N copies of a one-node nested template, waits for all of them
// via a single yield, then reduces their outcomes per on_error/filter/unwrap
// settings; passthrough_keys is decoded but not applied. Shaped like a worker pool, generalized from a
// fixed goroutine pool to the engine's suspend/resume model: every batch
// child is created and yielded in one shot, unlike cyclenode's
// one-child-per-iteration loop, because a parallel fan-out has no ordering
// dependency between iterations.
package parallelnode

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/runtime"
	"github.com/smilemakc/dataflow/internal/store"
)

// Runtime is the parallel node runtime.
type Runtime struct{}

// New builds a parallel runtime.
func New() *Runtime { return &Runtime{} }

func (r *Runtime) Type() domain.RuntimeType { return domain.RuntimeParallel }

// parallelState is persisted under the node's metadata.parallel_state across
// the single yield/resume cycle a parallel node goes through: dispatch all
// batch children, then reduce once they've all settled.
type parallelState struct {
	Dispatched bool           `json:"dispatched"`
	ChildIndex map[string]int `json:"child_index,omitempty"`
}

func (r *Runtime) Execute(ctx context.Context, rc runtime.RunContext) (runtime.Outcome, error) {
	cfg, err := domain.DecodeConfig[domain.ParallelConfig](rc.Config)
	if err != nil {
		return runtime.Outcome{}, fmt.Errorf("parallelnode: decode config: %w", err)
	}
	if cfg.SourceArrayKey == "" {
		return runtime.Completed(nil, fmt.Errorf("parallelnode: source_array_key is required")), nil
	}

	state := loadState(rc.Metadata)
	if !state.Dispatched {
		return r.dispatch(ctx, rc, cfg, state)
	}
	return r.reduce(ctx, rc, cfg, state)
}

func (r *Runtime) dispatch(ctx context.Context, rc runtime.RunContext, cfg *domain.ParallelConfig, state *parallelState) (runtime.Outcome, error) {
	items, err := sourceArray(rc.Input, cfg.SourceArrayKey)
	if err != nil {
		return runtime.Completed(nil, err), nil
	}
	if len(items) == 0 {
		return runtime.Completed([]any{}, nil), nil
	}

	template, err := findTemplate(ctx, rc)
	if err != nil {
		return runtime.Outcome{}, err
	}
	if template == nil {
		return runtime.Completed(nil, fmt.Errorf("parallelnode: no nested template found")), nil
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	iterKey := cfg.IterationInputKey
	if iterKey == "" {
		iterKey = domain.DefaultDiscriminator
	}

	batches := chunk(items, batchSize)
	children := make([]runtime.ChildSpec, 0, len(batches))
	state.ChildIndex = make(map[string]int, len(batches))

	for i, batch := range batches {
		childID := domain.NewID()
		var payload any = batch
		if batchSize == 1 {
			payload = batch[0]
		}
		children = append(children, runtime.ChildSpec{
			NodeID: childID,
			Type:   template.Type,
			Config: templateInput(template.Config, iterKey, payload),
		})
		state.ChildIndex[childID] = i
	}
	state.Dispatched = true

	outcome := runtime.Suspended(runtime.Yield{
		ReplyTo:  "parallel:" + rc.NodeID,
		Children: children,
	})
	return outcome.WithMetadata(stateMetadata(state)), nil
}

type iterationResult struct {
	Index   int
	Success bool
	Output  any
}

func (r *Runtime) reduce(ctx context.Context, rc runtime.RunContext, cfg *domain.ParallelConfig, state *parallelState) (runtime.Outcome, error) {
	results := make([]iterationResult, 0, len(state.ChildIndex))
	for childID, idx := range state.ChildIndex {
		node, err := rc.Store.GetNode(ctx, rc.FlowID, childID)
		if err != nil {
			return runtime.Outcome{}, fmt.Errorf("parallelnode: get child %s: %w", childID, err)
		}
		success := node.Status == domain.NodeStatusCompletedSuccess
		content, err := readChildResult(ctx, rc, childID)
		if err != nil {
			return runtime.Outcome{}, err
		}
		results = append(results, iterationResult{Index: idx, Success: success, Output: content})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	if err := recordIterations(ctx, rc, results); err != nil {
		return runtime.Outcome{}, err
	}

	onError := cfg.OnError
	if onError == "" {
		onError = domain.OnErrorContinue
	}

	var firstFailure *iterationResult
	for i := range results {
		if !results[i].Success && firstFailure == nil {
			firstFailure = &results[i]
		}
	}

	if onError == domain.OnErrorFailFast && firstFailure != nil {
		partial := map[string]any{}
		for _, res := range results {
			partial[fmt.Sprintf("%d", res.Index)] = res.Output
		}
		return runtime.Completed(map[string]any{
			"code":            "ITERATION_FAILED",
			"partial_results": partial,
		}, fmt.Errorf("parallelnode: iteration %d failed", firstFailure.Index)), nil
	}

	filter := cfg.Filter
	if filter == "" {
		filter = domain.FilterAll
	}

	output := make([]any, 0, len(results))
	for _, res := range results {
		switch filter {
		case domain.FilterSuccesses:
			if !res.Success {
				continue
			}
		case domain.FilterFailures:
			if res.Success {
				continue
			}
		}
		if cfg.Unwrap {
			output = append(output, res.Output)
		} else {
			output = append(output, map[string]any{"index": res.Index, "success": res.Success, "output": res.Output})
		}
	}

	return runtime.Completed(output, nil), nil
}

func loadState(metadata map[string]any) *parallelState {
	raw, ok := metadata["parallel_state"]
	if !ok {
		return &parallelState{}
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return &parallelState{}
	}
	var s parallelState
	if err := json.Unmarshal(buf, &s); err != nil {
		return &parallelState{}
	}
	return &s
}

func stateMetadata(state *parallelState) map[string]any {
	return map[string]any{"parallel_state": state}
}

func sourceArray(input any, key string) ([]any, error) {
	m, ok := input.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parallelnode: input is not an object, cannot read %q", key)
	}
	raw, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("parallelnode: source_array_key %q not found in input", key)
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("parallelnode: %q is not an array", key)
	}
	return arr, nil
}

func chunk(items []any, size int) [][]any {
	batches := make([][]any, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches
}

func templateInput(templateConfig map[string]any, iterKey string, payload any) map[string]any {
	cfg := make(map[string]any, len(templateConfig)+1)
	for k, v := range templateConfig {
		cfg[k] = v
	}
	args, _ := cfg["args"].(map[string]any)
	merged := make(map[string]any, len(args)+1)
	for k, v := range args {
		merged[k] = v
	}
	merged[iterKey] = payload
	cfg["args"] = merged
	return cfg
}

func findTemplate(ctx context.Context, rc runtime.RunContext) (*domain.Node, error) {
	nodes, err := rc.Store.ListNodes(ctx, rc.FlowID)
	if err != nil {
		return nil, fmt.Errorf("parallelnode: list nodes: %w", err)
	}
	for i := range nodes {
		n := &nodes[i]
		if n.Status == domain.NodeStatusTemplate && n.HasParent() && *n.ParentNodeID == rc.NodeID {
			return n, nil
		}
	}
	return nil, nil
}

// recordIterations writes one iteration_result/iteration_error record per
// settled batch child, discriminated by iteration index, as a silent commit
// alongside the parallel node's own process-exit record. Gives fail_fast's
// partial_results and successes/failures filtering a durable per-iteration
// trail independent of the aggregated output the node itself returns.
func recordIterations(ctx context.Context, rc runtime.RunContext, results []iterationResult) error {
	if len(results) == 0 {
		return nil
	}
	cmds := make([]store.Command, 0, len(results))
	for _, res := range results {
		typ := domain.DataIterationResult
		if !res.Success {
			typ = domain.DataIterationError
		}
		disc := strconv.Itoa(res.Index)
		rec := domain.NewRecord(rc.FlowID, &rc.NodeID, typ, disc, "", res.Output, "", nil)
		cmds = append(cmds, store.CreateDataCommand(rec))
	}
	_, err := rc.Store.Execute(ctx, rc.FlowID, domain.NewID(), cmds, false)
	if err != nil {
		return fmt.Errorf("parallelnode: record iterations: %w", err)
	}
	return nil
}

// readChildResult reads a batch child's node_result content. A child that
// never persisted one (e.g. cancelled before producing output) contributes
// nil rather than failing the whole reduce.
func readChildResult(ctx context.Context, rc runtime.RunContext, childID string) (any, error) {
	rows, err := rc.Store.Reader(rc.FlowID).
		WithNodes(childID).
		WithDataTypes(domain.DataNodeResult).
		Content(true).
		OrderBy("created_at", "desc").
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("parallelnode: read result for %s: %w", childID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].Record.Content, nil
}
