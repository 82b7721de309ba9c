// Package dataflow is the public facade over the engine: it re-exports the
// types a caller needs to compile, persist, and drive a flow without
// reaching into internal/*, and wires a default Engine with every built-in
// node runtime registered — public interfaces and type aliases in front of
// internal/domain and internal/engine, plus constructor functions that
// assemble a ready-to-use engine.
package dataflow

import (
	"context"
	"fmt"

	"github.com/smilemakc/dataflow/internal/compiler"
	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/engine"
	"github.com/smilemakc/dataflow/internal/eval"
	"github.com/smilemakc/dataflow/internal/notify"
	"github.com/smilemakc/dataflow/internal/platform/config"
	"github.com/smilemakc/dataflow/internal/platform/logger"
	"github.com/smilemakc/dataflow/internal/runtime"
	"github.com/smilemakc/dataflow/internal/runtime/agentnode"
	"github.com/smilemakc/dataflow/internal/runtime/cyclenode"
	"github.com/smilemakc/dataflow/internal/runtime/funcnode"
	"github.com/smilemakc/dataflow/internal/runtime/parallelnode"
	"github.com/smilemakc/dataflow/internal/runtime/statenode"
	"github.com/smilemakc/dataflow/internal/store"
	"github.com/smilemakc/dataflow/internal/store/memstore"
	"github.com/smilemakc/dataflow/internal/store/pg"
)

// Re-exported domain types, so callers never need to import internal/domain.
type (
	Flow   = domain.Flow
	Node   = domain.Node
	Record = domain.Record
	Target = domain.Target
)

// Re-exported compiler surface: the fluent operation-stream builder and its
// output.
type (
	Op             = compiler.Op
	Template       = compiler.Template
	Graph          = compiler.Graph
	SessionContext = compiler.SessionContext
)

var (
	WithInput = compiler.WithInput
	WithData  = compiler.WithData
	Func      = compiler.Func
	Agent     = compiler.Agent
	Cycle     = compiler.Cycle
	Parallel  = compiler.Parallel
	State     = compiler.State
	Use       = compiler.Use
	As        = compiler.As
	To        = compiler.To
	ErrorTo   = compiler.ErrorTo
	When      = compiler.When
	Compile   = compiler.Compile
)

// Store is the persistence contract a dataflow Engine runs against.
type Store = store.Store

// Config is the process-wide tunable set (scheduler concurrency, log
// level/format, database DSN), loaded from the environment.
type Config = config.Config

// LoadConfig reads Config from the environment with the engine's defaults.
func LoadConfig() *Config { return config.Load() }

// SetupLogging configures the global structured logger.
func SetupLogging(level, format string) { logger.Setup(level, format) }

// NewMemoryStore builds an in-process Store backed by a map, suitable for
// tests and single-process deployments. notifier may be nil.
func NewMemoryStore(notifier notify.Notifier) Store {
	return memstore.New(notifier)
}

// NewPostgresStore builds a Store persisted to Postgres via uptrace/bun.
// Call InitSchema once before first use.
func NewPostgresStore(dsn string, notifier notify.Notifier) *pg.Store {
	return pg.New(dsn, notifier)
}

// NewHub builds a websocket fan-out hub implementing notify.Notifier. Call
// Run in a goroutine before passing it to a Store constructor.
func NewHub() *notify.Hub {
	return notify.NewHub(zerologGlobal())
}

// RuntimeDeps are the external collaborators the built-in node runtimes
// need: an OpenAI-compatible chat client for agent nodes, an HTTP client
// plus func_id -> Endpoint bindings for func nodes, and named tool handlers
// shared between agent and tool.call nodes. Any of these may be left at
// their zero value if the corresponding node type is unused by a flow.
type RuntimeDeps struct {
	OpenAIClient agentnode.Client
	AgentModel   string
	AgentTools   map[string]agentnode.ToolSpec

	HTTPClient       funcnode.HTTPClient
	FuncEndpoints    map[string]funcnode.Endpoint
	ToolHandlers     map[string]agentnode.ToolHandler
	ParallelInvokers int // reserved: parallel/cycle currently share funcnode's Call, no extra config needed
}

// NewDefaultRegistry wires every built-in node runtime (func, agent,
// tool.call, cycle, parallel, state) into one Registry, the way the
// teacher's NewExecutor assembles a WorkflowEngine by registering one
// executor per node type.
func NewDefaultRegistry(deps RuntimeDeps) *runtime.Registry {
	fn := funcnode.New(deps.FuncEndpoints, deps.HTTPClient)
	return runtime.NewRegistry(
		fn,
		agentnode.New(deps.OpenAIClient, deps.AgentModel, deps.AgentTools),
		agentnode.NewToolCallRuntime(deps.ToolHandlers),
		cyclenode.New(fn),
		parallelnode.New(),
		statenode.New(),
	)
}

// Engine drives a single flow to completion against a Store, using the
// scheduler's find_next_work/execute/satisfy_yield loop, built around a
// persistent, resumable process model: a Run call can be interrupted and
// resumed later by re-loading the same flow ID.
type Engine struct {
	store    Store
	host     *runtime.Host
	opts     engine.SchedulerOptions
}

// NewEngine builds an Engine against st, dispatching node execution through
// registry. cfg supplies the scheduler's concurrency tunables; pass nil to
// use engine.DefaultSchedulerOptions.
func NewEngine(st Store, registry *runtime.Registry, cfg *Config) *Engine {
	opts := engine.DefaultSchedulerOptions()
	if cfg != nil {
		opts = engine.SchedulerOptions{
			MaxConcurrentNodes:     cfg.MaxConcurrentNodes,
			EnableInputConcurrency: cfg.EnableInputConcurrency,
			EnableYieldConcurrency: cfg.EnableYieldConcurrency,
		}
	}
	return &Engine{
		store: st,
		host:  runtime.NewHost(st, eval.New(), registry),
		opts:  opts,
	}
}

// StartFlow compiles ops into a new flow, persists the compiled graph, and
// returns the new flow's ID.
func (e *Engine) StartFlow(ctx context.Context, actorID string, ops []Op) (string, error) {
	flow := domain.NewFlow(actorID, nil)
	if err := e.store.CreateFlow(ctx, flow); err != nil {
		return "", fmt.Errorf("create flow: %w", err)
	}

	_, cmds, err := compiler.Compile(ops, SessionContext{})
	if err != nil {
		return "", fmt.Errorf("compile: %w", err)
	}
	if _, err := e.store.Execute(ctx, flow.FlowID, domain.NewID(), cmds, false); err != nil {
		return "", fmt.Errorf("materialize graph: %w", err)
	}
	return flow.FlowID, nil
}

// RunResult reports how a Run call ended.
type RunResult struct {
	Completed bool
	Success   bool
	Message   string
	Steps     int
}

// Run drives flowID forward until the scheduler reports the workflow
// complete or has no more work to do without external input
// (complete_workflow/no_work decisions). It loads fresh State from st each
// call, so Run is safe to call again later against the same flow ID to
// resume after a host restart.
func (e *Engine) Run(ctx context.Context, flowID string) (RunResult, error) {
	s, err := engine.Load(ctx, e.store, flowID)
	if err != nil {
		return RunResult{}, fmt.Errorf("load flow: %w", err)
	}

	steps := 0
	for {
		decision := engine.FindNextWork(s, e.opts)
		switch decision.Kind {
		case engine.DecisionExecuteNodes:
			for _, nodeID := range decision.NodeIDs {
				if err := e.host.RunNode(ctx, s, nodeID); err != nil {
					return RunResult{}, fmt.Errorf("run node %s: %w", nodeID, err)
				}
				steps++
			}
		case engine.DecisionSatisfyYield:
			if err := e.host.SatisfyYield(ctx, s, decision.ParentID); err != nil {
				return RunResult{}, fmt.Errorf("satisfy yield %s: %w", decision.ParentID, err)
			}
			steps++
		case engine.DecisionCompleteWorkflow:
			return RunResult{Completed: true, Success: decision.Success, Message: decision.Message, Steps: steps}, nil
		case engine.DecisionNoWork:
			return RunResult{Completed: false, Message: decision.Message, Steps: steps}, nil
		}
	}
}
