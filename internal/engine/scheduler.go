package engine

import (
	"sort"

	"github.com/smilemakc/dataflow/internal/domain"
)

// DecisionKind is the closed set of outcomes find_next_work can return.
type DecisionKind string

const (
	DecisionExecuteNodes     DecisionKind = "execute_nodes"
	DecisionSatisfyYield     DecisionKind = "satisfy_yield"
	DecisionCompleteWorkflow DecisionKind = "complete_workflow"
	DecisionNoWork           DecisionKind = "no_work"
)

// Decision is the Scheduler's pure output for one find_next_work call.
type Decision struct {
	Kind DecisionKind

	// execute_nodes
	NodeIDs []string

	// satisfy_yield
	ParentID string
	YieldID  string
	ReplyTo  string
	Results  map[string]string

	// complete_workflow
	Success bool

	Message string
}

func executeNodes(ids []string) Decision {
	return Decision{Kind: DecisionExecuteNodes, NodeIDs: ids}
}

func satisfyYield(parentID string, y *YieldInfo) Decision {
	return Decision{Kind: DecisionSatisfyYield, ParentID: parentID, YieldID: y.YieldID, ReplyTo: y.ReplyTo, Results: y.Results}
}

func completeWorkflow(success bool, message string) Decision {
	return Decision{Kind: DecisionCompleteWorkflow, Success: success, Message: message}
}

func noWork(message string) Decision {
	return Decision{Kind: DecisionNoWork, Message: message}
}

// SchedulerOptions are the scheduler's explicit concurrency tunables.
type SchedulerOptions struct {
	MaxConcurrentNodes     int
	EnableInputConcurrency bool
	// EnableYieldConcurrency is accepted for completeness but the scheduler
	// always runs at most one child per yield regardless of its value: never
	// more than one at a time from a single yield's children when
	// EnableYieldConcurrency is false.
	EnableYieldConcurrency bool
}

// DefaultSchedulerOptions returns the engine's default concurrency tunables.
func DefaultSchedulerOptions() SchedulerOptions {
	return SchedulerOptions{MaxConcurrentNodes: 10, EnableInputConcurrency: true, EnableYieldConcurrency: false}
}

// FindNextWork is the pure scheduler: a snapshot in, a single
// Decision out, following the priority order where the first matching rule
// wins.
func FindNextWork(s *State, opts SchedulerOptions) Decision {
	if d, ok := findYieldCompletion(s); ok {
		return d
	}
	if d, ok := findYieldWork(s); ok {
		return d
	}
	if d, ok := findInputReadyWork(s, opts); ok {
		return d
	}
	if d, ok := findRootDrivenWork(s, opts); ok {
		return d
	}
	return findCompletionOrDeadlock(s)
}

// Priority 1: yield-driven completion. Map iteration order is
// nondeterministic, which is fine here: any ordering within a tied match is
// as valid as any other.
func findYieldCompletion(s *State) (Decision, bool) {
	for parentID, y := range s.ActiveYields {
		if len(y.PendingChildren) > 0 && y.AllSettled() {
			return satisfyYield(parentID, y), true
		}
	}
	return Decision{}, false
}

// Priority 2: yield-driven work, or a yield deadlock.
func findYieldWork(s *State) (Decision, bool) {
	for parentID, y := range s.ActiveYields {
		if len(y.PendingChildren) == 0 {
			continue
		}

		anyRunning := false
		var runnable string
		for childID, status := range y.PendingChildren {
			if status != ChildPending {
				continue
			}
			if ns, ok := s.Nodes[childID]; ok && ns.Status == domain.NodeStatusRunning {
				anyRunning = true
				continue
			}
			if runnable == "" && s.HasRequiredInputs(childID) && !s.ActiveProcesses[childID] {
				runnable = childID
			}
		}
		if runnable != "" {
			return executeNodes([]string{runnable}), true
		}
		if !anyRunning {
			return completeWorkflow(false, "Yield deadlock at parent "+parentID), true
		}
	}
	return Decision{}, false
}

// Priority 3: input-ready work — top-level pending nodes (not yield
// children) whose declared requirements are satisfied.
func findInputReadyWork(s *State, opts SchedulerOptions) (Decision, bool) {
	var ready []string
	for _, id := range sortedNodeIDs(s) {
		ns := s.Nodes[id]
		if ns.Status != domain.NodeStatusPending || s.ActiveProcesses[id] || s.IsYieldChild(id) {
			continue
		}
		req, hasReq := s.Requirements[id]
		if !hasReq || len(req.Required) == 0 {
			continue
		}
		if s.HasRequiredInputs(id) {
			ready = append(ready, id)
		}
	}
	return capNodes(ready, opts)
}

// Priority 4: root-driven work — pending nodes with no declared
// requirements but at least one available input.
func findRootDrivenWork(s *State, opts SchedulerOptions) (Decision, bool) {
	var ready []string
	for _, id := range sortedNodeIDs(s) {
		ns := s.Nodes[id]
		if ns.Status != domain.NodeStatusPending || s.ActiveProcesses[id] || s.IsYieldChild(id) {
			continue
		}
		req, hasReq := s.Requirements[id]
		if hasReq && len(req.Required) > 0 {
			continue
		}
		if len(s.Available[id]) > 0 {
			ready = append(ready, id)
		}
	}
	return capNodes(ready, opts)
}

func capNodes(ready []string, opts SchedulerOptions) (Decision, bool) {
	if len(ready) == 0 {
		return Decision{}, false
	}
	if !opts.EnableInputConcurrency {
		return executeNodes(ready[:1]), true
	}
	limit := opts.MaxConcurrentNodes
	if limit <= 0 || limit > len(ready) {
		limit = len(ready)
	}
	return executeNodes(ready[:limit]), true
}

// Priority 5: completion check.
func findCompletionOrDeadlock(s *State) Decision {
	if len(s.Nodes) == 0 {
		return completeWorkflow(true, "Empty workflow")
	}
	if s.HasWorkflowError {
		return completeWorkflow(false, "Workflow terminated with error")
	}
	if s.HasWorkflowOutput {
		return completeWorkflow(true, "Workflow completed successfully")
	}
	for _, ns := range s.Nodes {
		if ns.Status == domain.NodeStatusRunning || s.ActiveProcesses[ns.NodeID] {
			return noWork("waiting for running nodes")
		}
	}

	pending := 0
	runnable := 0
	anyAvailable := false
	for _, ns := range s.Nodes {
		if ns.Status != domain.NodeStatusPending {
			continue
		}
		pending++
		if len(s.Available[ns.NodeID]) > 0 {
			anyAvailable = true
		}
		if s.HasRequiredInputs(ns.NodeID) {
			runnable++
		}
	}
	if pending == 0 {
		return completeWorkflow(false, "completed without producing output")
	}
	if runnable == 0 {
		if !anyAvailable {
			return completeWorkflow(false, "No input data provided")
		}
		return completeWorkflow(false, "deadlocked")
	}
	return noWork("waiting for external events")
}

// sortedNodeIDs gives node scans a stable order. Not strictly required
// since ties are implementation-free, but it makes scheduler tests
// reproducible.
func sortedNodeIDs(s *State) []string {
	ids := make([]string, 0, len(s.Nodes))
	for id := range s.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
