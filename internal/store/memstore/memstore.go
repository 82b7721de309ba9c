// Package memstore is an in-memory Store implementation, grounded on the
// teacher's mutex-guarded map-of-entities pattern
// (internal/infrastructure/storage/memory.go). It backs engine/compiler
// tests and embedded (no-database) use of the engine.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/notify"
	"github.com/smilemakc/dataflow/internal/store"
)

// MemStore is an in-memory, process-local Store.
type MemStore struct {
	mu      sync.RWMutex
	flows   map[string]*domain.Flow
	nodes   map[string]*domain.Node
	records map[string]*domain.Record
	// seenOps dedups apply_commit retries by op_id.
	seenOps map[string]*store.CommitResult

	notifier notify.Notifier
}

// New creates an empty MemStore. notifier may be nil (no publish support).
func New(notifier notify.Notifier) *MemStore {
	return &MemStore{
		flows:    make(map[string]*domain.Flow),
		nodes:    make(map[string]*domain.Node),
		records:  make(map[string]*domain.Record),
		seenOps:  make(map[string]*store.CommitResult),
		notifier: notifier,
	}
}

func (s *MemStore) CreateFlow(_ context.Context, flow *domain.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flow.FlowID] = flow
	return nil
}

func (s *MemStore) GetFlow(_ context.Context, flowID string) (*domain.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flows[flowID]
	if !ok {
		return nil, fmt.Errorf("memstore: flow %s not found", flowID)
	}
	return f, nil
}

func (s *MemStore) GetNode(_ context.Context, flowID, nodeID string) (*domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[nodeID]
	if !ok || n.FlowID != flowID {
		return nil, fmt.Errorf("memstore: node %s not found in flow %s", nodeID, flowID)
	}
	return n.Clone(), nil
}

func (s *MemStore) ListNodes(_ context.Context, flowID string) ([]domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Node
	for _, n := range s.nodes {
		if n.FlowID == flowID {
			out = append(out, *n.Clone())
		}
	}
	return out, nil
}

// Execute applies commands atomically (guarded by a single lock acquisition)
// and in listed order. Retried opIDs replay the cached result rather
// than re-applying side effects, giving at-least-once idempotent semantics
// at this boundary.
func (s *MemStore) Execute(ctx context.Context, flowID, opID string, commands []store.Command, publish bool) (*store.CommitResult, error) {
	s.mu.Lock()
	if cached, ok := s.seenOps[opID]; ok {
		s.mu.Unlock()
		return cached, nil
	}

	results := make([]store.Result, 0, len(commands))
	for _, cmd := range commands {
		res, err := s.applyLocked(flowID, cmd)
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("memstore: apply %s: %w", cmd.Kind, err)
		}
		results = append(results, res)
	}

	commitResult := &store.CommitResult{OpID: opID, Results: results}
	s.seenOps[opID] = commitResult
	s.mu.Unlock()

	if publish && s.notifier != nil {
		s.notifier.Publish(ctx, notify.CommitApplied{FlowID: flowID, OpID: opID, Results: results})
	}

	return commitResult, nil
}

func (s *MemStore) applyLocked(flowID string, cmd store.Command) (store.Result, error) {
	switch cmd.Kind {
	case store.CommandCreateData:
		rec := cmd.Data
		if rec.FlowID == "" {
			rec.FlowID = flowID
		}
		s.records[rec.DataID] = rec
		return store.Result{Input: cmd, DataID: rec.DataID}, nil

	case store.CommandCreateNode:
		n := cmd.Node
		if n.FlowID == "" {
			n.FlowID = flowID
		}
		s.nodes[n.NodeID] = n.Clone()
		return store.Result{Input: cmd, NodeID: n.NodeID}, nil

	case store.CommandUpdateNode:
		n, ok := s.nodes[cmd.NodeID]
		if !ok {
			return store.Result{}, fmt.Errorf("update_node: node %s not found", cmd.NodeID)
		}
		if cmd.StatusUpdate != nil {
			n.Status = *cmd.StatusUpdate
		}
		if cmd.ConfigUpdate != nil {
			n.Config = cmd.ConfigUpdate
		}
		if cmd.MetadataUpdate != nil {
			if n.Metadata == nil {
				n.Metadata = map[string]any{}
			}
			for k, v := range cmd.MetadataUpdate {
				n.Metadata[k] = v
			}
		}
		return store.Result{Input: cmd, NodeID: cmd.NodeID}, nil

	case store.CommandDeleteNode:
		delete(s.nodes, cmd.NodeID)
		return store.Result{Input: cmd, NodeID: cmd.NodeID}, nil

	case store.CommandUpdateWorkflow:
		f, ok := s.flows[flowID]
		if !ok {
			return store.Result{}, fmt.Errorf("update_workflow: flow %s not found", flowID)
		}
		f.MergeMetadata(cmd.FlowMetadata)
		return store.Result{Input: cmd}, nil

	case store.CommandApplyCommit:
		// Replaying a previous commit id is a no-op here: MemStore already
		// dedups at the opID level in Execute, so a nested apply_commit
		// command (used by the state engine to fold in prior compiler
		// output) resolves to a no-op regardless of whether cmd.CommitID
		// was previously seen.
		return store.Result{Input: cmd}, nil

	default:
		return store.Result{}, fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}

// Reader starts a query over flowID's records.
func (s *MemStore) Reader(flowID string) store.Reader {
	return newMemReader(s, flowID)
}

// snapshot returns a defensive copy of every record in the flow, used by
// memReader so query execution never races with concurrent writers.
func (s *MemStore) snapshot(flowID string) []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Record, 0, len(s.records))
	for _, r := range s.records {
		if r.FlowID == flowID {
			out = append(out, *r)
		}
	}
	return out
}

// recordByID looks up a single record by id, used for reference resolution.
func (s *MemStore) recordByID(dataID string) (*domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[dataID]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}
