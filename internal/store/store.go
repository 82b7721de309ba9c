// Package store implements the data-record table and reader and the
// commit/persistence surface the Compiler and workflow-state engine drive
// through. It is the concrete backend for the persistence engine, an
// external collaborator from the core's point of view: internal/engine and
// internal/compiler depend only on the Store interface below.
package store

import (
	"context"

	"github.com/smilemakc/dataflow/internal/domain"
)

// Store is the persistence surface consumed by the Compiler's command
// emission and the workflow-state engine's command ingestion.
type Store interface {
	// Execute applies commands atomically and in order under a single
	// commit, identified by opID for dedup on retry. When publish is true,
	// subscribers are notified once the commit lands (internal/notify).
	Execute(ctx context.Context, flowID, opID string, commands []Command, publish bool) (*CommitResult, error)

	GetFlow(ctx context.Context, flowID string) (*domain.Flow, error)
	CreateFlow(ctx context.Context, flow *domain.Flow) error

	GetNode(ctx context.Context, flowID, nodeID string) (*domain.Node, error)
	ListNodes(ctx context.Context, flowID string) ([]domain.Node, error)

	// Reader starts a new query over flowID's data records.
	Reader(flowID string) Reader
}
