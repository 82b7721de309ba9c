// Package pg is the Postgres-backed Store implementation, built on
// uptrace/bun with pgdialect/pgdriver. This engine persists exactly three
// tables — flows, nodes, and data records — mirroring the domain model in
// internal/domain.
package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/notify"
	"github.com/smilemakc/dataflow/internal/store"
)

// Store is a Postgres-backed store.Store.
type Store struct {
	db       *bun.DB
	notifier notify.Notifier
}

// New opens a connection pool against dsn and wraps it as a Store. notifier
// may be nil (no publish support).
func New(dsn string, notifier notify.Notifier) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &Store{db: db, notifier: notifier}
}

// InitSchema creates the engine's tables if they don't already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	models := []any{
		(*FlowModel)(nil),
		(*NodeModel)(nil),
		(*RecordModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies connectivity, for health checks.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// FlowModel is the row shape for the flows table.
type FlowModel struct {
	bun.BaseModel `bun:"table:flows,alias:f"`

	FlowID    string         `bun:"flow_id,pk"`
	ActorID   string         `bun:"actor_id"`
	Status    string         `bun:"status"`
	Metadata  map[string]any `bun:"metadata,type:jsonb"`
	CreatedAt time.Time      `bun:"created_at"`
	UpdatedAt time.Time      `bun:"updated_at"`
}

func newFlowModel(f *domain.Flow) *FlowModel {
	return &FlowModel{
		FlowID:    f.FlowID,
		ActorID:   f.ActorID,
		Status:    string(f.Status),
		Metadata:  f.Metadata,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func (m *FlowModel) toDomain() *domain.Flow {
	return &domain.Flow{
		FlowID:    m.FlowID,
		ActorID:   m.ActorID,
		Status:    domain.FlowStatus(m.Status),
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// NodeModel is the row shape for the nodes table.
type NodeModel struct {
	bun.BaseModel `bun:"table:nodes,alias:n"`

	NodeID       string         `bun:"node_id,pk"`
	FlowID       string         `bun:"flow_id"`
	ParentNodeID *string        `bun:"parent_node_id"`
	Type         string         `bun:"type"`
	Status       string         `bun:"status"`
	Config       map[string]any `bun:"config,type:jsonb"`
	Metadata     map[string]any `bun:"metadata,type:jsonb"`
}

func newNodeModel(n *domain.Node) *NodeModel {
	return &NodeModel{
		NodeID:       n.NodeID,
		FlowID:       n.FlowID,
		ParentNodeID: n.ParentNodeID,
		Type:         string(n.Type),
		Status:       string(n.Status),
		Config:       n.Config,
		Metadata:     n.Metadata,
	}
}

func (m *NodeModel) toDomain() *domain.Node {
	return &domain.Node{
		NodeID:       m.NodeID,
		FlowID:       m.FlowID,
		ParentNodeID: m.ParentNodeID,
		Type:         domain.RuntimeType(m.Type),
		Status:       domain.NodeStatus(m.Status),
		Config:       m.Config,
		Metadata:     m.Metadata,
	}
}

// RecordModel is the row shape for the data-record table.
type RecordModel struct {
	bun.BaseModel `bun:"table:data_records,alias:d"`

	DataID        string         `bun:"data_id,pk"`
	FlowID        string         `bun:"flow_id"`
	NodeID        *string        `bun:"node_id"`
	Type          string         `bun:"type"`
	Discriminator string         `bun:"discriminator"`
	Key           string         `bun:"key"`
	Content       any            `bun:"content,type:jsonb"`
	ContentType   string         `bun:"content_type"`
	Metadata      map[string]any `bun:"metadata,type:jsonb"`
	CreatedAt     time.Time      `bun:"created_at"`
}

func newRecordModel(r *domain.Record) *RecordModel {
	return &RecordModel{
		DataID:        r.DataID,
		FlowID:        r.FlowID,
		NodeID:        r.NodeID,
		Type:          string(r.Type),
		Discriminator: r.Discriminator,
		Key:           r.Key,
		Content:       r.Content,
		ContentType:   r.ContentType,
		Metadata:      r.Metadata,
		CreatedAt:     r.CreatedAt,
	}
}

func (m *RecordModel) toDomain() domain.Record {
	return domain.Record{
		DataID:        m.DataID,
		FlowID:        m.FlowID,
		NodeID:        m.NodeID,
		Type:          domain.DataType(m.Type),
		Discriminator: m.Discriminator,
		Key:           m.Key,
		Content:       m.Content,
		ContentType:   m.ContentType,
		Metadata:      m.Metadata,
		CreatedAt:     m.CreatedAt,
	}
}

func (s *Store) CreateFlow(ctx context.Context, flow *domain.Flow) error {
	_, err := s.db.NewInsert().Model(newFlowModel(flow)).Exec(ctx)
	return err
}

func (s *Store) GetFlow(ctx context.Context, flowID string) (*domain.Flow, error) {
	model := new(FlowModel)
	if err := s.db.NewSelect().Model(model).Where("flow_id = ?", flowID).Scan(ctx); err != nil {
		return nil, err
	}
	return model.toDomain(), nil
}

func (s *Store) GetNode(ctx context.Context, flowID, nodeID string) (*domain.Node, error) {
	model := new(NodeModel)
	err := s.db.NewSelect().Model(model).
		Where("flow_id = ?", flowID).
		Where("node_id = ?", nodeID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return model.toDomain(), nil
}

func (s *Store) ListNodes(ctx context.Context, flowID string) ([]domain.Node, error) {
	var models []NodeModel
	if err := s.db.NewSelect().Model(&models).Where("flow_id = ?", flowID).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Node, 0, len(models))
	for _, m := range models {
		out = append(out, *m.toDomain())
	}
	return out, nil
}

// Execute applies commands in listed order inside a single transaction,
// matching the teacher's RunInTx usage for multi-row aggregate writes, so a
// failing command rolls back the whole batch. opID is not persisted: a
// retried opID applies its commands again rather than replaying an earlier
// result.
func (s *Store) Execute(ctx context.Context, flowID, opID string, commands []store.Command, publish bool) (*store.CommitResult, error) {
	var results []store.Result

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		results = make([]store.Result, 0, len(commands))
		for _, cmd := range commands {
			res, err := applyInTx(ctx, tx, flowID, cmd)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	commitResult := &store.CommitResult{OpID: opID, Results: results}

	if publish && s.notifier != nil {
		s.notifier.Publish(ctx, notify.CommitApplied{FlowID: flowID, OpID: opID, Results: results})
	}

	return commitResult, nil
}

func applyInTx(ctx context.Context, tx bun.Tx, flowID string, cmd store.Command) (store.Result, error) {
	switch cmd.Kind {
	case store.CommandCreateData:
		rec := cmd.Data
		if rec.FlowID == "" {
			rec.FlowID = flowID
		}
		if _, err := tx.NewInsert().Model(newRecordModel(rec)).Exec(ctx); err != nil {
			return store.Result{}, err
		}
		return store.Result{Input: cmd, DataID: rec.DataID}, nil

	case store.CommandCreateNode:
		n := cmd.Node
		if n.FlowID == "" {
			n.FlowID = flowID
		}
		if _, err := tx.NewInsert().Model(newNodeModel(n)).Exec(ctx); err != nil {
			return store.Result{}, err
		}
		return store.Result{Input: cmd, NodeID: n.NodeID}, nil

	case store.CommandUpdateNode:
		query := tx.NewUpdate().Model((*NodeModel)(nil)).Where("node_id = ?", cmd.NodeID)
		applied := false
		if cmd.StatusUpdate != nil {
			query = query.Set("status = ?", string(*cmd.StatusUpdate))
			applied = true
		}
		if cmd.ConfigUpdate != nil {
			query = query.Set("config = ?", cmd.ConfigUpdate)
			applied = true
		}
		if cmd.MetadataUpdate != nil {
			query = query.Set("metadata = metadata || ?", cmd.MetadataUpdate)
			applied = true
		}
		if applied {
			if _, err := query.Exec(ctx); err != nil {
				return store.Result{}, err
			}
		}
		return store.Result{Input: cmd, NodeID: cmd.NodeID}, nil

	case store.CommandDeleteNode:
		if _, err := tx.NewDelete().Model((*NodeModel)(nil)).Where("node_id = ?", cmd.NodeID).Exec(ctx); err != nil {
			return store.Result{}, err
		}
		return store.Result{Input: cmd, NodeID: cmd.NodeID}, nil

	case store.CommandUpdateWorkflow:
		if _, err := tx.NewUpdate().Model((*FlowModel)(nil)).
			Set("metadata = metadata || ?", cmd.FlowMetadata).
			Set("updated_at = ?", time.Now().UTC()).
			Where("flow_id = ?", flowID).
			Exec(ctx); err != nil {
			return store.Result{}, err
		}
		return store.Result{Input: cmd}, nil

	case store.CommandApplyCommit:
		return store.Result{Input: cmd}, nil

	default:
		return store.Result{}, errUnknownCommand(cmd.Kind)
	}
}

func errUnknownCommand(kind store.CommandKind) error {
	return &unknownCommandError{kind: kind}
}

type unknownCommandError struct{ kind store.CommandKind }

func (e *unknownCommandError) Error() string {
	return "pg: unknown command kind " + string(e.kind)
}

// Reader starts a query over flowID's data records.
func (s *Store) Reader(flowID string) store.Reader {
	return newPgReader(s.db, flowID)
}
