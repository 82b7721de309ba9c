package pg

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/store"
)

// pgReader is the bun-backed store.Reader. It defers actual query
// construction to the terminal methods, accumulating predicates on a
// store.Filter the same way memReader does.
type pgReader struct {
	db     *bun.DB
	filter *store.Filter
}

func newPgReader(db *bun.DB, flowID string) *pgReader {
	return &pgReader{db: db, filter: store.NewFilter(flowID)}
}

func (r *pgReader) WithNodes(nodeIDs ...string) store.Reader {
	r.filter.NodeIDs = append(r.filter.NodeIDs, nodeIDs...)
	return r
}

func (r *pgReader) WithData(dataIDs ...string) store.Reader {
	r.filter.DataIDs = append(r.filter.DataIDs, dataIDs...)
	return r
}

func (r *pgReader) WithDataTypes(types ...domain.DataType) store.Reader {
	r.filter.Types = append(r.filter.Types, types...)
	return r
}

func (r *pgReader) WithDataKeys(keys ...string) store.Reader {
	r.filter.Keys = append(r.filter.Keys, keys...)
	return r
}

func (r *pgReader) WithDataDiscriminators(discriminators ...string) store.Reader {
	r.filter.Discriminators = append(r.filter.Discriminators, discriminators...)
	return r
}

func (r *pgReader) Content(on bool) store.Reader {
	r.filter.WithContent = on
	return r
}

func (r *pgReader) Metadata(on bool) store.Reader {
	r.filter.WithMetadata = on
	return r
}

func (r *pgReader) ResolveReferences(on bool) store.Reader {
	r.filter.ResolveRefs = on
	return r
}

func (r *pgReader) ReplaceReferences(on bool) store.Reader {
	r.filter.ReplaceRefs = on
	return r
}

func (r *pgReader) OrderBy(field string, dir store.OrderDirection) store.Reader {
	r.filter.OrderField = field
	r.filter.OrderDir = dir
	return r
}

func (r *pgReader) query(ctx context.Context) ([]RecordModel, error) {
	var models []RecordModel
	q := r.db.NewSelect().Model(&models).Where("flow_id = ?", r.filter.FlowID)

	if len(r.filter.NodeIDs) > 0 {
		q = q.Where("node_id IN (?)", bun.In(r.filter.NodeIDs))
	}
	if len(r.filter.DataIDs) > 0 {
		q = q.Where("data_id IN (?)", bun.In(r.filter.DataIDs))
	}
	if len(r.filter.Types) > 0 {
		q = q.Where("type IN (?)", bun.In(toStrings(r.filter.Types)))
	}
	if len(r.filter.Keys) > 0 {
		q = q.Where("key IN (?)", bun.In(r.filter.Keys))
	}
	if len(r.filter.Discriminators) > 0 {
		q = q.Where("discriminator IN (?)", bun.In(r.filter.Discriminators))
	}

	orderCol := "created_at"
	if r.filter.OrderField == "data_id" {
		orderCol = "data_id"
	}
	dir := "ASC"
	if r.filter.OrderDir == store.Descending {
		dir = "DESC"
	}
	q = q.OrderExpr(fmt.Sprintf("%s %s", orderCol, dir))

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return models, nil
}

func toStrings(types []domain.DataType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// All executes the accumulated filter against Postgres and resolves
// references with one follow-up query per referencing row.
func (r *pgReader) All(ctx context.Context) ([]store.Row, error) {
	models, err := r.query(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]store.Row, 0, len(models))
	for _, m := range models {
		rec := m.toDomain()
		row := store.Row{Record: rec}
		if !r.filter.WithContent {
			row.Record.Content = nil
		}
		if !r.filter.WithMetadata {
			row.Record.Metadata = nil
		}
		if rec.IsReference() && (r.filter.ResolveRefs || r.filter.ReplaceRefs) {
			if err := r.resolveInto(ctx, &row, rec.Key); err != nil {
				return nil, err
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *pgReader) resolveInto(ctx context.Context, row *store.Row, targetDataID string) error {
	target := new(RecordModel)
	err := r.db.NewSelect().Model(target).Where("data_id = ?", targetDataID).Scan(ctx)
	if err != nil {
		// Dangling reference: leave unresolved rather than failing the read.
		return nil
	}

	t := target.toDomain()
	if r.filter.ReplaceRefs {
		row.Record.DataID = t.DataID
		row.Record.Key = t.Key
		row.Record.ContentType = t.ContentType
		row.Record.Content = t.Content
		if r.filter.WithMetadata {
			row.Record.Metadata = t.Metadata
		}
		return nil
	}

	row.RefType = t.Type
	row.RefDiscriminator = t.Discriminator
	row.RefKey = t.Key
	row.RefContentType = t.ContentType
	if r.filter.WithContent {
		row.RefContent = t.Content
	}
	if r.filter.WithMetadata {
		row.RefMetadata = t.Metadata
	}
	row.MarkRefResolved()
	return nil
}

func (r *pgReader) One(ctx context.Context) (*store.Row, error) {
	rows, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("pg: no matching record")
	}
	return &rows[0], nil
}

func (r *pgReader) Count(ctx context.Context) (int, error) {
	models, err := r.query(ctx)
	if err != nil {
		return 0, err
	}
	return len(models), nil
}

func (r *pgReader) Exists(ctx context.Context) (bool, error) {
	n, err := r.Count(ctx)
	return n > 0, err
}
