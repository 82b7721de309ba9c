package memstore

import (
	"context"
	"fmt"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/store"
)

// memReader is MemStore's store.Reader implementation. It operates on a
// point-in-time snapshot taken when a terminal method (All/One/Count/Exists)
// is invoked, so filter chaining itself never touches the lock.
type memReader struct {
	backend *MemStore
	filter  *store.Filter
}

func newMemReader(backend *MemStore, flowID string) *memReader {
	return &memReader{backend: backend, filter: store.NewFilter(flowID)}
}

func (r *memReader) WithNodes(nodeIDs ...string) store.Reader {
	r.filter.NodeIDs = append(r.filter.NodeIDs, nodeIDs...)
	return r
}

func (r *memReader) WithData(dataIDs ...string) store.Reader {
	r.filter.DataIDs = append(r.filter.DataIDs, dataIDs...)
	return r
}

func (r *memReader) WithDataTypes(types ...domain.DataType) store.Reader {
	r.filter.Types = append(r.filter.Types, types...)
	return r
}

func (r *memReader) Content(on bool) store.Reader {
	r.filter.WithContent = on
	return r
}

func (r *memReader) Metadata(on bool) store.Reader {
	r.filter.WithMetadata = on
	return r
}

func (r *memReader) ResolveReferences(on bool) store.Reader {
	r.filter.ResolveRefs = on
	return r
}

func (r *memReader) ReplaceReferences(on bool) store.Reader {
	r.filter.ReplaceRefs = on
	return r
}

func (r *memReader) OrderBy(field string, dir store.OrderDirection) store.Reader {
	r.filter.OrderField = field
	r.filter.OrderDir = dir
	return r
}

func (r *memReader) WithDataKeys(keys ...string) store.Reader {
	r.filter.Keys = append(r.filter.Keys, keys...)
	return r
}

func (r *memReader) WithDataDiscriminators(discriminators ...string) store.Reader {
	r.filter.Discriminators = append(r.filter.Discriminators, discriminators...)
	return r
}

// All executes the accumulated filter and returns every matching row,
// resolving or replacing references per the filter's flags.
func (r *memReader) All(_ context.Context) ([]store.Row, error) {
	candidates := r.backend.snapshot(r.filter.FlowID)

	rows := make([]store.Row, 0, len(candidates))
	for _, rec := range candidates {
		if !r.filter.Matches(&rec) {
			continue
		}
		row := store.Row{Record: rec}
		if !r.filter.WithContent {
			row.Record.Content = nil
		}
		if !r.filter.WithMetadata {
			row.Record.Metadata = nil
		}
		if rec.IsReference() && (r.filter.ResolveRefs || r.filter.ReplaceRefs) {
			r.resolveInto(&row, rec.Key)
		}
		rows = append(rows, row)
	}

	store.SortRows(rows, r.filter)
	return rows, nil
}

// resolveInto follows a reference's Key to its target record. A dangling
// reference (no matching data_id) leaves the row unresolved rather than
// failing the read.
func (r *memReader) resolveInto(row *store.Row, targetDataID string) {
	target, ok := r.backend.recordByID(targetDataID)
	if !ok {
		return
	}

	if r.filter.ReplaceRefs {
		row.Record.DataID = target.DataID
		row.Record.Key = target.Key
		row.Record.ContentType = target.ContentType
		row.Record.Content = target.Content
		if r.filter.WithMetadata {
			row.Record.Metadata = target.Metadata
		}
		return
	}

	row.RefType = target.Type
	row.RefDiscriminator = target.Discriminator
	row.RefKey = target.Key
	row.RefContentType = target.ContentType
	if r.filter.WithContent {
		row.RefContent = target.Content
	}
	if r.filter.WithMetadata {
		row.RefMetadata = target.Metadata
	}
	row.MarkRefResolved()
}

func (r *memReader) One(ctx context.Context) (*store.Row, error) {
	rows, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("memstore: no matching record")
	}
	return &rows[0], nil
}

func (r *memReader) Count(ctx context.Context) (int, error) {
	rows, err := r.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *memReader) Exists(ctx context.Context) (bool, error) {
	n, err := r.Count(ctx)
	return n > 0, err
}
