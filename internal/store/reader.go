package store

import (
	"context"
	"sort"

	"github.com/smilemakc/dataflow/internal/domain"
)

// OrderDirection controls Reader.OrderBy.
type OrderDirection string

const (
	Ascending  OrderDirection = "asc"
	Descending OrderDirection = "desc"
)

// Row is one projected result from a Reader query. When ResolveReferences is
// on and the candidate record is a reference, Ref* fields are filled from
// the target record; dangling references simply leave them zero-valued
//. When ReplaceReferences is on, Record itself is
// rewritten in place to look like the resolved target.
type Row struct {
	Record domain.Record

	RefContent       any
	RefContentType   string
	RefType          domain.DataType
	RefDiscriminator string
	RefKey           string
	RefMetadata      map[string]any
	refResolved      bool
}

// RefResolved reports whether a reference lookup matched a target record.
func (r *Row) RefResolved() bool { return r.refResolved }

// MarkRefResolved records that a reference lookup matched a target record.
// Called by backend implementations (outside this package) once they've
// populated the Row's Ref* fields.
func (r *Row) MarkRefResolved() { r.refResolved = true }

// Reader is a query builder over the data-record table.
type Reader interface {
	WithNodes(nodeIDs ...string) Reader
	WithData(dataIDs ...string) Reader
	WithDataTypes(types ...domain.DataType) Reader
	WithDataKeys(keys ...string) Reader
	WithDataDiscriminators(discriminators ...string) Reader

	Content(on bool) Reader
	Metadata(on bool) Reader
	ResolveReferences(on bool) Reader
	ReplaceReferences(on bool) Reader

	OrderBy(field string, dir OrderDirection) Reader

	All(ctx context.Context) ([]Row, error)
	One(ctx context.Context) (*Row, error)
	Count(ctx context.Context) (int, error)
	Exists(ctx context.Context) (bool, error)
}

// Filter captures the accumulated predicate state of a Reader, shared by
// every backend implementation (memstore and pg both build one of these and
// apply it their own way).
type Filter struct {
	FlowID          string
	NodeIDs         []string
	DataIDs         []string
	Types           []domain.DataType
	Keys            []string
	Discriminators  []string

	WithContent  bool
	WithMetadata bool
	ResolveRefs  bool
	ReplaceRefs  bool

	OrderField string
	OrderDir   OrderDirection
}

// NewFilter returns a Filter with the defaults described in: content
// and metadata projected, references resolved, not replaced.
func NewFilter(flowID string) *Filter {
	return &Filter{
		FlowID:      flowID,
		WithContent: true,
		WithMetadata: true,
		ResolveRefs: true,
		OrderField:  "created_at",
		OrderDir:    Ascending,
	}
}

// Matches reports whether a candidate record satisfies the filter's id/type
// predicates (ordering and reference resolution are applied separately).
func (f *Filter) Matches(rec *domain.Record) bool {
	if rec.FlowID != f.FlowID {
		return false
	}
	if len(f.NodeIDs) > 0 && !(rec.NodeID != nil && containsStr(f.NodeIDs, *rec.NodeID)) {
		return false
	}
	if len(f.DataIDs) > 0 && !containsStr(f.DataIDs, rec.DataID) {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, rec.Type) {
		return false
	}
	if len(f.Keys) > 0 && !containsStr(f.Keys, rec.Key) {
		return false
	}
	if len(f.Discriminators) > 0 && !containsStr(f.Discriminators, rec.Discriminator) {
		return false
	}
	return true
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsType(haystack []domain.DataType, needle domain.DataType) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// SortRows orders rows in place per f.OrderField/OrderDir. "data_id" sorts by
// DataID; any other field, "created_at" included, sorts by CreatedAt,
// matching the reader's tolerant read-path design.
func SortRows(rows []Row, f *Filter) {
	less := func(i, j int) bool {
		switch f.OrderField {
		case "data_id":
			return rows[i].Record.DataID < rows[j].Record.DataID
		default:
			return rows[i].Record.CreatedAt.Before(rows[j].Record.CreatedAt)
		}
	}
	if f.OrderDir == Descending {
		base := less
		less = func(i, j int) bool { return base(j, i) }
	}
	sort.SliceStable(rows, less)
}
