package domain

import "time"

// DataType enumerates the persisted record kinds.
type DataType string

const (
	DataWorkflowInput    DataType = "workflow_input"
	DataWorkflowOutput   DataType = "workflow_output"
	DataNodeInput        DataType = "node_input"
	DataNodeOutput       DataType = "node_output"
	DataNodeResult       DataType = "node_result"
	DataNodeYield        DataType = "node_yield"
	DataNodeYieldResult  DataType = "node_yield_result"
	DataIterationResult  DataType = "iteration_result"
	DataIterationError   DataType = "iteration_error"
)

// ReferenceContentType is the literal content_type that signals key holds the
// data_id of another record whose content should be substituted on read.
const ReferenceContentType = "dataflow/reference"

// DefaultDiscriminator is the implicit unnamed input slot name.
const DefaultDiscriminator = "default"

// Record is the single persisted payload type.
// Records are immutable once written.
type Record struct {
	DataID        string         `json:"data_id"`
	FlowID        string         `json:"flow_id"`
	NodeID        *string        `json:"node_id,omitempty"`
	Type          DataType       `json:"type"`
	Discriminator string         `json:"discriminator"`
	Key           string         `json:"key,omitempty"`
	Content       any            `json:"content"`
	ContentType   string         `json:"content_type,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// IsReference reports whether this record's content should be read through
// a lookup of the record whose data_id equals Key.
func (r *Record) IsReference() bool {
	return r.ContentType == ReferenceContentType
}

// NewRecord constructs a Record with a fresh id, defaulting Discriminator to
// "default" when empty, matching the implicit unnamed input slot rule.
func NewRecord(flowID string, nodeID *string, typ DataType, discriminator, key string, content any, contentType string, metadata map[string]any) *Record {
	if discriminator == "" {
		discriminator = DefaultDiscriminator
	}
	return &Record{
		DataID:        NewID(),
		FlowID:        flowID,
		NodeID:        nodeID,
		Type:          typ,
		Discriminator: discriminator,
		Key:           key,
		Content:       content,
		ContentType:   contentType,
		Metadata:      metadata,
		CreatedAt:     time.Now().UTC(),
	}
}

// NewReference builds a reference record pointing at targetDataID.
func NewReference(flowID string, nodeID *string, typ DataType, discriminator, targetDataID string, metadata map[string]any) *Record {
	return NewRecord(flowID, nodeID, typ, discriminator, targetDataID, nil, ReferenceContentType, metadata)
}
