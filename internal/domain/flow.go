package domain

import "time"

// FlowStatus is the lifecycle status of a Flow. Status advances forward
// only: active -> {completed | failed}.
type FlowStatus string

const (
	FlowStatusActive    FlowStatus = "active"
	FlowStatusCompleted FlowStatus = "completed"
	FlowStatusFailed    FlowStatus = "failed"
)

// Flow is one execution of a workflow.
type Flow struct {
	FlowID    string         `json:"flow_id"`
	ActorID   string         `json:"actor_id"`
	Status    FlowStatus     `json:"status"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewFlow creates a new active flow.
func NewFlow(actorID string, metadata map[string]any) *Flow {
	now := time.Now().UTC()
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Flow{
		FlowID:    NewID(),
		ActorID:   actorID,
		Status:    FlowStatusActive,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the flow to a terminal status. Returns false if the flow is
// already terminal (status advances forward only).
func (f *Flow) Advance(status FlowStatus) bool {
	if f.Status != FlowStatusActive {
		return false
	}
	f.Status = status
	f.UpdatedAt = time.Now().UTC()
	return true
}

// MergeMetadata merges the given keys into the flow's metadata.
func (f *Flow) MergeMetadata(meta map[string]any) {
	if f.Metadata == nil {
		f.Metadata = map[string]any{}
	}
	for k, v := range meta {
		f.Metadata[k] = v
	}
	f.UpdatedAt = time.Now().UTC()
}
