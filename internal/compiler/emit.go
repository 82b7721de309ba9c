package compiler

import (
	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/store"
)

// newTarget builds one entry of config.data_targets/error_targets, reusing
// internal/domain's Target shape rather than inventing a parallel one —
// it's the same {data_type, node_id?, discriminator, condition?,
// transform?, metadata.source_node_id} record internal/routing decodes
// back out of a node's persisted config.
func newTarget(dataType domain.DataType, nodeID, discriminator string, route *pendingRoute) domain.Target {
	t := domain.Target{DataType: dataType, NodeID: nodeID, Discriminator: discriminator}
	if route != nil {
		t.Condition = route.condition
		t.Transform = route.transform
		if route.sourceNodeID != "" {
			t.Metadata = map[string]any{"source_node_id": route.sourceNodeID}
		}
	}
	return t
}

// emit implements: turns the resolved build state into an ordered
// command list.
func (b *buildState) emit() []store.Command {
	var cmds []store.Command

	nested := b.session.nested()
	var workflowInputID string

	if !nested {
		if b.hasInput {
			rec := domain.NewRecord(b.session.FlowID, nil, domain.DataWorkflowInput, domain.DefaultDiscriminator, "", b.inputData, "", nil)
			workflowInputID = rec.DataID
			cmds = append(cmds, store.CreateDataCommand(rec))
		}
	}

	// Static sources: first route gets the full content, subsequent routes
	// get a reference record.
	for _, src := range b.staticSources {
		for i, route := range src.routes {
			if route.isTerminal || route.resolvedNodeID == "" {
				continue
			}
			nid := route.resolvedNodeID
			disc := route.inputKey
			if disc == "" {
				disc = domain.DefaultDiscriminator
			}
			if i == 0 {
				rec := domain.NewRecord(b.session.FlowID, &nid, domain.DataNodeInput, disc, "", src.data, "", nil)
				rec.DataID = src.id
				cmds = append(cmds, store.CreateDataCommand(rec))
			} else {
				ref := domain.NewReference(b.session.FlowID, &nid, domain.DataNodeInput, disc, src.id, nil)
				cmds = append(cmds, store.CreateDataCommand(ref))
			}
		}
	}

	for _, id := range b.nodeOrder {
		nb := b.nodes[id]
		cfg := b.buildNodeConfig(nb)
		status := domain.NodeStatusPending
		if nb.isTemplate {
			status = domain.NodeStatusTemplate
		}
		node := &domain.Node{
			NodeID:       nb.id,
			FlowID:       b.session.FlowID,
			ParentNodeID: nb.parentNodeID,
			Type:         nb.kind,
			Status:       status,
			Config:       cfg,
			Metadata:     nb.metadata,
		}
		cmds = append(cmds, store.CreateNodeCommand(node))
	}

	// Workflow input routing: explicit input_routes if present, else one
	// reference per root node.
	if len(b.inputRoutes) > 0 {
		for _, route := range b.inputRoutes {
			if route.isTerminal || route.resolvedNodeID == "" {
				continue
			}
			disc := route.inputKey
			if disc == "" {
				disc = domain.DefaultDiscriminator
			}
			nid := route.resolvedNodeID
			cmds = append(cmds, store.CreateDataCommand(b.workflowInputRecord(workflowInputID, &nid, disc, route)))
		}
	} else if b.hasInput {
		for _, id := range b.nodeOrder {
			if b.isRoot(id) {
				nid := id
				cmds = append(cmds, store.CreateDataCommand(b.workflowInputRecord(workflowInputID, &nid, domain.DefaultDiscriminator, nil)))
			}
		}
	}

	return cmds
}

// workflowInputRecord materializes the workflow input at a target node: a
// reference (pointing at the workflow_input row) at top level, or a
// node_input carrying the raw input when nested. The input route's transform
// is not evaluated (see applyEagerTransform).
func (b *buildState) workflowInputRecord(workflowInputID string, targetNodeID *string, discriminator string, route *pendingRoute) *domain.Record {
	if !b.session.nested() {
		return domain.NewReference(b.session.FlowID, targetNodeID, domain.DataNodeInput, discriminator, workflowInputID, nil)
	}
	content := b.inputData
	if route != nil && route.transform != "" {
		content = applyEagerTransform(route.transform, content)
	}
	return domain.NewRecord(b.session.FlowID, targetNodeID, domain.DataNodeInput, discriminator, "", content, "", nil)
}

// applyEagerTransform returns content unchanged: the compiler has no
// evaluator, so a nested input route's transform expression is ignored. The
// transform is not stored anywhere either, so no later layer applies it to
// this record; a node's own config input_transform is the only transform
// the host runs on its input.
func applyEagerTransform(_ string, content any) any {
	return content
}

// buildNodeConfig finalizes a node's config map with data_targets/
// error_targets derived from its routes.
func (b *buildState) buildNodeConfig(nb *nodeBuild) map[string]any {
	cfg := make(map[string]any, len(nb.config)+2)
	for k, v := range nb.config {
		cfg[k] = v
	}

	nested := b.session.nested()
	isChild := nb.parentNodeID != nil

	var dataTargets, errorTargets []domain.Target
	for _, route := range nb.routes {
		if route.isTerminal {
			dt := domain.DataWorkflowOutput
			if isChild || nested {
				dt = domain.DataNodeOutput
			}
			disc := "result"
			if route.isError {
				disc = "error"
			}
			t := newTarget(dt, "", disc, route)
			if route.isError {
				errorTargets = append(errorTargets, t)
			} else {
				dataTargets = append(dataTargets, t)
			}
			continue
		}
		if route.resolvedNodeID == "" {
			continue
		}
		disc := route.inputKey
		if disc == "" {
			disc = domain.DefaultDiscriminator
		}
		t := newTarget(domain.DataNodeInput, route.resolvedNodeID, disc, route)
		if route.isError {
			errorTargets = append(errorTargets, t)
		} else {
			dataTargets = append(dataTargets, t)
		}
	}

	// Leaf non-template nodes with no explicit targets get an implicit
	// success output.
	if len(dataTargets) == 0 && len(errorTargets) == 0 && !nb.isTemplate {
		dt := domain.DataWorkflowOutput
		if isChild || nested {
			dt = domain.DataNodeOutput
		}
		dataTargets = append(dataTargets, newTarget(dt, "", "result", nil))
	}

	if len(dataTargets) > 0 {
		cfg["data_targets"] = dataTargets
	}
	if len(errorTargets) > 0 {
		cfg["error_targets"] = errorTargets
	}
	return cfg
}
