package compiler

import "github.com/smilemakc/dataflow/internal/domain"

// Edge is a compile-time edge; it never persists as its own
// row, it is folded into data_targets/error_targets on emission, but the
// Graph keeps it around for callers that want to inspect/visualize the
// compiled shape (e.g. cmd/dfctl, internal/compiler/visualize).
type Edge struct {
	FromNodeID    string
	ToNodeID      string // empty when Terminal is set
	Terminal      bool
	Success       bool
	Discriminator string
	Condition     string
	Transform     string
	IsError       bool
	IsAutoChain   bool
}

// Graph is the Compiler's structural output: the minted nodes and their
// compile-time edges, independent of the command list used to persist them.
type Graph struct {
	Nodes []domain.Node
	Edges []Edge
}

// Roots returns nodes without any non-auto-chain incoming edge and without
// a parent.
func (g *Graph) Roots() []string {
	hasParent := make(map[string]bool, len(g.Nodes))
	hasIncoming := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.HasParent() {
			hasParent[n.NodeID] = true
		}
	}
	for _, e := range g.Edges {
		if e.Terminal || e.IsAutoChain {
			continue
		}
		hasIncoming[e.ToNodeID] = true
	}
	var roots []string
	for _, n := range g.Nodes {
		if !hasParent[n.NodeID] && !hasIncoming[n.NodeID] {
			roots = append(roots, n.NodeID)
		}
	}
	return roots
}

// Leaves returns nodes with no outgoing edge carrying a target.
func (g *Graph) Leaves() []string {
	hasOutgoing := make(map[string]bool, len(g.Nodes))
	for _, e := range g.Edges {
		hasOutgoing[e.FromNodeID] = true
	}
	var leaves []string
	for _, n := range g.Nodes {
		if !hasOutgoing[n.NodeID] {
			leaves = append(leaves, n.NodeID)
		}
	}
	return leaves
}

// buildGraph renders the buildState's nodes/routes into a Graph, for
// callers that want the structural view rather than the command list.
func (b *buildState) buildGraph() *Graph {
	g := &Graph{}
	for _, id := range b.nodeOrder {
		nb := b.nodes[id]
		g.Nodes = append(g.Nodes, domain.Node{
			NodeID:       nb.id,
			FlowID:       b.session.FlowID,
			ParentNodeID: nb.parentNodeID,
			Type:         nb.kind,
			Status:       statusOf(nb),
			Config:       b.buildNodeConfig(nb),
			Metadata:     nb.metadata,
		})
		for _, route := range nb.routes {
			g.Edges = append(g.Edges, edgeOf(route))
		}
	}
	return g
}

func statusOf(nb *nodeBuild) domain.NodeStatus {
	if nb.isTemplate {
		return domain.NodeStatusTemplate
	}
	return domain.NodeStatusPending
}

func edgeOf(route *pendingRoute) Edge {
	e := Edge{
		FromNodeID:    route.sourceNodeID,
		ToNodeID:      route.resolvedNodeID,
		Terminal:      route.isTerminal,
		Success:       route.terminalSuccess,
		Discriminator: route.inputKey,
		Condition:     route.condition,
		Transform:     route.transform,
		IsError:       route.isError,
		IsAutoChain:   route.isAutoChain,
	}
	if e.Discriminator == "" {
		e.Discriminator = domain.DefaultDiscriminator
	}
	return e
}
