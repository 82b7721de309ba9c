package compiler

import (
	"fmt"
	"strings"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/domain/dferrors"
)

// resolve resolves named targets, adds auto-chain edges, then checks
// acyclicity.
func (b *buildState) resolve() error {
	if err := b.resolveTargets(); err != nil {
		return err
	}
	b.addAutoChainEdges()
	return b.checkAcyclic()
}

func (b *buildState) resolveTargets() error {
	for _, route := range b.allRoutes {
		if route.isTerminal {
			continue
		}
		ref, ok := b.references[route.targetName]
		if !ok || ref.kind != refNode {
			return compileErr(dferrors.CodeUndefinedReference, "undefined reference target: "+route.targetName)
		}
		route.resolvedNodeID = ref.nodeID
	}
	for _, route := range b.inputRoutes {
		if route.isTerminal {
			continue
		}
		ref, ok := b.references[route.targetName]
		if !ok || ref.kind != refNode {
			return compileErr(dferrors.CodeUndefinedReference, "undefined reference target: "+route.targetName)
		}
		route.resolvedNodeID = ref.nodeID
	}
	return nil
}

// addAutoChainEdges handles the linear-auto-chain case: for every pair of
// consecutively-ordered, top-level nodes, if the earlier has no outgoing
// edges at all, add an implicit default-discriminator edge.
func (b *buildState) addAutoChainEdges() {
	var topLevel []string
	for _, id := range b.nodeOrder {
		if !b.nodes[id].isTemplate && b.nodes[id].parentNodeID == nil {
			topLevel = append(topLevel, id)
		}
	}
	for i := 0; i+1 < len(topLevel); i++ {
		from := b.nodes[topLevel[i]]
		if len(from.routes) != 0 {
			continue
		}
		to := topLevel[i+1]
		route := &pendingRoute{
			source: fromNode, sourceNodeID: from.id, resolvedNodeID: to,
			inputKey: domain.DefaultDiscriminator, isAutoChain: true,
		}
		from.routes = append(from.routes, route)
	}
}

// checkAcyclic runs DFS cycle detection over non-template nodes, following
// both explicit and auto-chain edges.
func (b *buildState) checkAcyclic() error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(b.nodeOrder))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		path = append(path, id)
		for _, route := range b.nodes[id].routes {
			if route.isTerminal || route.resolvedNodeID == "" {
				continue
			}
			target := route.resolvedNodeID
			if b.nodes[target].isTemplate {
				continue
			}
			switch color[target] {
			case white:
				if err := visit(target); err != nil {
					return err
				}
			case gray:
				return compileErr(dferrors.CodeCycleDetected, "cycle detected: "+strings.Join(append(path, target), " -> "))
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, id := range b.nodeOrder {
		if b.nodes[id].isTemplate {
			continue
		}
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// isRoot reports whether node id has no non-auto-chain incoming edge and no
// parent.
func (b *buildState) isRoot(id string) bool {
	if b.nodes[id].parentNodeID != nil {
		return false
	}
	for _, src := range b.nodes {
		for _, route := range src.routes {
			if route.isAutoChain {
				continue
			}
			if !route.isTerminal && route.resolvedNodeID == id {
				return false
			}
		}
	}
	for _, route := range b.inputRoutes {
		if !route.isTerminal && route.resolvedNodeID == id {
			// explicit input routing is not an "incoming edge" from another
			// node but it does make id a legitimate input target; it does
			// not, however, disqualify id from being a root (roots are
			// defined purely in terms of node-to-node edges).
			_ = route
		}
	}
	return true
}

// isLeaf reports whether node id has no outgoing route at all. Every route
// counts, terminal ones (@success/@fail) included, so a node whose only
// route is terminal is not a leaf.
func (b *buildState) isLeaf(id string) bool {
	return len(b.nodes[id].routes) == 0
}

func fmtPath(path []string) string {
	return fmt.Sprintf("%v", path)
}
