package compiler

import (
	"strings"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/domain/dferrors"
)

// validate runs dead-node soundness, the args/default
// conflict check, and the success-path termination check.
func (b *buildState) validate() error {
	if err := b.checkDeadNodes(); err != nil {
		return err
	}
	if err := b.checkArgsDefaultConflict(); err != nil {
		return err
	}
	return b.checkSuccessPath()
}

// checkDeadNodes implements the roots/reachability rule: every
// root must be reachable from the workflow input. When explicit input_routes
// were given, a root not among their resolved targets is dead. When no
// explicit input_routes exist, rule 1 wires one implicit reference per
// root to workflow input, so every root is reachable by construction and the
// check never fires.
func (b *buildState) checkDeadNodes() error {
	if len(b.inputRoutes) == 0 {
		return nil
	}
	reachable := make(map[string]bool, len(b.inputRoutes))
	for _, route := range b.inputRoutes {
		if !route.isTerminal && route.resolvedNodeID != "" {
			reachable[route.resolvedNodeID] = true
		}
	}
	var dead []string
	for _, id := range b.nodeOrder {
		if b.nodes[id].isTemplate {
			continue
		}
		if b.isRoot(id) && !reachable[id] {
			dead = append(dead, id)
		}
	}
	if len(dead) > 0 {
		return compileErr(dferrors.CodeDeadNodes, "unreachable root node(s): "+strings.Join(dead, ", "))
	}
	return nil
}

// checkArgsDefaultConflict enforces: a node with config.args set
// AND (a default-discriminated input or a string-valued input_transform) is
// a compile error. Both halves are checkable at compile time: validate()
// runs after resolve(), so every route's resolvedNodeID/inputKey is already
// populated (including auto-chain edges added by addAutoChainEdges), and
// the implicit one-reference-per-root workflow-input wiring is known from
// hasInput/inputRoutes/isRoot alone.
func (b *buildState) checkArgsDefaultConflict() error {
	for _, id := range b.nodeOrder {
		nb := b.nodes[id]
		if _, hasArgs := nb.config["args"]; !hasArgs {
			continue
		}
		if transform, ok := nb.config["input_transform"]; ok {
			if _, isString := transform.(string); isString {
				return compileErr(dferrors.CodeArgsDefaultConflict,
					"node "+id+": config.args conflicts with a string-valued input_transform")
			}
		}
		if b.receivesDefaultInput(id) {
			return compileErr(dferrors.CodeArgsDefaultConflict,
				"node "+id+": config.args conflicts with a default-discriminated input")
		}
	}
	return nil
}

// receivesDefaultInput reports whether id is the target of any
// default-discriminated, non-terminal route — from another node (including
// an auto-chain edge), from the workflow input, or from a static data
// source — or of the implicit one-reference-per-root workflow input wiring
// that applies when no explicit input_routes were declared.
func (b *buildState) receivesDefaultInput(id string) bool {
	isDefault := func(key string) bool { return key == "" || key == domain.DefaultDiscriminator }

	for _, nb := range b.nodes {
		for _, route := range nb.routes {
			if route.isTerminal || route.resolvedNodeID != id {
				continue
			}
			if isDefault(route.inputKey) {
				return true
			}
		}
	}
	for _, route := range b.inputRoutes {
		if route.isTerminal || route.resolvedNodeID != id {
			continue
		}
		if isDefault(route.inputKey) {
			return true
		}
	}
	for _, src := range b.staticSources {
		for _, route := range src.routes {
			if route.isTerminal || route.resolvedNodeID != id {
				continue
			}
			if isDefault(route.inputKey) {
				return true
			}
		}
	}
	if b.hasInput && len(b.inputRoutes) == 0 && b.isRoot(id) {
		return true
	}
	return false
}

// checkSuccessPath enforces: the graph must contain at least one path
// from a root to a success terminus — either an explicit to("@success")/
// to("@end") route, or a leaf node (which becomes an implicit
// workflow_output per rule 4).
func (b *buildState) checkSuccessPath() error {
	for _, id := range b.nodeOrder {
		if b.nodes[id].isTemplate {
			continue
		}
		for _, route := range b.nodes[id].routes {
			if route.isTerminal && route.terminalSuccess {
				return nil
			}
		}
		if b.isLeaf(id) {
			return nil
		}
	}
	return compileErr(dferrors.CodeMissingSuccessPath, "no path to a success terminus")
}
