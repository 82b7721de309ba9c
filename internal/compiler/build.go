package compiler

import (
	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/domain/dferrors"
)

// allowedConfigKeys lists the recognized config keys per runtime. Unlisted
// keys are dropped when minting a node — copy only the fields named here.
var allowedConfigKeys = map[domain.RuntimeType]map[string]bool{
	domain.RuntimeFunc: keySet("func_id", "args", "inputs", "context", "input_transform", "data_targets", "error_targets", "metadata"),
	domain.RuntimeAgent: keySet("agent", "model", "arena", "inputs", "show_tool_calls", "input_transform",
		"data_targets", "error_targets", "metadata"),
	domain.RuntimeCycle: keySet("func_id", "continue_condition", "continue_func_id", "max_iterations", "initial_state",
		"inputs", "context", "input_transform", "data_targets", "error_targets", "metadata"),
	domain.RuntimeParallel: keySet("source_array_key", "iteration_input_key", "batch_size", "on_error", "filter",
		"unwrap", "passthrough_keys", "inputs", "input_transform", "data_targets", "error_targets", "metadata"),
	domain.RuntimeState: keySet("inputs", "input_transform", "output_mode", "ignored_keys", "data_targets", "error_targets", "metadata"),
}

func keySet(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

func filterConfig(kind domain.RuntimeType, cfg map[string]any) map[string]any {
	allowed := allowedConfigKeys[kind]
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		if allowed[k] {
			out[k] = v
		}
	}
	return out
}

// processOps walks ops in order, mutating b. `use` ops are inlined
// recursively. Processing stops at the first error it meets.
func (b *buildState) processOps(ops []Op) {
	for _, op := range ops {
		if b.err != nil {
			return
		}
		b.processOp(op)
	}
}

func (b *buildState) processOp(op Op) {
	switch op.Kind {
	case KindWithInput:
		b.opWithInput(op)
	case KindWithData:
		b.opWithData(op)
	case KindFunc:
		b.mintNode(domain.RuntimeFunc, op.ID, "func_id", op.Config, nil)
	case KindAgent:
		b.mintNode(domain.RuntimeAgent, op.ID, "agent", op.Config, nil)
	case KindCycle:
		b.mintNode(domain.RuntimeCycle, "", "", op.Config, op.NestedTemplate)
	case KindParallel:
		b.mintNode(domain.RuntimeParallel, "", "", op.Config, op.NestedTemplate)
	case KindState:
		b.mintNode(domain.RuntimeState, "", "", op.Config, nil)
	case KindUse:
		if op.Use != nil {
			b.processOps(op.Use.Operations)
		}
	case KindAs:
		b.opAs(op)
	case KindTo:
		b.opRoute(op, false)
	case KindErrorTo:
		b.opRoute(op, true)
	case KindWhen:
		b.opWhen(op)
	default:
		b.fail(compileErr(dferrors.CodeInvalidConfig, "unknown op kind "+string(op.Kind)))
	}
}

func (b *buildState) opWithInput(op Op) {
	if b.hasInput {
		return // "Set input_data = d. Once."
	}
	b.hasInput = true
	b.inputData = op.Data
	b.cursor = cursorInput
}

func (b *buildState) opWithData(op Op) {
	src := &staticSource{id: domain.NewID(), data: op.Data}
	b.staticSources = append(b.staticSources, src)
	b.lastStaticIdx = len(b.staticSources) - 1
	b.cursor = cursorStatic
}

// mintNode handles func/agent/cycle/parallel/state. idKey, when non-empty,
// names the config field the op's ID argument is injected into
// (func_id for func, agent for agent).
func (b *buildState) mintNode(kind domain.RuntimeType, id, idKey string, cfg map[string]any, template []Op) {
	merged := make(map[string]any, len(cfg)+1)
	for k, v := range cfg {
		merged[k] = v
	}
	if idKey != "" && id != "" {
		merged[idKey] = id
	}

	nb := &nodeBuild{
		id:          domain.NewID(),
		kind:        kind,
		config:      filterConfig(kind, merged),
		templateOps: template,
	}
	b.nodes[nb.id] = nb
	b.nodeOrder = append(b.nodeOrder, nb.id)

	b.cursor = cursorNode
	b.lastNodeID = nb.id
	b.lastStaticIdx = -1
	b.lastNodeName = ""

	if len(template) > 0 {
		b.mintTemplateChildren(nb)
	}
}

// mintTemplateChildren recursively mints template-status children under a
// cycle/parallel node, chaining each to the next via a node_input/default
// edge.
func (b *buildState) mintTemplateChildren(parent *nodeBuild) {
	childState := newBuildState(b.session)
	childState.processOps(parent.templateOps)
	if childState.err != nil {
		b.fail(childState.err)
		return
	}

	var prevID string
	for _, id := range childState.nodeOrder {
		cb := childState.nodes[id]
		cb.isTemplate = true
		cb.parentNodeID = &parent.id
		b.nodes[id] = cb
		b.nodeOrder = append(b.nodeOrder, id)

		if prevID != "" {
			childState.nodes[prevID].routes = append(childState.nodes[prevID].routes, &pendingRoute{
				source: fromNode, sourceNodeID: prevID, resolvedNodeID: id, inputKey: domain.DefaultDiscriminator,
			})
		}
		prevID = id
	}
}

func (b *buildState) opAs(op Op) {
	if _, exists := b.references[op.Name]; exists {
		b.fail(compileErr(dferrors.CodeDuplicateName, "duplicate name: "+op.Name))
		return
	}

	switch b.cursor {
	case cursorStatic:
		b.references[op.Name] = refTarget{kind: refStatic, staticIdx: b.lastStaticIdx}
	case cursorInput:
		b.references[op.Name] = refTarget{kind: refInput}
		b.inputName = op.Name
	case cursorNode:
		b.references[op.Name] = refTarget{kind: refNode, nodeID: b.lastNodeID}
		b.lastNodeName = op.Name
	default:
		b.fail(compileErr(dferrors.CodeNoSourceNode, "as() with no preceding with_input/with_data/node op"))
	}
}

func (b *buildState) opRoute(op Op, isErrorOp bool) {
	route := &pendingRoute{isError: isErrorOp, inputKey: op.InputKey, transform: op.Transform}

	if isTerminal(op.Target) {
		route.isTerminal = true
		route.source = fromNode
		route.sourceNodeID = b.lastNodeID
		if op.Target == TerminalSuccess {
			route.terminalSuccess = true
			route.isError = false
		} else if op.Target == TerminalEnd {
			route.terminalSuccess = !isErrorOp
			route.isError = isErrorOp
		} else { // @fail
			route.terminalSuccess = false
			route.isError = isErrorOp
		}
		b.attachRoute(route)
		return
	}

	route.targetName = op.Target
	if route.inputKey == "" {
		route.inputKey = b.lastNodeName
	}

	switch b.cursor {
	case cursorInput:
		route.source = fromInput
		b.inputRoutes = append(b.inputRoutes, route)
	case cursorStatic:
		route.source = fromStatic
		route.staticIdx = b.lastStaticIdx
		b.staticSources[b.lastStaticIdx].routes = append(b.staticSources[b.lastStaticIdx].routes, route)
	case cursorNode:
		route.source = fromNode
		route.sourceNodeID = b.lastNodeID
		b.nodes[b.lastNodeID].routes = append(b.nodes[b.lastNodeID].routes, route)
	default:
		b.fail(compileErr(dferrors.CodeNoSourceNode, "to()/error_to() with no preceding source"))
		return
	}

	b.allRoutes = append(b.allRoutes, route)
}

// attachRoute records a terminal route (always sourced from the last node)
// and adds it to the node's outgoing edges plus the shared all-routes
// sequence `when` walks.
func (b *buildState) attachRoute(route *pendingRoute) {
	if route.sourceNodeID == "" {
		b.fail(compileErr(dferrors.CodeNoSourceNode, "terminal route with no preceding node"))
		return
	}
	b.nodes[route.sourceNodeID].routes = append(b.nodes[route.sourceNodeID].routes, route)
	b.allRoutes = append(b.allRoutes, route)
}

func (b *buildState) opWhen(op Op) {
	last := b.lastRoute()
	if last == nil {
		b.fail(compileErr(dferrors.CodeNoSourceNode, "when() with no preceding route"))
		return
	}
	if last.source == fromStatic {
		b.fail(compileErr(dferrors.CodeStaticWhen, "cannot use when() with static data routes"))
		return
	}
	last.condition = op.Condition
}
