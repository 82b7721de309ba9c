// Package compiler turns an ordered operation stream into a validated node
// graph plus an initial sequence of persistence commands. It is pure
// and deterministic: no I/O, no clock reads beyond timestamping emitted
// records, no randomness beyond id generation.
//
// Shaped like a workflow-graph/execution-planner split — build a graph from
// a flat description, validate it, then hand a plan to the caller — with a
// fluent authoring surface (the builder functions in this file) as an
// external collaborator rather than part of the core.
package compiler

// Kind is the closed set of operations the Compiler accepts.
type Kind string

const (
	KindWithInput Kind = "with_input"
	KindWithData  Kind = "with_data"
	KindFunc      Kind = "func"
	KindAgent     Kind = "agent"
	KindCycle     Kind = "cycle"
	KindParallel  Kind = "parallel"
	KindState     Kind = "state"
	KindUse       Kind = "use"
	KindAs        Kind = "as"
	KindTo        Kind = "to"
	KindErrorTo   Kind = "error_to"
	KindWhen      Kind = "when"
)

// Terminal identifiers recognized by to/error_to.
const (
	TerminalSuccess = "@success"
	TerminalFail    = "@fail"
	TerminalEnd     = "@end"
)

// Template is a reusable named operation list, inlined by a `use` op.
type Template struct {
	Operations []Op
}

// Op is one entry in the operation stream. Exactly the fields relevant to
// Kind are populated; the rest are zero.
type Op struct {
	Kind Kind

	// with_input / with_data
	Data any

	// func(id, cfg) / agent(id, cfg): ID is the func_id / agent persona.
	// cycle/parallel/state(cfg) leave ID empty.
	ID     string
	Config map[string]any

	// cycle/parallel: a nested template operation list minting child
	// template nodes.
	NestedTemplate []Op

	// use(template)
	Use *Template

	// as(name)
	Name string

	// to / error_to
	Target    string
	InputKey  string
	Transform string

	// when(condition)
	Condition string
}

// WithInput builds a with_input op.
func WithInput(data any) Op { return Op{Kind: KindWithInput, Data: data} }

// WithData builds a with_data op.
func WithData(data any) Op { return Op{Kind: KindWithData, Data: data} }

// Func builds a func(id, cfg) op.
func Func(funcID string, cfg map[string]any) Op {
	return Op{Kind: KindFunc, ID: funcID, Config: cfg}
}

// Agent builds an agent(id, cfg) op.
func Agent(agentID string, cfg map[string]any) Op {
	return Op{Kind: KindAgent, ID: agentID, Config: cfg}
}

// Cycle builds a cycle(cfg) op, with optional nested template ops.
func Cycle(cfg map[string]any, template ...Op) Op {
	return Op{Kind: KindCycle, Config: cfg, NestedTemplate: template}
}

// Parallel builds a parallel(cfg) op, with optional nested template ops.
func Parallel(cfg map[string]any, template ...Op) Op {
	return Op{Kind: KindParallel, Config: cfg, NestedTemplate: template}
}

// State builds a state(cfg) op.
func State(cfg map[string]any) Op { return Op{Kind: KindState, Config: cfg} }

// Use builds a use(template) op.
func Use(t Template) Op { return Op{Kind: KindUse, Use: &t} }

// As builds an as(name) op.
func As(name string) Op { return Op{Kind: KindAs, Name: name} }

// To builds a to(target, key?, transform?) op.
func To(target, inputKey, transform string) Op {
	return Op{Kind: KindTo, Target: target, InputKey: inputKey, Transform: transform}
}

// ErrorTo builds an error_to(target, key?, transform?) op.
func ErrorTo(target, inputKey, transform string) Op {
	return Op{Kind: KindErrorTo, Target: target, InputKey: inputKey, Transform: transform}
}

// When builds a when(condition) op.
func When(condition string) Op { return Op{Kind: KindWhen, Condition: condition} }

func isTerminal(target string) bool {
	return target == TerminalSuccess || target == TerminalFail || target == TerminalEnd
}
