package compiler

import "github.com/smilemakc/dataflow/internal/store"

// Compile turns an ordered operation stream into a validated Graph plus the
// ordered command list that materializes it, or the first compile error
// encountered. session is the zero value for a top-level compile, or
// carries FlowID (and optionally NodeID, for the node the compile is nested
// under) for a nested compile invoked by a cycle/parallel node runtime.
func Compile(ops []Op, session SessionContext) (*Graph, []store.Command, error) {
	b := newBuildState(session)

	b.processOps(ops)
	if b.err != nil {
		return nil, nil, b.err
	}

	if err := b.resolve(); err != nil {
		return nil, nil, err
	}

	if err := b.validate(); err != nil {
		return nil, nil, err
	}

	graph := b.buildGraph()
	cmds := b.emit()
	return graph, cmds, nil
}
