package compiler

import (
	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/domain/dferrors"
)

// cursorKind tracks what the most recent with_input/with_data/node-minting
// op introduced, so as/to/when know what they're operating on.
type cursorKind int

const (
	cursorNone cursorKind = iota
	cursorInput
	cursorStatic
	cursorNode
)

// refKind is what a name introduced by `as` points at.
type refKind int

const (
	refNode refKind = iota
	refStatic
	refInput
)

type refTarget struct {
	kind      refKind
	nodeID    string
	staticIdx int
}

// routeSource is where a pendingRoute originates: a node, a static source,
// or the workflow input.
type routeSource int

const (
	fromNode routeSource = iota
	fromStatic
	fromInput
)

// pendingRoute is one to/error_to invocation, queued until resolution binds
// its target name to a concrete node id.
type pendingRoute struct {
	source       routeSource
	sourceNodeID string
	staticIdx    int

	isTerminal      bool
	terminalSuccess bool

	targetName     string
	resolvedNodeID string

	isError   bool
	inputKey  string
	transform string
	condition string

	isAutoChain bool
}

// staticSource is one with_data(...) invocation and the routes it feeds.
type staticSource struct {
	id     string
	data   any
	routes []*pendingRoute
}

// nodeBuild is the in-progress record for one minted node.
type nodeBuild struct {
	id           string
	kind         domain.RuntimeType
	config       map[string]any
	templateOps  []Op
	parentNodeID *string
	isTemplate   bool
	metadata     map[string]any
	routes       []*pendingRoute // outgoing edges from this node
}

// SessionContext carries the flow/node a compile is nested under. A zero
// value means a top-level compile.
type SessionContext struct {
	FlowID string
	NodeID string
}

func (sc SessionContext) nested() bool { return sc.FlowID != "" }

// buildState is the Compiler's working memory while it walks the op stream
//. It is discarded once Compile returns.
type buildState struct {
	session SessionContext

	nodes     map[string]*nodeBuild
	nodeOrder []string

	references map[string]refTarget

	cursor cursorKind

	hasInput    bool
	inputData   any
	inputName   string
	inputRoutes []*pendingRoute

	staticSources []*staticSource

	lastNodeID    string
	lastStaticIdx int
	lastNodeName  string

	allRoutes []*pendingRoute

	err error
}

func newBuildState(sc SessionContext) *buildState {
	return &buildState{
		session:       sc,
		nodes:         make(map[string]*nodeBuild),
		references:    make(map[string]refTarget),
		lastStaticIdx: -1,
	}
}

func (b *buildState) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *buildState) lastRoute() *pendingRoute {
	if len(b.allRoutes) == 0 {
		return nil
	}
	return b.allRoutes[len(b.allRoutes)-1]
}

func compileErr(code dferrors.Code, msg string) error {
	return dferrors.NewCompileError(code, msg)
}
