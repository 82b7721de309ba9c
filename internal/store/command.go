package store

import "github.com/smilemakc/dataflow/internal/domain"

// CommandKind is the closed set of persistence command kinds the Compiler
// and the workflow-state engine emit.
type CommandKind string

const (
	CommandCreateData       CommandKind = "create_data"
	CommandCreateNode       CommandKind = "create_node"
	CommandUpdateNode       CommandKind = "update_node"
	CommandDeleteNode       CommandKind = "delete_node"
	CommandUpdateWorkflow   CommandKind = "update_workflow"
	CommandApplyCommit      CommandKind = "apply_commit"
)

// Command is one entry in an ordered command list. Exactly one of the
// payload fields is set, matching Kind.
type Command struct {
	Kind CommandKind

	// CreateData
	Data *domain.Record

	// CreateNode
	Node *domain.Node

	// UpdateNode / DeleteNode
	NodeID         string
	StatusUpdate   *domain.NodeStatus
	ConfigUpdate   map[string]any
	MetadataUpdate map[string]any

	// UpdateWorkflow
	FlowMetadata map[string]any

	// ApplyCommit
	CommitID string
}

// CreateDataCommand builds a create_data command.
func CreateDataCommand(rec *domain.Record) Command {
	return Command{Kind: CommandCreateData, Data: rec}
}

// CreateNodeCommand builds a create_node command.
func CreateNodeCommand(n *domain.Node) Command {
	return Command{Kind: CommandCreateNode, Node: n}
}

// UpdateNodeCommand builds an update_node command; any of the update fields
// may be nil/empty to leave that aspect unchanged.
func UpdateNodeCommand(nodeID string, status *domain.NodeStatus, config, metadata map[string]any) Command {
	return Command{Kind: CommandUpdateNode, NodeID: nodeID, StatusUpdate: status, ConfigUpdate: config, MetadataUpdate: metadata}
}

// UpdateWorkflowCommand builds an update_workflow command that merges metadata.
func UpdateWorkflowCommand(metadata map[string]any) Command {
	return Command{Kind: CommandUpdateWorkflow, FlowMetadata: metadata}
}

// Result is what the persistence engine reports back for one applied
// command.
type Result struct {
	Input  Command
	NodeID string
	DataID string
}

// CommitResult is the aggregate response of one Execute call.
type CommitResult struct {
	OpID    string
	Results []Result
}
