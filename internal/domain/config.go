package domain

import "encoding/json"

// Target is a compiled edge sink, materialized into a node's config as
// either a data_targets or error_targets entry. The struct carries no
// success/error flag: which of the two lists holds it is what makes it an
// error route.
type Target struct {
	DataType      DataType       `json:"data_type"`
	NodeID        string         `json:"node_id,omitempty"`
	Discriminator string         `json:"discriminator"`
	Condition     string         `json:"condition,omitempty"`
	Transform     string         `json:"transform,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// IsTerminal reports whether the target writes a workflow/node output rather
// than another node's input.
func (t *Target) IsTerminal() bool {
	return t.DataType == DataWorkflowOutput || t.DataType == DataNodeOutput
}

// SourceNodeID reads metadata.source_node_id, set by the compiler on every
// emitted target so routing can attribute a write back to its origin.
func (t *Target) SourceNodeID() string {
	if t.Metadata == nil {
		return ""
	}
	if v, ok := t.Metadata["source_node_id"].(string); ok {
		return v
	}
	return ""
}

// InputRequirements declares a node's declared input discriminators
//, populated from config.inputs.
type InputRequirements struct {
	Required []string `json:"required,omitempty"`
	Optional []string `json:"optional,omitempty"`
}

// BaseConfig holds the fields every runtime's config recognizes, per
// "everything else is opaque pass-through" rule. Concrete runtime configs
// embed this and are decoded from the opaque Node.Config map via DecodeConfig.
type BaseConfig struct {
	Inputs          *InputRequirements `json:"inputs,omitempty"`
	Context         map[string]any     `json:"context,omitempty"`
	InputTransform  any                `json:"input_transform,omitempty"`
	DataTargets     []Target           `json:"data_targets,omitempty"`
	ErrorTargets    []Target           `json:"error_targets,omitempty"`
	Metadata        map[string]any     `json:"metadata,omitempty"`
	Args            map[string]any     `json:"args,omitempty"`
}

// FuncConfig is the func runtime's recognized config.
type FuncConfig struct {
	BaseConfig
	FuncID string `json:"func_id"`
}

// ToolCalling is the agent runtime's tool-calling mode.
type ToolCalling string

const (
	ToolCallingNone ToolCalling = "none"
	ToolCallingAuto ToolCalling = "auto"
	ToolCallingAny  ToolCalling = "any"
)

// Arena is the agent runtime's nested configuration block.
type Arena struct {
	Prompt         string         `json:"prompt"`
	MaxIterations  int            `json:"max_iterations,omitempty"`
	MinIterations  int            `json:"min_iterations,omitempty"`
	ToolCalling    ToolCalling    `json:"tool_calling,omitempty"`
	ExitSchema     map[string]any `json:"exit_schema,omitempty"`
	ExitFuncID     string         `json:"exit_func_id,omitempty"`
	Tools          []string       `json:"tools,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

// AgentConfig is the agent runtime's recognized config.
type AgentConfig struct {
	BaseConfig
	Agent         string `json:"agent"`
	Model         string `json:"model"`
	Arena         Arena  `json:"arena"`
	ShowToolCalls bool   `json:"show_tool_calls,omitempty"`
}

// CycleConfig is the cycle runtime's recognized config. Either
// FuncID or a nested template is set (XOR), and either ContinueCondition or
// ContinueFuncID (XOR) — the compiler/runtime enforce the exclusivity, not
// this struct.
type CycleConfig struct {
	BaseConfig
	FuncID           string         `json:"func_id,omitempty"`
	ContinueCondition string        `json:"continue_condition,omitempty"`
	ContinueFuncID   string         `json:"continue_func_id,omitempty"`
	MaxIterations    int            `json:"max_iterations"`
	InitialState     map[string]any `json:"initial_state,omitempty"`
}

// ErrorHandling is the parallel runtime's on_error behavior.
type ErrorHandling string

const (
	OnErrorContinue  ErrorHandling = "continue"
	OnErrorFailFast  ErrorHandling = "fail_fast"
)

// ResultFilter is the parallel runtime's filter mode.
type ResultFilter string

const (
	FilterAll       ResultFilter = "all"
	FilterSuccesses ResultFilter = "successes"
	FilterFailures  ResultFilter = "failures"
)

// ParallelConfig is the parallel runtime's recognized config.
type ParallelConfig struct {
	BaseConfig
	SourceArrayKey   string        `json:"source_array_key"`
	IterationInputKey string       `json:"iteration_input_key,omitempty"`
	BatchSize        int           `json:"batch_size,omitempty"`
	OnError          ErrorHandling `json:"on_error,omitempty"`
	Filter           ResultFilter  `json:"filter,omitempty"`
	Unwrap           bool          `json:"unwrap,omitempty"`
	PassthroughKeys  []string      `json:"passthrough_keys,omitempty"`
}

// OutputMode is the state runtime's output shape.
type OutputMode string

const (
	OutputModeObject OutputMode = "object"
	OutputModeArray  OutputMode = "array"
)

// StateConfig is the state runtime's recognized config.
type StateConfig struct {
	BaseConfig
	OutputMode   OutputMode `json:"output_mode,omitempty"`
	IgnoredKeys  []string   `json:"ignored_keys,omitempty"`
}

// DecodeConfig round-trips an opaque config map into a typed struct via
// JSON marshal/unmarshal: unknown fields are dropped by the target struct,
// known ones land in their typed home, and the original map is left
// untouched for storage.
func DecodeConfig[T any](config map[string]any) (*T, error) {
	data, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EncodeConfig is the inverse of DecodeConfig: it flattens a typed config
// struct back into the opaque map[string]any the compiler emits into a
// node's persisted Config field.
func EncodeConfig(cfg any) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
