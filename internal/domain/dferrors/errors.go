// Package dferrors defines the typed error kinds the engine surfaces: a
// base struct carrying identifying context plus a wrapped cause.
package dferrors

import "fmt"

// Code identifies the kind of failure, per the error-handling design.
type Code string

const (
	// Compile-time
	CodeDuplicateName        Code = "duplicate_name"
	CodeUndefinedReference   Code = "undefined_reference"
	CodeCycleDetected        Code = "cycle_detected"
	CodeDeadNodes            Code = "dead_nodes"
	CodeMissingSuccessPath   Code = "missing_success_path"
	CodeStaticWhen           Code = "static_when"
	CodeArgsDefaultConflict  Code = "args_default_conflict"
	CodeNoSourceNode         Code = "no_source_node"
	CodeInvalidConfig        Code = "invalid_config"

	// Runtime routing
	CodeTransformEval Code = "transform_eval"
	CodeConditionEval Code = "condition_eval"

	// State / scheduler
	CodeYieldDeadlock Code = "yield_deadlock"
	CodeNoInputData   Code = "no_input_data"
	CodeDeadlocked    Code = "deadlocked"
	CodeNoOutput      Code = "no_output"

	// Infrastructure
	CodePersistenceFailure Code = "persistence_failure"
	CodeMessagingFailure   Code = "messaging_failure"
)

// CompileError is returned by the Compiler; it is always the first error
// encountered while walking the operation stream (the compiler is a pure
// function and stops at the first failure).
type CompileError struct {
	Code    Code
	Message string
	// OpIndex is the index into the operation stream that triggered the
	// failure, or -1 if the error was discovered during resolution/validation
	// rather than while consuming a specific op.
	OpIndex int
}

func (e *CompileError) Error() string {
	if e.OpIndex >= 0 {
		return fmt.Sprintf("compile error at op %d [%s]: %s", e.OpIndex, e.Code, e.Message)
	}
	return fmt.Sprintf("compile error [%s]: %s", e.Code, e.Message)
}

// NewCompileError builds a CompileError not tied to a specific op index.
func NewCompileError(code Code, message string) *CompileError {
	return &CompileError{Code: code, Message: message, OpIndex: -1}
}

// NewCompileErrorAt builds a CompileError tied to the op that caused it.
func NewCompileErrorAt(code Code, message string, opIndex int) *CompileError {
	return &CompileError{Code: code, Message: message, OpIndex: opIndex}
}

// EngineError represents a failure raised by the workflow-state engine or
// scheduler, scoped to a flow and optionally a node.
type EngineError struct {
	Code    Code
	FlowID  string
	NodeID  string
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("engine error [%s] in flow %s at node %s: %s", e.Code, e.FlowID, e.NodeID, e.Message)
	}
	return fmt.Sprintf("engine error [%s] in flow %s: %s", e.Code, e.FlowID, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// NewEngineError builds an EngineError.
func NewEngineError(code Code, flowID, nodeID, message string, cause error) *EngineError {
	return &EngineError{Code: code, FlowID: flowID, NodeID: nodeID, Message: message, Cause: cause}
}

// RoutingError represents a failure evaluating a condition or transform at
// routing time. Fatal on data targets, tolerated on error targets.
type RoutingError struct {
	Code       Code
	NodeID     string
	TargetDesc string
	Cause      error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing error [%s] at node %s (%s): %v", e.Code, e.NodeID, e.TargetDesc, e.Cause)
}

func (e *RoutingError) Unwrap() error { return e.Cause }
