// Package agentnode is the LLM agent runtime: a chat loop over
// github.com/sashabaranov/go-openai that optionally suspends behind a
// tool.call child node per the engine's yield protocol when the model
// requests a tool invocation. Generalized from a single-shot completion
// to a multi-turn arena loop with tool calling.
package agentnode

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/runtime"
)

// ToolSpec describes one callable tool exposed to the model: its name,
// description and JSON parameter schema.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Client is the subset of the OpenAI API the agent runtime needs, so tests
// can substitute a fake.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Runtime is the agent node runtime. One instance serves every agent node
// in a process; per-node conversation state lives in the node's own
// metadata, persisted via update_node the same way the rest of the engine
// persists bookkeeping.
type Runtime struct {
	client       Client
	defaultModel string
	tools        map[string]ToolSpec
}

// New builds an agent runtime against client, offering the given named
// tools to models whose arena.tools lists them.
func New(client Client, defaultModel string, tools map[string]ToolSpec) *Runtime {
	return &Runtime{client: client, defaultModel: defaultModel, tools: tools}
}

func (r *Runtime) Type() domain.RuntimeType { return domain.RuntimeAgent }

// conversationState is persisted in the agent node's metadata across
// yield/resume cycles (the engine has no other channel for an agent to
// remember its own chat history between suspensions).
type conversationState struct {
	Messages       []openai.ChatCompletionMessage `json:"messages"`
	Iteration      int                            `json:"iteration"`
	PendingToolID  string                         `json:"pending_tool_id,omitempty"`
	PendingToolCID string                         `json:"pending_tool_child_id,omitempty"`
}

func (r *Runtime) Execute(ctx context.Context, rc runtime.RunContext) (runtime.Outcome, error) {
	cfg, err := domain.DecodeConfig[domain.AgentConfig](rc.Config)
	if err != nil {
		return runtime.Outcome{}, fmt.Errorf("agentnode: decode config: %w", err)
	}

	state := loadState(rc.Metadata)

	if state.PendingToolID != "" {
		result, err := readChildResult(ctx, rc, state.PendingToolCID)
		if err != nil {
			return runtime.Outcome{}, err
		}
		state.Messages = append(state.Messages, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			ToolCallID: state.PendingToolID,
			Content:    toJSONString(result),
		})
		state.PendingToolID = ""
		state.PendingToolCID = ""
	} else if len(state.Messages) == 0 {
		state.Messages = append(state.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: cfg.Arena.Prompt,
		}, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: toJSONString(rc.Input),
		})
	}

	model := cfg.Model
	if model == "" {
		model = r.defaultModel
	}

	maxIterations := cfg.Arena.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 10
	}

	for state.Iteration < maxIterations {
		state.Iteration++

		req := openai.ChatCompletionRequest{
			Model:    model,
			Messages: state.Messages,
		}
		if cfg.Arena.ToolCalling != "" && cfg.Arena.ToolCalling != domain.ToolCallingNone {
			req.Tools = r.toolDefs(cfg.Arena.Tools)
			if cfg.Arena.ToolCalling == domain.ToolCallingAny && len(req.Tools) > 0 {
				req.ToolChoice = "required"
			}
		}

		resp, err := r.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return runtime.Completed(nil, fmt.Errorf("agentnode: chat completion: %w", err)), nil
		}
		if len(resp.Choices) == 0 {
			return runtime.Completed(nil, fmt.Errorf("agentnode: no choices returned")), nil
		}

		msg := resp.Choices[0].Message
		state.Messages = append(state.Messages, msg)

		if len(msg.ToolCalls) == 0 || cfg.Arena.ToolCalling == "" || cfg.Arena.ToolCalling == domain.ToolCallingNone {
			return runtime.Completed(msg.Content, nil), nil
		}

		if state.Iteration >= maxIterations {
			break
		}

		call := msg.ToolCalls[0]
		childID := domain.NewID()
		state.PendingToolID = call.ID
		state.PendingToolCID = childID

		childConfig := map[string]any{
			"tool_name": call.Function.Name,
			"arguments": call.Function.Arguments,
		}
		outcome := runtime.Suspended(runtime.Yield{
			ReplyTo: "agent:" + rc.NodeID,
			Children: []runtime.ChildSpec{
				{NodeID: childID, Type: domain.RuntimeToolCall, Config: childConfig},
			},
		})
		return outcome.WithMetadata(stateMetadata(state)), nil
	}

	return runtime.Completed(nil, fmt.Errorf("agentnode: exceeded max_iterations (%d) without a final answer", maxIterations)), nil
}

func (r *Runtime) toolDefs(names []string) []openai.Tool {
	defs := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		spec, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	return defs
}

func loadState(metadata map[string]any) *conversationState {
	raw, ok := metadata["agent_state"]
	if !ok {
		return &conversationState{}
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return &conversationState{}
	}
	var s conversationState
	if err := json.Unmarshal(buf, &s); err != nil {
		return &conversationState{}
	}
	return &s
}

// stateMetadata builds the metadata patch that persists a conversation
// across a yield/resume cycle (conversationState is stored under
// metadata.agent_state).
func stateMetadata(state *conversationState) map[string]any {
	return map[string]any{"agent_state": state}
}

func toJSONString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(buf)
}

func readChildResult(ctx context.Context, rc runtime.RunContext, childID string) (any, error) {
	row, err := rc.Store.Reader(rc.FlowID).
		WithNodes(childID).
		WithDataTypes(domain.DataNodeResult).
		Content(true).
		OrderBy("created_at", "desc").
		One(ctx)
	if err != nil {
		return nil, fmt.Errorf("agentnode: read tool result for %s: %w", childID, err)
	}
	return row.Record.Content, nil
}
