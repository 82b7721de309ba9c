package visualize

import (
	"fmt"
	"strings"

	"github.com/smilemakc/dataflow/internal/compiler"
	"github.com/smilemakc/dataflow/internal/domain"
)

// MermaidRenderer renders a graph as a Mermaid flowchart diagram.
type MermaidRenderer struct{}

// NewMermaidRenderer creates a new Mermaid renderer.
func NewMermaidRenderer() *MermaidRenderer { return &MermaidRenderer{} }

// Format returns the format identifier.
func (r *MermaidRenderer) Format() string { return "mermaid" }

// Render converts a graph into Mermaid flowchart syntax.
func (r *MermaidRenderer) Render(graph *compiler.Graph, opts *RenderOptions) (string, error) {
	if graph == nil {
		return "", fmt.Errorf("graph is nil")
	}
	if opts == nil {
		opts = DefaultRenderOptions()
	}

	var sb strings.Builder
	sb.WriteString("flowchart ")
	sb.WriteString(opts.Direction)
	sb.WriteString("\n")

	for _, node := range graph.Nodes {
		sb.WriteString("    ")
		sb.WriteString(r.renderNode(&node, opts))
		sb.WriteString("\n")
	}

	if len(graph.Edges) > 0 {
		sb.WriteString("\n")
		for _, e := range graph.Edges {
			if e.Terminal {
				continue
			}
			sb.WriteString("    ")
			sb.WriteString(r.renderEdge(e, opts))
			sb.WriteString("\n")
		}
	}

	if opts.ShowConfig {
		sb.WriteString(r.renderNodeStyles())
		sb.WriteString("\n")
		sb.WriteString(r.applyNodeClasses(graph))
	}

	return sb.String(), nil
}

// renderNode formats a single node based on its runtime type.
func (r *MermaidRenderer) renderNode(node *domain.Node, opts *RenderOptions) string {
	label := r.buildNodeLabel(node, opts)
	switch node.Type {
	case domain.RuntimeFunc:
		return fmt.Sprintf(`%s["%s"]`, node.NodeID, label)
	case domain.RuntimeAgent:
		return fmt.Sprintf(`%s(["%s"])`, node.NodeID, label)
	case domain.RuntimeState:
		return fmt.Sprintf(`%s[/"%s"/]`, node.NodeID, label)
	case domain.RuntimeCycle, domain.RuntimeParallel:
		return fmt.Sprintf(`%s{{"%s"}}`, node.NodeID, label)
	case domain.RuntimeToolCall:
		return fmt.Sprintf(`%s{"%s"}`, node.NodeID, label)
	default:
		return fmt.Sprintf(`%s["%s"]`, node.NodeID, label)
	}
}

// buildNodeLabel constructs the node label with a type prefix and, when
// requested, a config detail.
func (r *MermaidRenderer) buildNodeLabel(node *domain.Node, opts *RenderOptions) string {
	prefix := r.typePrefix(node)
	label := prefix + ": " + node.NodeID

	if opts.ShowConfig {
		if detail := r.extractKeyConfig(node); detail != "" {
			label = label + "<br/>" + detail
		}
	}

	return strings.ReplaceAll(label, `"`, "&quot;")
}

func (r *MermaidRenderer) typePrefix(node *domain.Node) string {
	switch node.Type {
	case domain.RuntimeFunc:
		if id, _ := node.Config["func_id"].(string); id != "" {
			return "func: " + id
		}
		return "func"
	case domain.RuntimeAgent:
		if persona, _ := node.Config["agent"].(string); persona != "" {
			return "agent: " + persona
		}
		return "agent"
	case domain.RuntimeCycle:
		return "cycle"
	case domain.RuntimeParallel:
		return "parallel"
	case domain.RuntimeState:
		return "state"
	case domain.RuntimeToolCall:
		return "tool.call"
	default:
		return strings.ToUpper(string(node.Type))
	}
}

func (r *MermaidRenderer) extractKeyConfig(node *domain.Node) string {
	switch node.Type {
	case domain.RuntimeAgent:
		model, _ := node.Config["model"].(string)
		return model
	case domain.RuntimeCycle:
		if funcID, _ := node.Config["func_id"].(string); funcID != "" {
			return "step: " + funcID
		}
		return ""
	case domain.RuntimeParallel:
		key, _ := node.Config["source_array_key"].(string)
		return key
	case domain.RuntimeState:
		mode, _ := node.Config["output_mode"].(string)
		return mode
	default:
		return ""
	}
}

// renderEdge formats an edge connection.
func (r *MermaidRenderer) renderEdge(e compiler.Edge, opts *RenderOptions) string {
	arrow := "-->"
	if e.IsError {
		arrow = "-. error .->"
	}
	if opts.ShowConditions && e.Condition != "" {
		return fmt.Sprintf(`%s %s|"%s"| %s`, e.FromNodeID, arrow, r.escapeHTML(e.Condition), e.ToNodeID)
	}
	return fmt.Sprintf("%s %s %s", e.FromNodeID, arrow, e.ToNodeID)
}

func (r *MermaidRenderer) escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	text = strings.ReplaceAll(text, `"`, "&quot;")
	return text
}

func (r *MermaidRenderer) renderNodeStyles() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString("    %% Node type styles\n")
	sb.WriteString("    classDef funcNode fill:#D0E6FF,stroke:#1A73E8,stroke-width:2px,color:#000\n")
	sb.WriteString("    classDef agentNode fill:#E8D9FF,stroke:#8E57FF,stroke-width:2px,color:#000\n")
	sb.WriteString("    classDef stateNode fill:#FFE5C2,stroke:#F7931A,stroke-width:2px,color:#000\n")
	sb.WriteString("    classDef loopNode fill:#DFF7E3,stroke:#34A853,stroke-width:2px,color:#000\n")
	sb.WriteString("    classDef toolCallNode fill:#FFD9E6,stroke:#EA4C89,stroke-width:2px,color:#000\n")
	return sb.String()
}

func (r *MermaidRenderer) applyNodeClasses(graph *compiler.Graph) string {
	byClass := make(map[string][]string)
	for _, node := range graph.Nodes {
		class := r.className(node.Type)
		if class != "" {
			byClass[class] = append(byClass[class], node.NodeID)
		}
	}

	var sb strings.Builder
	for class, ids := range byClass {
		sb.WriteString("    class ")
		sb.WriteString(strings.Join(ids, ","))
		sb.WriteString(" ")
		sb.WriteString(class)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (r *MermaidRenderer) className(t domain.RuntimeType) string {
	switch t {
	case domain.RuntimeFunc:
		return "funcNode"
	case domain.RuntimeAgent:
		return "agentNode"
	case domain.RuntimeState:
		return "stateNode"
	case domain.RuntimeCycle, domain.RuntimeParallel:
		return "loopNode"
	case domain.RuntimeToolCall:
		return "toolCallNode"
	default:
		return ""
	}
}
