package visualize

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/smilemakc/dataflow/internal/compiler"
	"github.com/smilemakc/dataflow/internal/domain"
)

// ASCIIRenderer renders a graph as an ASCII tree, for terminal output.
type ASCIIRenderer struct{}

// NewASCIIRenderer creates a new ASCII renderer.
func NewASCIIRenderer() *ASCIIRenderer { return &ASCIIRenderer{} }

// Format returns the format identifier.
func (r *ASCIIRenderer) Format() string { return "ascii" }

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorWhite  = "\033[37m"
)

const (
	branchChar     = "├── "
	lastBranchChar = "└── "
	verticalChar   = "│   "
	emptyChar      = "    "
)

// Render converts a graph into an ASCII tree, one root per line of Graph.Roots.
func (r *ASCIIRenderer) Render(graph *compiler.Graph, opts *RenderOptions) (string, error) {
	if graph == nil {
		return "", fmt.Errorf("graph is nil")
	}
	if opts == nil {
		opts = DefaultRenderOptions()
	}
	if opts.UseColor {
		opts.UseColor = isatty.IsTerminal(os.Stdout.Fd())
	}

	byID := make(map[string]*domain.Node, len(graph.Nodes))
	for i := range graph.Nodes {
		byID[graph.Nodes[i].NodeID] = &graph.Nodes[i]
	}
	children := make(map[string][]compiler.Edge)
	for _, e := range graph.Edges {
		if e.Terminal || e.ToNodeID == "" {
			continue
		}
		children[e.FromNodeID] = append(children[e.FromNodeID], e)
	}

	roots := graph.Roots()
	if len(roots) == 0 && len(graph.Nodes) > 0 {
		roots = []string{graph.Nodes[0].NodeID}
	}

	var sb strings.Builder
	visited := make(map[string]bool)
	for i, rootID := range roots {
		isLast := i == len(roots)-1
		r.renderNode(&sb, rootID, byID, children, "", isLast, visited, opts)
	}
	return sb.String(), nil
}

func (r *ASCIIRenderer) renderNode(
	sb *strings.Builder,
	nodeID string,
	byID map[string]*domain.Node,
	children map[string][]compiler.Edge,
	prefix string,
	isLast bool,
	visited map[string]bool,
	opts *RenderOptions,
) {
	if visited[nodeID] {
		r.writeBranch(sb, prefix, isLast)
		sb.WriteString(r.colorize("(cycle detected: "+nodeID+")", colorRed, opts.UseColor))
		sb.WriteString("\n")
		return
	}
	visited[nodeID] = true

	node := byID[nodeID]
	if node == nil {
		return
	}

	r.writeBranch(sb, prefix, isLast)
	sb.WriteString(r.formatNode(node, opts))
	sb.WriteString("\n")

	if !opts.CompactMode && opts.ShowConfig {
		if detail := r.extractNodeConfig(node); detail != "" {
			configPrefix := prefix
			if prefix != "" {
				if isLast {
					configPrefix += emptyChar
				} else {
					configPrefix += verticalChar
				}
			}
			sb.WriteString(configPrefix)
			sb.WriteString(r.colorize("│ "+detail, colorWhite, opts.UseColor))
			sb.WriteString("\n")
		}
	}

	edges := children[nodeID]
	childPrefix := prefix
	if isLast {
		childPrefix += emptyChar
	} else {
		childPrefix += verticalChar
	}
	for i, e := range edges {
		r.renderNode(sb, e.ToNodeID, byID, children, childPrefix, i == len(edges)-1, visited, opts)
	}
}

func (r *ASCIIRenderer) writeBranch(sb *strings.Builder, prefix string, isLast bool) {
	if prefix == "" {
		return
	}
	if isLast {
		sb.WriteString(prefix + lastBranchChar)
	} else {
		sb.WriteString(prefix + branchChar)
	}
}

func (r *ASCIIRenderer) formatNode(node *domain.Node, opts *RenderOptions) string {
	id := r.colorize("["+node.NodeID+"]", colorGreen, opts.UseColor)
	typ := r.colorize("("+string(node.Type)+")", colorYellow, opts.UseColor)
	return id + " " + typ
}

func (r *ASCIIRenderer) extractNodeConfig(node *domain.Node) string {
	switch node.Type {
	case domain.RuntimeFunc:
		id, _ := node.Config["func_id"].(string)
		return id
	case domain.RuntimeAgent:
		model, _ := node.Config["model"].(string)
		return model
	case domain.RuntimeState:
		mode, _ := node.Config["output_mode"].(string)
		return mode
	}
	return ""
}

func (r *ASCIIRenderer) colorize(text, color string, enabled bool) string {
	if !enabled {
		return text
	}
	return color + text + colorReset
}
