// Package visualize renders a compiled compiler.Graph as a diagram, for
// callers that want to inspect a flow's shape rather than run it (cmd/dfctl's
// "graph" command). It supports:
//   - Mermaid flowchart diagrams (for documentation and GitHub)
//   - ASCII tree graphs (for console output)
//
// Example usage:
//
//	renderer := visualize.NewMermaidRenderer()
//	opts := visualize.DefaultRenderOptions()
//	diagram, err := renderer.Render(graph, opts)
package visualize

import "github.com/smilemakc/dataflow/internal/compiler"

// Renderer is the interface for rendering a compiled graph in different
// formats.
type Renderer interface {
	// Render converts a graph into the target format.
	Render(graph *compiler.Graph, opts *RenderOptions) (string, error)

	// Format returns the format identifier (e.g., "mermaid", "ascii").
	Format() string
}

// RenderOptions configures how a graph is rendered.
type RenderOptions struct {
	// ShowConfig controls whether node configuration details are displayed.
	ShowConfig bool

	// ShowConditions controls whether edge conditions are displayed.
	ShowConditions bool

	// UseColor enables ANSI color codes (ASCII renderer only).
	UseColor bool

	// CompactMode reduces the output size (ASCII renderer only).
	CompactMode bool

	// Direction sets the diagram flow direction (Mermaid renderer only).
	// Valid values: "TB" (top-bottom), "LR" (left-right), "RL" (right-left),
	// "BT" (bottom-top).
	Direction string
}

// DefaultRenderOptions returns the default rendering options.
func DefaultRenderOptions() *RenderOptions {
	return &RenderOptions{
		ShowConfig:     true,
		ShowConditions: true,
		UseColor:       true, // auto-detected against the terminal by the ASCII renderer
		CompactMode:    false,
		Direction:      "TB",
	}
}
