// Package yamlops parses a YAML document into the operation stream
// compiler.Compile accepts, so a flow can be authored as a file instead of
// a sequence of Go function calls.
//
// Typed YAML structs decoded with gopkg.in/yaml.v3, a ValidationError
// carrying a field path, and a ParseYAMLContent helper that strips a BOM
// and surrounding whitespace before handing bytes to yaml.Unmarshal.
package yamlops

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/smilemakc/dataflow/internal/compiler"
)

// Document is the top-level YAML operation-stream document: a set of named
// templates (inlined by a `use` op) plus the top-level operation list.
type Document struct {
	Templates map[string][]YAMLOp `yaml:"templates,omitempty"`
	Ops       []YAMLOp            `yaml:"ops"`
}

// YAMLOp is one entry in a YAML operation stream. Exactly one field is
// populated per entry, mirroring compiler.Op's own one-kind-per-value
// shape.
type YAMLOp struct {
	WithInput any            `yaml:"with_input,omitempty"`
	WithData  any            `yaml:"with_data,omitempty"`
	Func      *YAMLCall      `yaml:"func,omitempty"`
	Agent     *YAMLCall      `yaml:"agent,omitempty"`
	Cycle     *YAMLLoop      `yaml:"cycle,omitempty"`
	Parallel  *YAMLLoop      `yaml:"parallel,omitempty"`
	State     map[string]any `yaml:"state,omitempty"`
	Use       string         `yaml:"use,omitempty"`
	As        string         `yaml:"as,omitempty"`
	To        *YAMLRoute     `yaml:"to,omitempty"`
	ErrorTo   *YAMLRoute     `yaml:"error_to,omitempty"`
	When      string         `yaml:"when,omitempty"`
}

// YAMLCall is func(id, config)'s / agent(id, config)'s YAML shape.
type YAMLCall struct {
	ID     string         `yaml:"id"`
	Config map[string]any `yaml:"config,omitempty"`
}

// YAMLLoop is cycle(config, template)'s / parallel(config, template)'s YAML
// shape.
type YAMLLoop struct {
	Config   map[string]any `yaml:"config,omitempty"`
	Template []YAMLOp       `yaml:"template,omitempty"`
}

// YAMLRoute is to(target, input_key, transform)'s / error_to(...)'s YAML
// shape. A bare scalar (`to: "@success"`) is also accepted as shorthand for
// a target with no input_key/transform.
type YAMLRoute struct {
	Target    string `yaml:"target"`
	InputKey  string `yaml:"input_key,omitempty"`
	Transform string `yaml:"transform,omitempty"`
}

// UnmarshalYAML accepts either a bare scalar target or the full mapping.
func (r *YAMLRoute) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Target = node.Value
		return nil
	}
	type plain YAMLRoute
	return node.Decode((*plain)(r))
}

// ValidationError reports a malformed operation-stream document together
// with the field that failed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ParseYAMLContent strips a byte-order mark and surrounding whitespace
// before the content is handed to yaml.Unmarshal.
func ParseYAMLContent(data []byte) ([]byte, error) {
	content := strings.TrimSpace(strings.TrimPrefix(string(data), "\xef\xbb\xbf"))
	if content == "" {
		return nil, &ValidationError{Field: "document", Message: "empty YAML content"}
	}
	return []byte(content), nil
}

// Load parses a YAML operation-stream document and converts it into the
// compiler.Op slice compiler.Compile accepts.
func Load(data []byte) ([]compiler.Op, error) {
	content, err := ParseYAMLContent(data)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Ops) == 0 {
		return nil, &ValidationError{Field: "ops", Message: "at least one operation is required"}
	}

	templates := make(map[string]compiler.Template, len(doc.Templates))
	for name, rawOps := range doc.Templates {
		ops, err := convertOps(rawOps, templates)
		if err != nil {
			return nil, fmt.Errorf("templates.%s: %w", name, err)
		}
		templates[name] = compiler.Template{Operations: ops}
	}

	return convertOps(doc.Ops, templates)
}

func convertOps(raw []YAMLOp, templates map[string]compiler.Template) ([]compiler.Op, error) {
	ops := make([]compiler.Op, 0, len(raw))
	for idx, y := range raw {
		op, err := convertOp(y, templates)
		if err != nil {
			return nil, fmt.Errorf("ops[%d]: %w", idx, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func convertOp(y YAMLOp, templates map[string]compiler.Template) (compiler.Op, error) {
	if n := countSet(y); n != 1 {
		return compiler.Op{}, &ValidationError{Field: "op", Message: fmt.Sprintf("expected exactly one operation key, found %d", n)}
	}

	switch {
	case y.WithInput != nil:
		return compiler.WithInput(y.WithInput), nil
	case y.WithData != nil:
		return compiler.WithData(y.WithData), nil
	case y.Func != nil:
		return compiler.Func(y.Func.ID, y.Func.Config), nil
	case y.Agent != nil:
		return compiler.Agent(y.Agent.ID, y.Agent.Config), nil
	case y.Cycle != nil:
		tmpl, err := convertOps(y.Cycle.Template, templates)
		if err != nil {
			return compiler.Op{}, fmt.Errorf("cycle: %w", err)
		}
		return compiler.Cycle(y.Cycle.Config, tmpl...), nil
	case y.Parallel != nil:
		tmpl, err := convertOps(y.Parallel.Template, templates)
		if err != nil {
			return compiler.Op{}, fmt.Errorf("parallel: %w", err)
		}
		return compiler.Parallel(y.Parallel.Config, tmpl...), nil
	case y.State != nil:
		return compiler.State(y.State), nil
	case y.Use != "":
		t, ok := templates[y.Use]
		if !ok {
			return compiler.Op{}, &ValidationError{Field: "use", Message: fmt.Sprintf("unknown template %q", y.Use)}
		}
		return compiler.Use(t), nil
	case y.As != "":
		return compiler.As(y.As), nil
	case y.To != nil:
		return compiler.To(y.To.Target, y.To.InputKey, y.To.Transform), nil
	case y.ErrorTo != nil:
		return compiler.ErrorTo(y.ErrorTo.Target, y.ErrorTo.InputKey, y.ErrorTo.Transform), nil
	case y.When != "":
		return compiler.When(y.When), nil
	default:
		return compiler.Op{}, &ValidationError{Field: "op", Message: "empty operation entry"}
	}
}

func countSet(y YAMLOp) int {
	n := 0
	for _, set := range []bool{
		y.WithInput != nil, y.WithData != nil, y.Func != nil, y.Agent != nil,
		y.Cycle != nil, y.Parallel != nil, y.State != nil, y.Use != "",
		y.As != "", y.To != nil, y.ErrorTo != nil, y.When != "",
	} {
		if set {
			n++
		}
	}
	return n
}
