// Command dfctl is a small operator CLI over the dataflow engine: it
// compiles a YAML operation-stream file, optionally renders the compiled
// graph, and can drive a flow to completion against either the in-memory
// store or Postgres — the same three collaborators pkg/dataflow wires for a
// real embedder, exposed here for local inspection and smoke-testing
// instead of a REST surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/smilemakc/dataflow/internal/compiler"
	"github.com/smilemakc/dataflow/internal/compiler/visualize"
	"github.com/smilemakc/dataflow/internal/compiler/yamlops"
	"github.com/smilemakc/dataflow/internal/platform/config"
	"github.com/smilemakc/dataflow/internal/platform/logger"
	"github.com/smilemakc/dataflow/internal/store"
	"github.com/smilemakc/dataflow/pkg/dataflow"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	var err error
	switch os.Args[1] {
	case "compile":
		err = runCompile(os.Args[2:])
	case "graph":
		err = runGraph(os.Args[2:])
	case "run":
		err = runRun(os.Args[2:], cfg)
	case "dump":
		err = runDump(os.Args[2:], cfg)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Msg("dfctl failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: dfctl <command> [flags]

commands:
  compile  -file ops.yaml              compile an operation stream, print the command list as JSON
  graph    -file ops.yaml [-format mermaid|ascii]   render the compiled graph
  run      -file ops.yaml [-actor id]  compile, persist, and run a flow to completion
  dump     -flow id                    print every data record for an already-run flow`)
}

func loadOps(path string) ([]compiler.Op, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return yamlops.Load(data)
}

func runCompile(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	file := fs.String("file", "", "path to a YAML operation-stream document")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	ops, err := loadOps(*file)
	if err != nil {
		return err
	}
	_, cmds, err := compiler.Compile(ops, compiler.SessionContext{})
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cmds)
}

func runGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	file := fs.String("file", "", "path to a YAML operation-stream document")
	format := fs.String("format", "ascii", "ascii or mermaid")
	direction := fs.String("direction", "TB", "mermaid diagram direction (TB, LR, RL, BT)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	ops, err := loadOps(*file)
	if err != nil {
		return err
	}
	graph, _, err := compiler.Compile(ops, compiler.SessionContext{})
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	var renderer visualize.Renderer
	switch *format {
	case "mermaid":
		renderer = visualize.NewMermaidRenderer()
	case "ascii":
		renderer = visualize.NewASCIIRenderer()
	default:
		return fmt.Errorf("unknown -format %q (want ascii or mermaid)", *format)
	}

	opts := visualize.DefaultRenderOptions()
	opts.Direction = *direction
	out, err := renderer.Render(graph, opts)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	fmt.Println(out)
	return nil
}

func runRun(args []string, cfg *config.Config) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	file := fs.String("file", "", "path to a YAML operation-stream document")
	actor := fs.String("actor", "dfctl", "actor id recorded on the created flow")
	input := fs.String("input", "", "JSON value to use as the workflow input (overrides with_input in the file)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	ops, err := loadOps(*file)
	if err != nil {
		return err
	}
	if *input != "" {
		var v any
		if err := json.Unmarshal([]byte(*input), &v); err != nil {
			return fmt.Errorf("parse -input: %w", err)
		}
		ops = append([]compiler.Op{compiler.WithInput(v)}, ops...)
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := dataflow.NewDefaultRegistry(dataflow.RuntimeDeps{})
	eng := dataflow.NewEngine(st, registry, cfg)

	ctx := context.Background()
	flowID, err := eng.StartFlow(ctx, *actor, ops)
	if err != nil {
		return fmt.Errorf("start flow: %w", err)
	}
	log.Info().Str("flow_id", flowID).Msg("flow started")

	result, err := eng.Run(ctx, flowID)
	if err != nil {
		return fmt.Errorf("run flow: %w", err)
	}
	log.Info().
		Str("flow_id", flowID).
		Bool("completed", result.Completed).
		Bool("success", result.Success).
		Str("message", result.Message).
		Int("steps", result.Steps).
		Msg("flow finished")
	fmt.Println(flowID)
	return nil
}

func runDump(args []string, cfg *config.Config) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	flowID := fs.String("flow", "", "flow id to dump data records for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *flowID == "" {
		return fmt.Errorf("-flow is required")
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	rows, err := st.Reader(*flowID).Content(true).Metadata(true).ReplaceReferences(true).
		OrderBy("created_at", store.Ascending).All(ctx)
	if err != nil {
		return fmt.Errorf("read flow %s: %w", *flowID, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// openStore picks Postgres when DATABASE_DSN is set, else the in-memory
// store, matching the teacher's own BunStore-vs-MemoryStorage factory split
// (factory.go's NewMemoryStorage/NewPostgresStorage).
func openStore(cfg *config.Config) (dataflow.Store, func(), error) {
	if cfg.DatabaseDSN == "" {
		return dataflow.NewMemoryStore(nil), func() {}, nil
	}

	pgStore := dataflow.NewPostgresStore(cfg.DatabaseDSN, nil)
	if err := pgStore.InitSchema(context.Background()); err != nil {
		return nil, func() {}, fmt.Errorf("init postgres schema: %w", err)
	}
	closeFn := func() {
		if err := pgStore.Close(); err != nil {
			log.Warn().Err(err).Msg("closing postgres store")
		}
	}
	return pgStore, closeFn, nil
}
