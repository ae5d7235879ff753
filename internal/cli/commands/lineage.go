package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/erikmunkby/dbt-toolbox/internal/cli/output"
	"github.com/erikmunkby/dbt-toolbox/internal/dag"
	"github.com/erikmunkby/dbt-toolbox/pkg/core"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// LineageOptions holds options for the lineage command.
type LineageOptions struct {
	Upstream   bool
	Downstream bool
	Depth      int
}

// NewLineageCommand creates the lineage command.
func NewLineageCommand() *cobra.Command {
	opts := &LineageOptions{}

	cmd := &cobra.Command{
		Use:   "lineage <model>",
		Short: "Show column lineage and dependencies for a model",
		Long: `Display where every output column of a model comes from, along with
the model's upstream dependencies and downstream dependents.

Column provenance is computed from the rendered SQL, so the command
runs the analysis pipeline first; cached models make repeat runs
cheap.`,
		Example: `  # Full lineage for a model
  dt lineage orders

  # Only upstream dependencies
  dt lineage orders --downstream=false

  # Limit traversal depth
  dt lineage orders --depth 2

  # Machine-readable output
  dt lineage orders -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			return runLineage(cmd, cc, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Upstream, "upstream", true, "Include upstream dependencies")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", true, "Include downstream dependents")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "Max traversal depth (0 = unlimited)")

	return cmd
}

func runLineage(cmd *cobra.Command, cc *CommandContext, name string, opts *LineageOptions) error {
	// Column provenance comes out of the resolve stage, so run the
	// whole pipeline rather than just discovery.
	if _, err := cc.Engine.Analyze(cmd.Context()); err != nil {
		return err
	}

	model := cc.Engine.Project().Model(name)
	if model == nil {
		return fmt.Errorf("model not found: %s", name)
	}

	graph := cc.Engine.Graph()

	var upstream, downstream []string
	if opts.Upstream {
		upstream = upstreamWithDepth(graph, name, opts.Depth)
	}
	if opts.Downstream {
		downstream = downstreamWithDepth(graph, name, opts.Depth)
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(lineageOutput(model, opts, upstream, downstream))
	}

	lineageText(r, model, opts, upstream, downstream)
	return nil
}

func lineageText(r *output.Renderer, model *core.Model, opts *LineageOptions, upstream, downstream []string) {
	r.Header(1, fmt.Sprintf("Lineage for: %s", model.Name))
	r.Println("")

	if len(model.Columns) == 0 {
		r.Println(r.Styles().Muted.Render("No computed columns (model may have failed analysis)"))
		r.Println("")
	} else {
		t := table.NewWriter()
		t.SetOutputMirror(r.Writer())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"#", "Column", "Transform", "Function", "Sources"})
		for _, col := range model.Columns {
			sources := make([]string, 0, len(col.Provenance))
			for _, p := range col.Provenance {
				sources = append(sources, formatProvenance(p))
			}
			t.AppendRow(table.Row{
				col.Index + 1,
				col.Name,
				transformLabel(col.Transform),
				col.Function,
				strings.Join(sources, "\n"),
			})
		}
		t.Render()
		r.Println("")
	}

	if opts.Upstream {
		r.Printf("Upstream dependencies (%d):\n", len(upstream))
		for _, node := range upstream {
			r.Printf("  - %s\n", node)
		}
		r.Println("")
	}

	if opts.Downstream {
		r.Printf("Downstream dependents (%d):\n", len(downstream))
		for _, node := range downstream {
			r.Printf("  - %s\n", node)
		}
	}
}

func lineageOutput(model *core.Model, opts *LineageOptions, upstream, downstream []string) output.LineageOutput {
	out := output.LineageOutput{
		Model:   model.Name,
		Columns: make([]output.LineageColumn, 0, len(model.Columns)),
	}
	for _, col := range model.Columns {
		lc := output.LineageColumn{
			Name:      col.Name,
			Transform: transformLabel(col.Transform),
			Function:  col.Function,
		}
		for _, p := range col.Provenance {
			if p.Unresolved {
				lc.Unresolved = true
				continue
			}
			lc.Sources = append(lc.Sources, formatProvenance(p))
		}
		out.Columns = append(out.Columns, lc)
	}
	if opts.Upstream {
		out.Upstream = upstream
	}
	if opts.Downstream {
		out.Downstream = downstream
	}
	return out
}

func formatProvenance(p core.Provenance) string {
	if p.Unresolved {
		return "(unresolved)"
	}
	if p.Relation == "" {
		return p.Column
	}
	return p.Relation + "." + p.Column
}

func transformLabel(t core.TransformType) string {
	if t == core.TransformExpression {
		return "expression"
	}
	return "direct"
}

// upstreamWithDepth returns ancestors sorted by name, optionally
// bounded to maxDepth hops.
func upstreamWithDepth(graph *dag.Graph, name string, maxDepth int) []string {
	nodes := traverse(name, maxDepth, graph.GetParents)
	sort.Strings(nodes)
	return nodes
}

// downstreamWithDepth returns descendants sorted by name, optionally
// bounded to maxDepth hops.
func downstreamWithDepth(graph *dag.Graph, name string, maxDepth int) []string {
	nodes := traverse(name, maxDepth, graph.GetChildren)
	sort.Strings(nodes)
	return nodes
}

func traverse(start string, maxDepth int, next func(string) []string) []string {
	visited := make(map[string]bool)
	var result []string

	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		if maxDepth > 0 && depth > maxDepth {
			return
		}
		for _, n := range next(id) {
			if !visited[n] {
				visited[n] = true
				result = append(result, n)
				walk(n, depth+1)
			}
		}
	}

	walk(start, 1)
	return result
}
