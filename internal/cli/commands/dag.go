package commands

import (
	"fmt"
	"strings"

	"github.com/erikmunkby/dbt-toolbox/internal/cli/output"
	"github.com/spf13/cobra"
)

// GraphQuerier provides read-only access to DAG structure.
type GraphQuerier interface {
	GetParents(string) []string
	GetChildren(string) []string
	Nodes() []string
	Len() int
}

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Show the dependency graph",
		Long: `Display the dependency graph (DAG) of all models and sources.

Models are grouped by execution level, showing which models can run
in parallel and their dependency relationships.`,
		Example: `  # Show the DAG
  dt dag

  # Output as JSON
  dt dag -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDAG(cmd)
		},
	}

	return cmd
}

func runDAG(cmd *cobra.Command) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	// Planning runs the side-effect-free front half of the pipeline
	// and leaves the graph populated; the plan itself is not needed.
	if _, err := cc.Engine.BuildPlan(cmd.Context(), ""); err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}

	graph := cc.Engine.Graph()

	levels, err := graph.GetExecutionLevels()
	if err != nil {
		return fmt.Errorf("failed to get execution levels: %w", err)
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return dagJSON(r, graph, levels)
	}
	return dagText(r, graph, levels)
}

// dagText outputs the DAG in styled text format.
func dagText(r *output.Renderer, graph GraphQuerier, levels [][]string) error {
	styles := r.Styles()

	r.Header(1, "Dependency Graph")

	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, model := range level {
			deps := graph.GetParents(model)
			children := graph.GetChildren(model)

			r.Printf("  %s\n", styles.ModelName.Render(model))
			if len(deps) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(deps, ", "))
			}
			if len(children) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d nodes, %d dependencies", graph.Len(), countEdges(graph))))

	return nil
}

// dagJSON outputs the DAG in JSON format.
func dagJSON(r *output.Renderer, graph GraphQuerier, levels [][]string) error {
	dagOutput := output.DAGOutput{
		Levels:      make([]output.DAGLevel, 0, len(levels)),
		TotalModels: graph.Len(),
		TotalEdges:  countEdges(graph),
	}

	for i, level := range levels {
		dagLevel := output.DAGLevel{
			Level:  i,
			Models: make([]output.DAGNode, 0, len(level)),
		}

		for _, model := range level {
			dagLevel.Models = append(dagLevel.Models, output.DAGNode{
				Name:      model,
				DependsOn: graph.GetParents(model),
				UsedBy:    graph.GetChildren(model),
			})
		}

		dagOutput.Levels = append(dagOutput.Levels, dagLevel)
	}

	return r.JSON(dagOutput)
}

func countEdges(graph GraphQuerier) int {
	edges := 0
	for _, node := range graph.Nodes() {
		edges += len(graph.GetParents(node))
	}
	return edges
}
