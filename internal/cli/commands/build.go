package commands

import (
	"fmt"
	"strings"

	"github.com/erikmunkby/dbt-toolbox/internal/cli/output"
	"github.com/erikmunkby/dbt-toolbox/internal/engine"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "build [selection...]",
		Aliases: []string{"run"},
		Short:   "Show which models a build would rebuild, and why",
		Long: `Compute the execution plan for a dbt-style selection without
touching any warehouse: which models are stale, which are fresh, and
the reason behind every rebuild.

Selection atoms follow dbt syntax: "orders" names just the model,
"+orders" adds its ancestors, "orders+" its descendants, and
"+orders+" both. Multiple atoms are unioned. With no selection the
plan covers every model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			plan, err := cc.Engine.BuildPlan(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			return renderPlan(cc.Renderer, plan)
		},
	}

	return cmd
}

func renderPlan(r *output.Renderer, plan *engine.Plan) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(plan)
	}

	rebuilds := plan.Total - plan.UpToDate

	if len(plan.Entries) == 0 {
		r.Success(fmt.Sprintf("All %d models up to date", plan.Total))
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Model", "Reason"})
	for _, entry := range plan.Entries {
		t.AppendRow(table.Row{entry.Model, formatReasons(entry.Reasons)})
	}
	t.Render()

	if rebuilds == 0 {
		r.Success(fmt.Sprintf("All %d models up to date", plan.Total))
		return nil
	}
	r.Printf("%d of %d models would rebuild, %d up to date\n",
		rebuilds, plan.Total, plan.UpToDate)
	return nil
}

func formatReasons(reasons []engine.PlanReason) string {
	parts := make([]string, 0, len(reasons))
	for _, reason := range reasons {
		if reason.Detail != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", reason.Code, reason.Detail))
		} else {
			parts = append(parts, string(reason.Code))
		}
	}
	return strings.Join(parts, "\n")
}
