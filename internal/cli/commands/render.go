package commands

import (
	"github.com/erikmunkby/dbt-toolbox/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <model>",
		Short: "Render a model's SQL with refs and macros expanded",
		Long: `Render one model's template: ref() and source() directives become
relation names, var() values are substituted, and macros expand
recursively. The result is the SQL the model would ship to a
warehouse.`,
		Example: `  # Render a model
  dt render orders

  # Pipe the SQL somewhere useful
  dt render orders -o table | pbcopy

  # Machine-readable output
  dt render orders -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			sql, err := cc.Engine.RenderModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(output.RenderOutput{Model: args[0], SQL: sql})
			}
			r.Println(sql)
			return nil
		},
	}

	return cmd
}
