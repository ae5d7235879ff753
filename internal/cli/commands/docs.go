package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erikmunkby/dbt-toolbox/internal/docs"
	"github.com/erikmunkby/dbt-toolbox/pkg/core"
	"github.com/spf13/cobra"
)

// NewDocsCommand creates the docs command group.
func NewDocsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Generate and serve model documentation",
	}

	cmd.AddCommand(newDocsGenerateCommand())
	cmd.AddCommand(newDocsServeCommand())

	return cmd
}

func newDocsGenerateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate [model]",
		Short: "Generate schema YAML from computed columns",
		Long: `Print a schema YAML skeleton built from the computed columns of the
analyzed project. Descriptions of columns already documented are
carried over; documented columns a model no longer produces are
dropped.

With a model argument only that model's entry is generated. Redirect
the output into a schema file to adopt it.`,
		Example: `  # Skeleton for the whole project
  dt docs generate

  # Skeleton for one model
  dt docs generate orders > models/schema.yml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := cc.Engine.Analyze(cmd.Context()); err != nil {
				return err
			}

			models := cc.Engine.Project().Models()
			if len(args) == 1 {
				m := cc.Engine.Project().Model(args[0])
				if m == nil {
					return fmt.Errorf("model not found: %s", args[0])
				}
				models = []*core.Model{m}
			}

			data, err := docs.GenerateSchema(models)
			if err != nil {
				return err
			}

			_, err = cc.Renderer.Writer().Write(data)
			return err
		},
	}
}

func newDocsServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve model documentation over HTTP",
		Long: `Analyze the project and serve browsable documentation: models,
columns, provenance, and diagnostics. The server runs until
interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := cc.Engine.Analyze(ctx)
			if err != nil {
				return err
			}

			srv := docs.NewServer(docs.ServerConfig{
				Project:     cc.Engine.Project(),
				Diagnostics: res.Diagnostics,
				Port:        port,
				Logger:      cc.Logger,
			})

			cc.Renderer.Printf("Serving docs at http://localhost:%d (Ctrl+C to stop)\n", port)
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to serve documentation on")

	return cmd
}
