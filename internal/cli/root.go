// Package cli provides the command-line interface for dbt-toolbox.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/erikmunkby/dbt-toolbox/internal/cli/commands"
	"github.com/erikmunkby/dbt-toolbox/internal/config"
	"github.com/erikmunkby/dbt-toolbox/pkg/dialect"
	"github.com/spf13/cobra"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dt",
		Short: "dbt-toolbox - offline analysis for dbt projects",
		Long: `dbt-toolbox analyzes a dbt project without touching the warehouse.

It renders model templates, builds the dependency graph, traces column
lineage, validates documentation against computed columns, and caches
results so repeated runs only re-analyze what changed.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			// Command output goes through the renderer; the logger is
			// for diagnostics and stays silent unless asked for.
			logger := slog.New(slog.DiscardHandler)
			if cfg.Verbose {
				logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: slog.LevelDebug,
				}))
			}
			cmd.SetContext(context.WithValue(cmd.Context(), config.LoggerKey(), logger))

			if cfg.Verbose && cfg.ConfigFile != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", cfg.ConfigFile)
			}

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} v{{.Version}}
`)

	// Global persistent flags. Everything except --config maps onto a
	// setting, so the loader picks these up as the highest layer.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: dbt_toolbox.yaml, searched upward)")
	rootCmd.PersistentFlags().String("models-dir", "", "Path to the models directory")
	rootCmd.PersistentFlags().String("macros-dir", "", "Path to the macros directory")
	rootCmd.PersistentFlags().String("cache-path", "", "Path to the cache database (\":memory:\" for ephemeral)")
	rootCmd.PersistentFlags().String("dialect", "", "SQL dialect models are written in")
	rootCmd.PersistentFlags().Int("threads", 0, "Render and resolve parallelism")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|table|json)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose logging to stderr")

	// Register completion for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "table", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Register completion for dialect flag
	_ = rootCmd.RegisterFlagCompletionFunc("dialect", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return dialect.List(), cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewAnalyzeCommand())
	rootCmd.AddCommand(commands.NewBuildCommand())
	rootCmd.AddCommand(commands.NewLineageCommand())
	rootCmd.AddCommand(commands.NewDAGCommand())
	rootCmd.AddCommand(commands.NewRenderCommand())
	rootCmd.AddCommand(commands.NewDocsCommand())
	rootCmd.AddCommand(commands.NewCleanCommand())
	rootCmd.AddCommand(commands.NewSettingsCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for dt.

To load completions:

Bash:
  $ source <(dt completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ dt completion bash > /etc/bash_completion.d/dt
  # macOS:
  $ dt completion bash > $(brew --prefix)/etc/bash_completion.d/dt

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ dt completion zsh > "${fpath[1]}/_dt"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ dt completion fish | source

  # To load completions for each session, execute once:
  $ dt completion fish > ~/.config/fish/completions/dt.fish

PowerShell:
  PS> dt completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> dt completion powershell > dt.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
			}
			return nil
		},
	}
	return cmd
}
