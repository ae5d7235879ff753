package commands

import (
	"fmt"

	"github.com/erikmunkby/dbt-toolbox/internal/cli/output"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewSettingsCommand creates the settings command.
func NewSettingsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show every effective setting and where it came from",
		Long: `List the effective configuration after merging defaults, the config
file, environment variables, and flags, with the winning source and
its location for each value.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContextWithoutEngine(cmd)
			cfg := cc.Cfg
			r := cc.Renderer

			settings := cfg.Settings()

			if r.EffectiveMode() == output.ModeJSON {
				out := output.SettingsOutput{
					ProjectRoot: cfg.ProjectRoot,
					ConfigFile:  cfg.ConfigFile,
					Settings:    make([]output.SettingEntry, 0, len(settings)),
				}
				for _, s := range settings {
					out.Settings = append(out.Settings, output.SettingEntry{
						Key:      s.Key,
						Value:    s.Value,
						Source:   string(s.Source),
						Location: s.Location,
					})
				}
				return r.JSON(out)
			}

			r.Header(1, "Settings")
			r.Printf("Project root: %s\n", cfg.ProjectRoot)
			if cfg.ConfigFile != "" {
				r.Printf("Config file:  %s\n", cfg.ConfigFile)
			}
			r.Println("")

			t := table.NewWriter()
			t.SetOutputMirror(r.Writer())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Setting", "Value", "Source", "Location"})
			for _, s := range settings {
				t.AppendRow(table.Row{s.Key, fmt.Sprintf("%v", s.Value), string(s.Source), s.Location})
			}
			t.Render()
			return nil
		},
	}
}
