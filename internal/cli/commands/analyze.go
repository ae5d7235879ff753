package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/erikmunkby/dbt-toolbox/internal/cli/output"
	"github.com/erikmunkby/dbt-toolbox/internal/engine"
	"github.com/erikmunkby/dbt-toolbox/pkg/core"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const watchDebounce = 100 * time.Millisecond

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "analyze [models...]",
		Short: "Analyze the project and report diagnostics",
		Long: `Run the full analysis pipeline: render every model, build the
dependency graph, resolve column lineage, and validate documentation
against the computed columns.

Passing model names narrows the report to those models. The exit code
is non-zero when the reported diagnostics contain errors.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if watch {
				return watchAndAnalyze(cmd.Context(), cc, args)
			}
			return runAnalyze(cmd.Context(), cc, args)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-analyze whenever model or macro files change")

	return cmd
}

// runAnalyze performs one analysis pass and renders the result. It
// returns an error when the displayed diagnostics contain errors, so
// the process exits non-zero after the report is printed.
func runAnalyze(ctx context.Context, cc *CommandContext, models []string) error {
	res, err := cc.Engine.Analyze(ctx)
	if err != nil {
		return err
	}

	for _, name := range models {
		if !cc.Engine.Project().HasModel(name) {
			return fmt.Errorf("model not found: %s", name)
		}
	}

	diags := filterDiagnostics(res.Diagnostics, models)

	if cc.Renderer.EffectiveMode() == output.ModeJSON {
		if err := cc.Renderer.JSON(analyzeOutput(res, diags, models)); err != nil {
			return err
		}
	} else {
		renderDiagnostics(cc.Renderer, res, diags, len(models) > 0)
	}

	if core.HasErrors(diags) {
		return fmt.Errorf("analysis found errors")
	}
	return nil
}

// filterDiagnostics narrows diagnostics to the named models. An empty
// selection keeps everything.
func filterDiagnostics(diags []core.Diagnostic, models []string) []core.Diagnostic {
	filtered := make([]core.Diagnostic, 0, len(diags))
	if len(models) == 0 {
		return append(filtered, diags...)
	}
	selected := make(map[string]bool, len(models))
	for _, name := range models {
		selected[name] = true
	}
	for _, d := range diags {
		if selected[d.Model] {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

func analyzeOutput(res *engine.Result, diags []core.Diagnostic, models []string) output.AnalyzeOutput {
	counts := core.CountBySeverity(diags)

	var failures []output.AnalyzeFailure
	selected := make(map[string]bool, len(models))
	for _, name := range models {
		selected[name] = true
	}
	for name, err := range res.Failures {
		if len(models) > 0 && !selected[name] {
			continue
		}
		failures = append(failures, output.AnalyzeFailure{Model: name, Message: err.Error()})
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Model < failures[j].Model })

	return output.AnalyzeOutput{
		RunID:       res.RunID,
		Models:      res.Models,
		Sources:     res.Sources,
		Errors:      counts[core.SeverityError],
		Warnings:    counts[core.SeverityWarning],
		Diagnostics: diags,
		Failures:    failures,
		Cache: output.CacheStats{
			RenderHits:    res.RenderHits,
			RenderMisses:  res.RenderMisses,
			LineageHits:   res.LineageHits,
			LineageMisses: res.LineageMisses,
		},
		Duration: res.Duration.Round(time.Millisecond).String(),
	}
}

// renderDiagnostics prints diagnostics grouped by model, followed by a
// summary and cache statistics.
func renderDiagnostics(r *output.Renderer, res *engine.Result, diags []core.Diagnostic, filtered bool) {
	if len(diags) == 0 {
		r.Success("No issues found")
		r.Println(r.Styles().Muted.Render(res.Summary()))
		r.Println(r.Styles().Muted.Render(cacheLine(res)))
		return
	}

	byModel := map[string][]core.Diagnostic{}
	var order []string
	for _, d := range diags {
		if _, seen := byModel[d.Model]; !seen {
			order = append(order, d.Model)
		}
		byModel[d.Model] = append(byModel[d.Model], d)
	}

	for _, model := range order {
		r.Println(r.Styles().ModelName.Render(model))
		for _, d := range byModel[model] {
			col := d.Column
			if col == "" {
				col = "-"
			}
			r.Printf("  %s  %s  %s  %s\n",
				r.Styles().Muted.Render(fmt.Sprintf("%-20s", col)),
				severityStyle(r, d.Severity),
				r.Styles().Bold.Render(d.Code),
				d.Message,
			)
		}
		r.Println("")
	}

	counts := core.CountBySeverity(diags)
	parts := []string{fmt.Sprintf("%d issues", len(diags))}
	if counts[core.SeverityError] > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", counts[core.SeverityError]))
	}
	if counts[core.SeverityWarning] > 0 {
		parts = append(parts, fmt.Sprintf("%d warnings", counts[core.SeverityWarning]))
	}
	if counts[core.SeverityInfo] > 0 {
		parts = append(parts, fmt.Sprintf("%d info", counts[core.SeverityInfo]))
	}
	scope := fmt.Sprintf("%d models", res.Models)
	if filtered {
		scope = fmt.Sprintf("%d selected models", len(byModel))
	}
	r.Printf("Summary: %s across %s in %s\n",
		strings.Join(parts, ", "), scope, res.Duration.Round(time.Millisecond))
	r.Println(r.Styles().Muted.Render(cacheLine(res)))
}

func cacheLine(res *engine.Result) string {
	return fmt.Sprintf("Cache: %d render hits, %d misses | %d lineage hits, %d misses",
		res.RenderHits, res.RenderMisses, res.LineageHits, res.LineageMisses)
}

func severityStyle(r *output.Renderer, sev core.Severity) string {
	switch sev {
	case core.SeverityError:
		return r.Styles().Error.Render("error  ")
	case core.SeverityWarning:
		return r.Styles().Warning.Render("warning")
	case core.SeverityInfo:
		return r.Styles().Info.Render("info   ")
	default:
		return r.Styles().Muted.Render("unknown")
	}
}

// watchAndAnalyze re-runs the analysis whenever a model, macro, or
// schema file changes. Analysis errors never stop the loop; only a
// signal or a watcher failure does.
func watchAndAnalyze(parent context.Context, cc *CommandContext, models []string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range []string{cc.Cfg.ModelsDir, cc.Cfg.MacrosDir} {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watchDir(watcher, dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	if err := runAnalyze(ctx, cc, models); err != nil && ctx.Err() != nil {
		return nil
	}
	cc.Renderer.Println(cc.Renderer.Styles().Muted.Render("Watching for changes... (Ctrl+C to stop)"))

	debounce := time.NewTimer(time.Hour)
	defer debounce.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// New subdirectories need watching before their files do.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchDir(watcher, event.Name)
					continue
				}
			}
			switch filepath.Ext(event.Name) {
			case ".sql", ".yml", ".yaml":
			default:
				continue
			}
			debounce.Reset(watchDebounce)
			pending = true

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cc.Logger.Warn("watcher error", "error", err)

		case <-debounce.C:
			if !pending {
				continue
			}
			pending = false
			cc.Renderer.Println("")
			_ = runAnalyze(ctx, cc, models)
			cc.Renderer.Println(cc.Renderer.Styles().Muted.Render("Watching for changes... (Ctrl+C to stop)"))
		}
	}
}

// watchDir adds root and every non-hidden subdirectory to the watcher.
func watchDir(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
