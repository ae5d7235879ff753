// Package main provides tests for the dt CLI.
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erikmunkby/dbt-toolbox/internal/cli"
	"github.com/erikmunkby/dbt-toolbox/internal/config"
)

// writeFile writes one file under dir, creating parent directories.
func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}

// writeProject lays down a minimal project in a temp directory: a
// config file with an in-memory cache, a declared source, a staging
// model over it, and a mart joining the staging model. Returns the
// project directory and the config file path.
func writeProject(t *testing.T) (projectDir, cfgPath string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "dbt_toolbox.yaml", `
dialect: duckdb
cache_path: ":memory:"
`)
	writeFile(t, dir, "models/schema.yml", `
sources:
  - name: raw
    tables:
      - name: raw_customers
        columns:
          - name: id
          - name: first_name
          - name: last_name

models:
  - name: stg_customers
    description: Cleaned customers.
    columns:
      - name: customer_id
      - name: full_name
`)
	writeFile(t, dir, "models/staging/stg_customers.sql", `
select
    id as customer_id,
    first_name || ' ' || last_name as full_name
from {{ source('raw', 'raw_customers') }}
`)
	writeFile(t, dir, "models/marts/customers.sql", `
select
    customer_id,
    full_name
from {{ ref('stg_customers') }}
`)
	t.Cleanup(config.ResetConfig)
	return dir, filepath.Join(dir, "dbt_toolbox.yaml")
}

func TestVersionCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Errorf("version command error = %v", err)
	}

	if !strings.Contains(buf.String(), "dbt-toolbox") {
		t.Errorf("version output should contain 'dbt-toolbox', got: %s", buf.String())
	}
}

func TestHelpCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Errorf("help command error = %v", err)
	}

	output := buf.String()
	for _, expected := range []string{"analyze", "build", "lineage", "dag", "render", "docs", "clean", "settings"} {
		if !strings.Contains(output, expected) {
			t.Errorf("help output should contain %q, got: %s", expected, output)
		}
	}
}

func TestAnalyzeCommand(t *testing.T) {
	_, cfgPath := writeProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"analyze", "--config", cfgPath, "--output", "table"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("analyze command error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "No issues found") {
		t.Errorf("analyze output should contain 'No issues found', got: %s", output)
	}
	if !strings.Contains(output, "Models: 2") {
		t.Errorf("analyze output should contain 'Models: 2', got: %s", output)
	}
}

func TestAnalyzeCommandJSON(t *testing.T) {
	_, cfgPath := writeProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"analyze", "--config", cfgPath, "--output", "json"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("analyze --output json command error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, `"run_id"`) {
		t.Errorf("json output should contain run_id, got: %s", output)
	}
	if !strings.Contains(output, `"models": 2`) {
		t.Errorf("json output should report 2 models, got: %s", output)
	}
	if !strings.Contains(output, `"errors": 0`) {
		t.Errorf("json output should report 0 errors, got: %s", output)
	}
}

func TestAnalyzeCommandModelFilter(t *testing.T) {
	_, cfgPath := writeProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"analyze", "stg_customers", "--config", cfgPath, "--output", "table"})

	if err := cmd.Execute(); err != nil {
		t.Errorf("analyze with model filter error = %v", err)
	}
}

func TestAnalyzeCommandUnknownModel(t *testing.T) {
	_, cfgPath := writeProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"analyze", "nope", "--config", cfgPath, "--output", "table"})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("analyze with unknown model should return an error")
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error should mention the unknown model, got: %v", err)
	}
}

func TestAnalyzeCommandReportsErrors(t *testing.T) {
	projectDir, cfgPath := writeProject(t)

	// Document a column the model never produces.
	writeFile(t, projectDir, "models/marts/schema.yml", `
models:
  - name: customers
    columns:
      - name: customer_id
      - name: loyalty_tier
`)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"analyze", "--config", cfgPath, "--output", "table"})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("analyze should exit non-zero when diagnostics contain errors")
	}

	output := buf.String()
	if !strings.Contains(output, "missing-column") {
		t.Errorf("analyze output should contain 'missing-column', got: %s", output)
	}
	if !strings.Contains(output, "loyalty_tier") {
		t.Errorf("analyze output should name the missing column, got: %s", output)
	}
}

func TestBuildCommand(t *testing.T) {
	_, cfgPath := writeProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"build", "--config", cfgPath, "--output", "table"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("build command error = %v", err)
	}

	// Nothing is cached in a fresh in-memory cache, so every model
	// needs a rebuild.
	output := buf.String()
	if !strings.Contains(output, "2 of 2 models would rebuild") {
		t.Errorf("build output should report 2 rebuilds, got: %s", output)
	}
	if !strings.Contains(output, "not-cached") {
		t.Errorf("build output should contain 'not-cached' reason, got: %s", output)
	}
}

func TestBuildCommandSelection(t *testing.T) {
	_, cfgPath := writeProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"build", "stg_customers+", "--config", cfgPath, "--output", "table"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("build with selection error = %v", err)
	}

	if !strings.Contains(buf.String(), "would rebuild") {
		t.Errorf("build output should mention rebuilds, got: %s", buf.String())
	}
}

func TestDAGCommand(t *testing.T) {
	_, cfgPath := writeProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"dag", "--config", cfgPath, "--output", "table"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("dag command error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Level 0:") {
		t.Errorf("dag output should contain execution levels, got: %s", output)
	}
	if !strings.Contains(output, "Total: 2 nodes, 1 dependencies") {
		t.Errorf("dag output should summarize the graph, got: %s", output)
	}
}

func TestRenderCommand(t *testing.T) {
	_, cfgPath := writeProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"render", "stg_customers", "--config", cfgPath, "--output", "table"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("render command error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "customer_id") {
		t.Errorf("render output should contain the rendered SQL, got: %s", output)
	}
	if strings.Contains(output, "{{") {
		t.Errorf("render output should not contain template syntax, got: %s", output)
	}
}

func TestRenderCommandUnknownModel(t *testing.T) {
	_, cfgPath := writeProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"render", "nope", "--config", cfgPath})

	if err := cmd.Execute(); err == nil {
		t.Error("render with unknown model should return an error")
	}
}

func TestLineageCommand(t *testing.T) {
	_, cfgPath := writeProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"lineage", "customers", "--upstream", "--config", cfgPath, "--output", "table"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("lineage command error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Lineage for: customers") {
		t.Errorf("lineage output should contain the header, got: %s", output)
	}
	if !strings.Contains(output, "customer_id") {
		t.Errorf("lineage output should list columns, got: %s", output)
	}
	if !strings.Contains(output, "stg_customers") {
		t.Errorf("lineage output should list upstream models, got: %s", output)
	}
}

func TestSettingsCommand(t *testing.T) {
	projectDir, cfgPath := writeProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"settings", "--config", cfgPath, "--output", "table"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("settings command error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, projectDir) {
		t.Errorf("settings output should contain the project root, got: %s", output)
	}
	if !strings.Contains(output, "models_dir") {
		t.Errorf("settings output should list models_dir, got: %s", output)
	}
	// Dialect comes from the config file, so its source column says so.
	if !strings.Contains(output, "file") {
		t.Errorf("settings output should attribute file-sourced settings, got: %s", output)
	}
}

func TestSettingsCommandJSON(t *testing.T) {
	_, cfgPath := writeProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"settings", "--config", cfgPath, "--output", "json"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("settings --output json command error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, `"project_root"`) {
		t.Errorf("json output should contain project_root, got: %s", output)
	}
	if !strings.Contains(output, `"cache_path"`) {
		t.Errorf("json output should contain cache_path, got: %s", output)
	}
}

func TestCleanCommand(t *testing.T) {
	projectDir, cfgPath := writeProject(t)
	cachePath := filepath.Join(projectDir, "cache", "dt.db")

	// Populate the cache with one analysis pass, then clean it.
	cmd := cli.NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"analyze", "--config", cfgPath, "--cache-path", cachePath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("initial analyze error = %v", err)
	}
	if _, err := os.Stat(cachePath); err != nil {
		t.Fatalf("analyze should create the cache file: %v", err)
	}

	cmd2 := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd2.SetOut(buf)
	cmd2.SetErr(buf)
	cmd2.SetArgs([]string{"clean", "--config", cfgPath, "--cache-path", cachePath})

	if err := cmd2.Execute(); err != nil {
		t.Fatalf("clean command error = %v", err)
	}

	if !strings.Contains(buf.String(), "Removed cache at") {
		t.Errorf("clean output should confirm removal, got: %s", buf.String())
	}
	if _, err := os.Stat(cachePath); !os.IsNotExist(err) {
		t.Errorf("cache file should be gone, stat err = %v", err)
	}
}

func TestCleanCommandInMemory(t *testing.T) {
	_, cfgPath := writeProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"clean", "--config", cfgPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("clean command error = %v", err)
	}

	if !strings.Contains(buf.String(), "in-memory") {
		t.Errorf("clean output should explain there is nothing to remove, got: %s", buf.String())
	}
}

func TestDocsGenerateCommand(t *testing.T) {
	_, cfgPath := writeProject(t)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"docs", "generate", "--config", cfgPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("docs generate command error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "models:") {
		t.Errorf("docs generate output should be schema YAML, got: %s", output)
	}
	for _, expected := range []string{"stg_customers", "customers", "full_name"} {
		if !strings.Contains(output, expected) {
			t.Errorf("docs generate output should contain %q, got: %s", expected, output)
		}
	}
	// The existing description carries over into the generated YAML.
	if !strings.Contains(output, "Cleaned customers.") {
		t.Errorf("docs generate output should keep descriptions, got: %s", output)
	}
}

func TestCompletionCommand(t *testing.T) {
	shells := []string{"bash", "zsh", "fish", "powershell"}

	for _, shell := range shells {
		t.Run(shell, func(t *testing.T) {
			cmd := cli.NewRootCmd()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs([]string{"completion", shell})

			if err := cmd.Execute(); err != nil {
				t.Errorf("completion %s command error = %v", shell, err)
			}
			if buf.Len() == 0 {
				t.Errorf("completion %s should produce a script", shell)
			}
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"unknown-command"})

	if err := cmd.Execute(); err == nil {
		t.Error("unknown command should return an error")
	}
}
