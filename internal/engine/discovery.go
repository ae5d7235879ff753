package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/erikmunkby/dbt-toolbox/internal/docs"
	"github.com/erikmunkby/dbt-toolbox/internal/macro"
	"github.com/erikmunkby/dbt-toolbox/internal/registry"
	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

// DiscoveryResult contains statistics about one discovery pass.
type DiscoveryResult struct {
	Models      int `json:"models"`
	Sources     int `json:"sources"`
	Macros      int `json:"macros"`
	SchemaFiles int `json:"schema_files"`

	// Errors lists non-fatal per-file problems.
	Errors []DiscoveryError `json:"errors,omitempty"`

	Duration time.Duration `json:"duration"`
}

// DiscoveryError represents a non-fatal error during discovery.
type DiscoveryError struct {
	Path    string `json:"path"`
	Type    string `json:"type"` // "read", "parse", "duplicate", "docs", "macro"
	Message string `json:"message"`
}

// HasErrors returns true if any errors occurred.
func (r *DiscoveryResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Summary returns a human-readable summary.
func (r *DiscoveryResult) Summary() string {
	return fmt.Sprintf("Models: %d | Sources: %d | Macros: %d | Errors: %d | Duration: %s",
		r.Models, r.Sources, r.Macros, len(r.Errors), r.Duration.Round(time.Millisecond))
}

// Discover loads the project from disk: macros first (models reference
// them during rendering), then model SQL files, then schema YAML files
// with documentation and source declarations. Per-file problems are
// collected rather than aborting; only an unreadable models directory
// is fatal.
func (e *Engine) Discover() (*DiscoveryResult, error) {
	start := time.Now()
	result := &DiscoveryResult{}

	e.logger.Info("starting discovery", "models_dir", e.modelsDir)

	// Rebuild project state from scratch on every pass so deleted
	// files disappear.
	e.registry = registry.New()
	e.graph = nil
	e.project = nil

	set, err := macro.NewLoader(e.macrosDir).Load()
	if err != nil {
		return result, fmt.Errorf("macro discovery failed: %w", err)
	}
	for _, le := range set.Errors {
		result.Errors = append(result.Errors, DiscoveryError{
			Path: le.File, Type: "macro", Message: le.Message,
		})
	}
	e.macros = set
	e.registry.SetMacros(set.Macros)
	e.envHash = set.Hash
	if vh := varsHash(e.vars); vh != "" {
		e.envHash = core.HashStrings([]string{set.Hash, vh})
	}
	result.Macros = len(set.Macros)

	var sqlFiles, yamlFiles []string
	err = filepath.Walk(e.modelsDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		switch {
		case strings.HasSuffix(info.Name(), ".sql"):
			sqlFiles = append(sqlFiles, path)
		case strings.HasSuffix(info.Name(), ".yml"), strings.HasSuffix(info.Name(), ".yaml"):
			yamlFiles = append(yamlFiles, path)
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("model discovery failed: %w", err)
	}

	for _, path := range sqlFiles {
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			result.Errors = append(result.Errors, DiscoveryError{
				Path: path, Type: "read", Message: readErr.Error(),
			})
			continue
		}
		m := &core.Model{
			Name:     strings.TrimSuffix(filepath.Base(path), ".sql"),
			FilePath: path,
			RawSQL:   string(content),
		}
		if addErr := e.registry.AddModel(m); addErr != nil {
			result.Errors = append(result.Errors, DiscoveryError{
				Path: path, Type: "duplicate", Message: addErr.Error(),
			})
			continue
		}
		e.logger.Debug("discovered model", "model", m.Name, "path", path)
		result.Models++
	}

	// Schema files attach docs to already-registered models, so they
	// load after all SQL files.
	for _, path := range yamlFiles {
		frag, loadErr := docs.LoadSchemaFile(path)
		if loadErr != nil {
			result.Errors = append(result.Errors, DiscoveryError{
				Path: path, Type: "parse", Message: loadErr.Error(),
			})
			continue
		}
		result.SchemaFiles++
		for _, block := range frag.Models {
			m, ok := e.registry.Model(block.Name)
			if !ok {
				result.Errors = append(result.Errors, DiscoveryError{
					Path: path, Type: "docs",
					Message: fmt.Sprintf("documentation for unknown model %q", block.Name),
				})
				continue
			}
			if m.Docs != nil {
				result.Errors = append(result.Errors, DiscoveryError{
					Path: path, Type: "duplicate",
					Message: fmt.Sprintf("model %q already documented in %s", block.Name, m.Docs.FilePath),
				})
				continue
			}
			m.Docs = block.Docs
		}
		for _, src := range frag.Sources {
			if addErr := e.registry.AddSource(src); addErr != nil {
				result.Errors = append(result.Errors, DiscoveryError{
					Path: path, Type: "duplicate", Message: addErr.Error(),
				})
				continue
			}
			result.Sources++
		}
	}

	result.Duration = time.Since(start)

	e.logger.Info("discovery completed",
		"models", result.Models,
		"sources", result.Sources,
		"macros", result.Macros,
		"errors", len(result.Errors),
		"duration_ms", result.Duration.Milliseconds())

	return result, nil
}
