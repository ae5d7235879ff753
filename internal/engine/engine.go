// Package engine orchestrates the analysis pipeline: project
// discovery, template rendering, dependency graph construction,
// column resolution, and validation, with content-addressed caching
// between runs.
package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/erikmunkby/dbt-toolbox/internal/dag"
	"github.com/erikmunkby/dbt-toolbox/internal/macro"
	"github.com/erikmunkby/dbt-toolbox/internal/registry"
	"github.com/erikmunkby/dbt-toolbox/internal/state"
	"github.com/erikmunkby/dbt-toolbox/internal/template"
	"github.com/erikmunkby/dbt-toolbox/pkg/core"
	"github.com/erikmunkby/dbt-toolbox/pkg/dialect"
)

// Engine drives the analysis pipeline over one project.
type Engine struct {
	modelsDir            string
	macrosDir            string
	vars                 map[string]any
	macroDepthLimit      int
	threads              int
	cacheValidityMinutes int

	dialect *dialect.Dialect
	store   *state.Store
	logger  *slog.Logger

	// Populated by Discover and the pipeline steps. envHash folds the
	// macro set hash with the project variables, covering everything
	// besides raw text that rendering depends on.
	macros   *macro.Set
	envHash  string
	registry *registry.Registry
	graph    *dag.Graph
	project  *core.Project
}

// Config holds engine configuration.
type Config struct {
	// ModelsDir is the path to the models directory.
	ModelsDir string
	// MacrosDir is the path to the macros directory (optional).
	MacrosDir string
	// CachePath is the path to the SQLite cache database.
	CachePath string
	// Dialect names the SQL dialect models are written in.
	Dialect string
	// Vars holds project variables for var() directives.
	Vars map[string]any
	// MacroDepthLimit bounds macro expansion depth per model.
	MacroDepthLimit int
	// Threads bounds render and resolve parallelism.
	Threads int
	// CacheValidityMinutes is the age after which a model's cached
	// analysis counts as stale regardless of fingerprints. Zero
	// disables the age check.
	CacheValidityMinutes int
	// Logger is the structured logger (optional, discards if nil).
	Logger *slog.Logger
}

// New creates an engine and opens its cache store.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initializing engine",
		"models_dir", cfg.ModelsDir, "dialect", cfg.Dialect)

	d := dialect.Default()
	if cfg.Dialect != "" {
		var err error
		d, err = dialect.Lookup(cfg.Dialect)
		if err != nil {
			return nil, err
		}
	}

	store := state.New(logger)
	if err := store.Open(cfg.CachePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate state store: %w", err)
	}

	depth := cfg.MacroDepthLimit
	if depth <= 0 {
		depth = template.DefaultMaxDepth
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = 1
	}

	return &Engine{
		modelsDir:            cfg.ModelsDir,
		macrosDir:            cfg.MacrosDir,
		vars:                 cfg.Vars,
		macroDepthLimit:      depth,
		threads:              threads,
		cacheValidityMinutes: cfg.CacheValidityMinutes,
		dialect:              d,
		store:                store,
		logger:               logger,
	}, nil
}

// Close releases the cache store.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// Project returns the project assembled by the last pipeline run, or
// nil before any run.
func (e *Engine) Project() *core.Project {
	return e.project
}

// Graph returns the dependency graph of the last pipeline run, or nil
// before any run.
func (e *Engine) Graph() *dag.Graph {
	return e.graph
}

// Store returns the cache store.
func (e *Engine) Store() *state.Store {
	return e.store
}

// Dialect returns the engine's SQL dialect.
func (e *Engine) Dialect() *dialect.Dialect {
	return e.dialect
}

// varsHash digests project variables into a stable string. Keys are
// sorted so map order never changes the digest.
func varsHash(vars map[string]any) string {
	if len(vars) == 0 {
		return ""
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, vars[k]))
	}
	return core.HashStrings(parts)
}
