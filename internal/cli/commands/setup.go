// Package commands implements the dt subcommands.
package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/erikmunkby/dbt-toolbox/internal/cli/output"
	"github.com/erikmunkby/dbt-toolbox/internal/config"
	"github.com/erikmunkby/dbt-toolbox/internal/engine"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called
// (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	eng, err := createEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output))

	cleanup := func() {
		_ = eng.Close()
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Engine:   eng,
		Renderer: r,
	}, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an
// engine, for commands that never open the cache.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()

	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
	}
}

// Helper functions shared across commands

// getConfig returns the current configuration. It uses
// config.GetCurrentConfig() if available, otherwise falls back to
// environment variables with defaults.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	return &config.Config{
		Dialect:              getEnvOrDefault("DBT_TOOLBOX_DIALECT", config.DefaultDialect),
		ModelsDir:            getEnvOrDefault("DBT_TOOLBOX_MODELS_DIR", config.DefaultModelsDir),
		MacrosDir:            getEnvOrDefault("DBT_TOOLBOX_MACROS_DIR", config.DefaultMacrosDir),
		CachePath:            getEnvOrDefault("DBT_TOOLBOX_CACHE_PATH", config.DefaultCachePath),
		MacroDepthLimit:      config.DefaultMacroDepthLimit,
		Threads:              config.DefaultThreads,
		CacheValidityMinutes: config.DefaultCacheValidityMinutes,
		Verbose:              os.Getenv("DBT_TOOLBOX_VERBOSE") == "true",
		Output:               getEnvOrDefault("DBT_TOOLBOX_OUTPUT", config.DefaultOutput),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	// Ensure the cache directory exists
	if cfg.CachePath != "" && cfg.CachePath != ":memory:" {
		cacheDir := filepath.Dir(cfg.CachePath)
		if cacheDir != "." && cacheDir != "" {
			if err := os.MkdirAll(cacheDir, 0750); err != nil {
				return nil, err
			}
		}
	}

	return engine.New(engine.Config{
		ModelsDir:            cfg.ModelsDir,
		MacrosDir:            cfg.MacrosDir,
		CachePath:            cfg.CachePath,
		Dialect:              cfg.Dialect,
		Vars:                 cfg.Vars,
		MacroDepthLimit:      cfg.MacroDepthLimit,
		Threads:              cfg.Threads,
		CacheValidityMinutes: cfg.CacheValidityMinutes,
		Logger:               logger,
	})
}
