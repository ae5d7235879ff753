// Package config loads tool configuration from dbt_toolbox.yaml, the
// DBT_TOOLBOX_ environment, and command-line flags, tracking which
// layer every setting came from.
package config

import (
	"fmt"

	"github.com/erikmunkby/dbt-toolbox/pkg/dialect"
)

// Default configuration values.
const (
	DefaultDialect              = "duckdb"
	DefaultModelsDir            = "models"
	DefaultMacrosDir            = "macros"
	DefaultCachePath            = ".dbt_toolbox/cache.db"
	DefaultMacroDepthLimit      = 50
	DefaultThreads              = 4
	DefaultCacheValidityMinutes = 1440
	DefaultOutput               = "auto" // auto-detect: TTY=table, non-TTY=json
)

// Config holds the resolved tool configuration.
type Config struct {
	Dialect              string         `koanf:"dialect"`
	ModelsDir            string         `koanf:"models_dir"`
	MacrosDir            string         `koanf:"macros_dir"`
	CachePath            string         `koanf:"cache_path"`
	MacroDepthLimit      int            `koanf:"macro_depth_limit"`
	Threads              int            `koanf:"threads"`
	CacheValidityMinutes int            `koanf:"cache_validity_minutes"`
	Vars                 map[string]any `koanf:"vars"`
	Verbose              bool           `koanf:"verbose"`
	Output               string         `koanf:"output"`

	// ProjectRoot is the directory relative paths resolve against: the
	// directory holding dbt_toolbox.yaml, or the working directory when
	// no config file exists.
	ProjectRoot string `koanf:"-"`
	// ConfigFile is the path of the loaded config file, if any.
	ConfigFile string `koanf:"-"`

	origins map[string]Origin
	values  map[string]any
}

// Source identifies the configuration layer a setting's value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// Origin records the winning layer for one setting and where in that
// layer it was set: the config file path, the environment variable
// name, or the flag name.
type Origin struct {
	Source   Source
	Location string
}

// Setting is one resolved configuration entry, for display.
type Setting struct {
	Key      string
	Value    any
	Source   Source
	Location string
}

// settingKeys lists every known top-level key, sorted.
var settingKeys = []string{
	"cache_path",
	"cache_validity_minutes",
	"dialect",
	"macro_depth_limit",
	"macros_dir",
	"models_dir",
	"output",
	"threads",
	"vars",
	"verbose",
}

// Origin returns where the effective value of a key came from.
func (c *Config) Origin(key string) Origin {
	if o, ok := c.origins[key]; ok {
		return o
	}
	return Origin{Source: SourceDefault}
}

// Settings returns every known setting with its effective value and
// origin, sorted by key.
func (c *Config) Settings() []Setting {
	out := make([]Setting, 0, len(settingKeys))
	for _, key := range settingKeys {
		o := c.Origin(key)
		out = append(out, Setting{
			Key:      key,
			Value:    c.values[key],
			Source:   o.Source,
			Location: o.Location,
		})
	}
	return out
}

// Validate checks value constraints. Directory existence is checked by
// the commands that need the directories, not here.
func (c *Config) Validate() error {
	if _, err := dialect.Lookup(c.Dialect); err != nil {
		return err
	}
	if c.ModelsDir == "" {
		return fmt.Errorf("models_dir is required")
	}
	if c.MacroDepthLimit < 1 {
		return fmt.Errorf("macro_depth_limit must be at least 1, got %d", c.MacroDepthLimit)
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", c.Threads)
	}
	if c.CacheValidityMinutes < 0 {
		return fmt.Errorf("cache_validity_minutes must not be negative, got %d", c.CacheValidityMinutes)
	}
	switch c.Output {
	case "auto", "table", "json":
	default:
		return fmt.Errorf("invalid output format %q (expected auto, table, or json)", c.Output)
	}
	return nil
}
