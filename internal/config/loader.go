package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "dbt_toolbox.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "dbt_toolbox.yml"

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "DBT_TOOLBOX_"

// maxUpwardSearchLevels limits how far up the directory tree to search
// for a config file.
const maxUpwardSearchLevels = 10

// configExistsIn checks if a config file exists in the directory.
func configExistsIn(dir string) bool {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// findConfigFileIn returns the config file path inside dir, or "".
func findConfigFileIn(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRootUpward searches upward from startDir for a config
// file. Returns empty string if none is found within
// maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir unless it
// is empty, the in-memory cache marker, or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Load loads configuration from file, environment variables, and
// flags. Precedence (highest to lowest): flags > env vars > config
// file > defaults. cfgFile may name a config file explicitly;
// otherwise dbt_toolbox.yaml is searched upward from the working
// directory, and its directory becomes the project root.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	projectRoot, configFileUsed := locate(cfgFile)

	// Paths given as flags are relative to the working directory, not
	// the project root, so pin them down before the layered load.
	flagPaths := map[string]string{}
	if flags != nil {
		for _, name := range []string{"models-dir", "macros-dir", "cache-path"} {
			if !flags.Changed(name) {
				continue
			}
			v, _ := flags.GetString(name)
			if v == "" || v == ":memory:" {
				flagPaths[name] = v
				continue
			}
			if abs, err := filepath.Abs(v); err == nil {
				flagPaths[name] = abs
			} else {
				flagPaths[name] = filepath.Clean(v)
			}
		}
	}

	k := koanf.New(".")
	origins := map[string]Origin{}

	merge := func(layer *koanf.Koanf, src Source, location func(topKey string) string) error {
		if err := k.Merge(layer); err != nil {
			return err
		}
		for _, key := range layer.Keys() {
			top := key
			if i := strings.Index(key, "."); i >= 0 {
				top = key[:i]
			}
			origins[top] = Origin{Source: src, Location: location(top)}
		}
		return nil
	}

	// 1. Defaults.
	defaults := koanf.New(".")
	if err := defaults.Load(confmap.Provider(map[string]interface{}{
		"dialect":                DefaultDialect,
		"models_dir":             DefaultModelsDir,
		"macros_dir":             DefaultMacrosDir,
		"cache_path":             DefaultCachePath,
		"macro_depth_limit":      DefaultMacroDepthLimit,
		"threads":                DefaultThreads,
		"cache_validity_minutes": DefaultCacheValidityMinutes,
		"verbose":                false,
		"output":                 DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := merge(defaults, SourceDefault, func(string) string { return "" }); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file.
	if configFileUsed != "" {
		fileLayer := koanf.New(".")
		if err := fileLayer.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
		if err := merge(fileLayer, SourceFile, func(string) string { return configFileUsed }); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Environment variables. DBT_TOOLBOX_MODELS_DIR -> models_dir;
	// DBT_TOOLBOX_VARS_REGION -> vars.region.
	envLayer := koanf.New(".")
	if err := envLayer.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if rest, ok := strings.CutPrefix(key, "vars_"); ok {
			return "vars." + rest
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}
	if err := merge(envLayer, SourceEnv, func(top string) string {
		return EnvPrefix + strings.ToUpper(top)
	}); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, highest priority. Only explicitly set flags that map to
	// a known setting are loaded; command flags like --watch stay out.
	if flags != nil {
		known := make(map[string]bool, len(settingKeys))
		for _, key := range settingKeys {
			known[key] = true
		}
		flagLayer := koanf.New(".")
		if err := flagLayer.Load(posflag.ProviderWithFlag(flags, ".", nil, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !known[key] {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
		if err := merge(flagLayer, SourceFlag, func(top string) string {
			return "--" + strings.ReplaceAll(top, "_", "-")
		}); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Decode. Unknown keys in the file or environment are rejected
	// rather than silently dropped.
	var cfg Config
	dec := &mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "koanf",
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", DecoderConfig: dec}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Resolve paths against the project root, except flag-given
	// paths which were already pinned to the working directory.
	cfg.ProjectRoot = projectRoot
	cfg.ConfigFile = configFileUsed
	if p, ok := flagPaths["models-dir"]; ok {
		cfg.ModelsDir = p
	} else {
		cfg.ModelsDir = resolvePathRelativeTo(cfg.ModelsDir, projectRoot)
	}
	if p, ok := flagPaths["macros-dir"]; ok {
		cfg.MacrosDir = p
	} else {
		cfg.MacrosDir = resolvePathRelativeTo(cfg.MacrosDir, projectRoot)
	}
	if p, ok := flagPaths["cache-path"]; ok {
		cfg.CachePath = p
	} else {
		cfg.CachePath = resolvePathRelativeTo(cfg.CachePath, projectRoot)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.origins = origins
	cfg.values = map[string]any{
		"dialect":                cfg.Dialect,
		"models_dir":             cfg.ModelsDir,
		"macros_dir":             cfg.MacrosDir,
		"cache_path":             cfg.CachePath,
		"macro_depth_limit":      cfg.MacroDepthLimit,
		"threads":                cfg.Threads,
		"cache_validity_minutes": cfg.CacheValidityMinutes,
		"vars":                   cfg.Vars,
		"verbose":                cfg.Verbose,
		"output":                 cfg.Output,
	}

	currentConfig = &cfg
	return &cfg, nil
}

// locate determines the project root and the config file to load.
func locate(cfgFile string) (projectRoot, configFileUsed string) {
	if cfgFile != "" {
		configFileUsed = cfgFile
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs), configFileUsed
		}
		return filepath.Dir(cfgFile), configFileUsed
	}

	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		cwd = "."
	}
	if root := findProjectRootUpward(cwd); root != "" {
		return root, findConfigFileIn(root)
	}
	return cwd, ""
}
