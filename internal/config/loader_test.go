package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "duckdb", cfg.Dialect)
	assert.Equal(t, "models", filepath.Base(cfg.ModelsDir))
	assert.True(t, filepath.IsAbs(cfg.ModelsDir))
	assert.Equal(t, "macros", filepath.Base(cfg.MacrosDir))
	assert.Equal(t, "cache.db", filepath.Base(cfg.CachePath))
	assert.Equal(t, 50, cfg.MacroDepthLimit)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, 1440, cfg.CacheValidityMinutes)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, "auto", cfg.Output)
	assert.Empty(t, cfg.ConfigFile)

	assert.Equal(t, Origin{Source: SourceDefault}, cfg.Origin("dialect"))
	assert.Len(t, cfg.Settings(), 10)
}

func TestLoad_ConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := writeConfig(t, tmpDir, `dialect: postgres
models_dir: transforms
vars:
  region: eu
`)

	cfg, err := Load(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Dialect)
	assert.Equal(t, filepath.Join(tmpDir, "transforms"), cfg.ModelsDir)
	assert.Equal(t, filepath.Join(tmpDir, "macros"), cfg.MacrosDir)
	assert.Equal(t, tmpDir, cfg.ProjectRoot)
	assert.Equal(t, cfgPath, cfg.ConfigFile)
	assert.Equal(t, "eu", cfg.Vars["region"])

	assert.Equal(t, Origin{Source: SourceFile, Location: cfgPath}, cfg.Origin("dialect"))
	assert.Equal(t, Origin{Source: SourceDefault}, cfg.Origin("threads"))
}

func TestLoad_FlagPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := writeConfig(t, tmpDir, "models_dir: from_file\n")

	require.NoError(t, os.Setenv("DBT_TOOLBOX_MODELS_DIR", "from_env"))
	defer func() { _ = os.Unsetenv("DBT_TOOLBOX_MODELS_DIR") }()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("models-dir", "", "models directory")
	flags.Bool("watch", false, "re-run on changes")
	require.NoError(t, flags.Set("models-dir", "from_flag"))
	require.NoError(t, flags.Set("watch", "true"))

	cfg, err := Load(cfgPath, flags)
	require.NoError(t, err)

	// Flag wins, pinned to the working directory.
	assert.Equal(t, "from_flag", filepath.Base(cfg.ModelsDir))
	assert.True(t, filepath.IsAbs(cfg.ModelsDir))
	assert.Equal(t, Origin{Source: SourceFlag, Location: "--models-dir"}, cfg.Origin("models_dir"))
}

func TestLoad_EnvPrecedenceOverFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := writeConfig(t, tmpDir, "models_dir: from_file\n")

	require.NoError(t, os.Setenv("DBT_TOOLBOX_MODELS_DIR", "from_env"))
	defer func() { _ = os.Unsetenv("DBT_TOOLBOX_MODELS_DIR") }()

	cfg, err := Load(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(tmpDir, "from_env"), cfg.ModelsDir)
	assert.Equal(t, Origin{Source: SourceEnv, Location: "DBT_TOOLBOX_MODELS_DIR"}, cfg.Origin("models_dir"))
}

func TestLoad_UnsetFlagFallsBackToEnv(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := writeConfig(t, tmpDir, "models_dir: from_file\n")

	require.NoError(t, os.Setenv("DBT_TOOLBOX_MODELS_DIR", "from_env"))
	defer func() { _ = os.Unsetenv("DBT_TOOLBOX_MODELS_DIR") }()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("models-dir", "", "models directory")

	cfg, err := Load(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "from_env", filepath.Base(cfg.ModelsDir))
}

func TestLoad_EnvCoercion(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := writeConfig(t, tmpDir, "dialect: duckdb\n")

	require.NoError(t, os.Setenv("DBT_TOOLBOX_THREADS", "8"))
	require.NoError(t, os.Setenv("DBT_TOOLBOX_VERBOSE", "true"))
	require.NoError(t, os.Setenv("DBT_TOOLBOX_VARS_REGION", "eu"))
	defer func() {
		_ = os.Unsetenv("DBT_TOOLBOX_THREADS")
		_ = os.Unsetenv("DBT_TOOLBOX_VERBOSE")
		_ = os.Unsetenv("DBT_TOOLBOX_VARS_REGION")
	}()

	cfg, err := Load(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Threads)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "eu", cfg.Vars["region"])
}

func TestLoad_VarsFromFlags(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := writeConfig(t, tmpDir, "dialect: duckdb\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringToString("vars", nil, "template variables")
	require.NoError(t, flags.Set("vars", "env=prod"))

	cfg, err := Load(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Vars["env"])
	assert.Equal(t, SourceFlag, cfg.Origin("vars").Source)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := writeConfig(t, tmpDir, "modles_dir: typo\n")

	_, err := Load(cfgPath, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to decode config")
	assert.Contains(t, err.Error(), "modles_dir")
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{
			name:      "unknown dialect",
			content:   "dialect: mysql\n",
			errSubstr: "unknown dialect",
		},
		{
			name:      "macro depth limit below one",
			content:   "macro_depth_limit: 0\n",
			errSubstr: "macro_depth_limit must be at least 1",
		},
		{
			name:      "threads below one",
			content:   "threads: 0\n",
			errSubstr: "threads must be at least 1",
		},
		{
			name:      "negative cache validity",
			content:   "cache_validity_minutes: -5\n",
			errSubstr: "cache_validity_minutes must not be negative",
		},
		{
			name:      "bad output format",
			content:   "output: xml\n",
			errSubstr: `invalid output format "xml"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := writeConfig(t, t.TempDir(), tt.content)
			_, err := Load(cfgPath, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestLoad_UpwardSearch(t *testing.T) {
	projectDir := t.TempDir()
	cfgPath := writeConfig(t, projectDir, "dialect: snowflake\n")
	nested := filepath.Join(projectDir, "models", "staging")
	require.NoError(t, os.MkdirAll(nested, 0755))
	t.Chdir(nested)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, projectDir, cfg.ProjectRoot)
	assert.Equal(t, cfgPath, cfg.ConfigFile)
	assert.Equal(t, "snowflake", cfg.Dialect)
	assert.Equal(t, filepath.Join(projectDir, "models"), cfg.ModelsDir)
}

func TestLoad_MemoryCachePath(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := writeConfig(t, tmpDir, "cache_path: \":memory:\"\n")

	cfg, err := Load(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, ":memory:", cfg.CachePath)
}

func TestLoad_MissingExplicitConfig(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_Settings(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := writeConfig(t, tmpDir, "dialect: snowflake\n")

	require.NoError(t, os.Setenv("DBT_TOOLBOX_THREADS", "8"))
	defer func() { _ = os.Unsetenv("DBT_TOOLBOX_THREADS") }()

	cfg, err := Load(cfgPath, nil)
	require.NoError(t, err)

	settings := cfg.Settings()
	require.Len(t, settings, 10)

	byKey := make(map[string]Setting, len(settings))
	for _, s := range settings {
		byKey[s.Key] = s
	}
	assert.Equal(t, Setting{Key: "dialect", Value: "snowflake", Source: SourceFile, Location: cfgPath}, byKey["dialect"])
	assert.Equal(t, Setting{Key: "threads", Value: 8, Source: SourceEnv, Location: "DBT_TOOLBOX_THREADS"}, byKey["threads"])
	assert.Equal(t, SourceDefault, byKey["output"].Source)

	// Sorted by key.
	assert.Equal(t, "cache_path", settings[0].Key)
	assert.Equal(t, "verbose", settings[9].Key)
}
