package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erikmunkby/dbt-toolbox/internal/state"
	"github.com/erikmunkby/dbt-toolbox/internal/testutil"
)

func removeFile(path string) error {
	return os.Remove(path)
}

// writeProjectFile writes one file under the project directory,
// creating intermediate directories.
func writeProjectFile(t *testing.T, projectDir, rel, content string) string {
	t.Helper()
	path := filepath.Join(projectDir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// newTestEngine opens an engine over the given project directory with
// an in-memory cache unless cachePath overrides it.
func newTestEngine(t *testing.T, projectDir, cachePath string) *Engine {
	t.Helper()
	if cachePath == "" {
		cachePath = state.MemoryPath
	}
	e, err := New(Config{
		ModelsDir:            filepath.Join(projectDir, "models"),
		MacrosDir:            filepath.Join(projectDir, "macros"),
		CachePath:            cachePath,
		Dialect:              "duckdb",
		Threads:              4,
		CacheValidityMinutes: 0,
		Logger:               testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// writeJaffleProject lays down the standard three-layer fixture: a
// declared source, a staging model over it, and a mart joining the
// staging model. The mart consumes only columns staging produces.
func writeJaffleProject(t *testing.T, projectDir string) {
	t.Helper()
	writeProjectFile(t, projectDir, "models/schema.yml", `
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
	writeProjectFile(t, projectDir, "models/staging/stg_customers.sql", `
select
    id as customer_id,
    first_name || ' ' || last_name as full_name
from {{ source('raw', 'raw_customers') }}
`)
	writeProjectFile(t, projectDir, "models/marts/customers.sql", `
select
    customer_id,
    full_name
from {{ ref('stg_customers') }}
`)
}
