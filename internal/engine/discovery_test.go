package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover_Project(t *testing.T) {
	dir := t.TempDir()
	writeJaffleProject(t, dir)
	writeProjectFile(t, dir, "macros/cents_to_dollars.sql",
		`{% macro cents_to_dollars(col) %}{{ col }} / 100.0{% endmacro %}`)

	e := newTestEngine(t, dir, "")
	result, err := e.Discover()
	require.NoError(t, err)

	assert.False(t, result.HasErrors(), "unexpected discovery errors: %v", result.Errors)
	assert.Equal(t, 2, result.Models)
	assert.Equal(t, 1, result.Sources)
	assert.Equal(t, 1, result.Macros)
	assert.Equal(t, 1, result.SchemaFiles)

	stg, ok := e.registry.Model("stg_customers")
	require.True(t, ok)
	require.NotNil(t, stg.Docs, "schema docs should attach to the model")
	assert.Equal(t, []string{"customer_id", "full_name"}, stg.Docs.ColumnNames())

	src, ok := e.registry.Source("raw.raw_customers")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "first_name", "last_name"}, src.ColumnNames())
}

func TestDiscover_DuplicateModelName(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "models/staging/orders.sql", "select 1 as a")
	writeProjectFile(t, dir, "models/marts/orders.sql", "select 2 as b")

	e := newTestEngine(t, dir, "")
	result, err := e.Discover()
	require.NoError(t, err)

	assert.Equal(t, 1, result.Models)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "duplicate", result.Errors[0].Type)
	assert.Contains(t, result.Errors[0].Message, `model "orders" already defined`)
}

func TestDiscover_DocsForUnknownModel(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "models/orders.sql", "select 1 as a")
	writeProjectFile(t, dir, "models/schema.yml", `
models:
  - name: ordes
    columns:
      - name: a
`)

	e := newTestEngine(t, dir, "")
	result, err := e.Discover()
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "docs", result.Errors[0].Type)
	assert.Contains(t, result.Errors[0].Message, `unknown model "ordes"`)
}

func TestDiscover_InvalidSchemaFileIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "models/orders.sql", "select 1 as a")
	writeProjectFile(t, dir, "models/broken.yml", "models: [\n")

	e := newTestEngine(t, dir, "")
	result, err := e.Discover()
	require.NoError(t, err)

	assert.Equal(t, 1, result.Models, "the model should still load")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "parse", result.Errors[0].Type)
}

func TestDiscover_MissingModelsDir(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), "")
	_, err := e.Discover()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model discovery failed")
}

func TestDiscover_MacroLoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "models/orders.sql", "select 1 as a")
	writeProjectFile(t, dir, "macros/good.sql",
		`{% macro good() %}1{% endmacro %}`)
	writeProjectFile(t, dir, "macros/broken.sql",
		`{% macro broken() %}no closing tag`)

	e := newTestEngine(t, dir, "")
	result, err := e.Discover()
	require.NoError(t, err)

	assert.Equal(t, 1, result.Macros, "the good macro should still load")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "macro", result.Errors[0].Type)
}

func TestDiscover_RerunDropsDeletedState(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "models/keep.sql", "select 1 as a")
	gone := writeProjectFile(t, dir, "models/gone.sql", "select 2 as b")

	e := newTestEngine(t, dir, "")
	result, err := e.Discover()
	require.NoError(t, err)
	assert.Equal(t, 2, result.Models)

	require.NoError(t, removeFile(gone))
	result, err = e.Discover()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Models)
	_, ok := e.registry.Model("gone")
	assert.False(t, ok, "deleted model should not survive rediscovery")
}
