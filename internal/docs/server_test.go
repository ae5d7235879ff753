package docs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	stgOrders := &core.Model{
		Name:     "stg_orders",
		FilePath: "models/stg_orders.sql",
		Columns: []core.Column{
			{Name: "order_id", Index: 0},
			{Name: "amount", Index: 1},
		},
	}
	orders := &core.Model{
		Name:         "orders",
		FilePath:     "models/orders.sql",
		RenderedSQL:  "select order_id, amount from stg_orders",
		Materialized: "table",
		Refs: []core.Reference{
			{Kind: core.RefModel, Name: "stg_orders"},
			{Kind: core.RefSource, Name: "raw.payments"},
		},
		MacrosUsed: []string{"money"},
		Docs: &core.ModelDocs{
			Description: "One row per order.",
			Columns:     []core.ColumnDoc{{Name: "order_id", Description: "Primary key."}},
		},
		Columns: []core.Column{
			{Name: "order_id", Index: 0, Provenance: []core.Provenance{{Relation: "stg_orders", Column: "order_id"}}},
			{Name: "amount", Index: 1, Provenance: []core.Provenance{{Relation: "stg_orders", Column: "amount"}}},
		},
		Fingerprint: "fp-orders",
	}
	payments := &core.SourceTable{
		Source:  "raw",
		Name:    "payments",
		Columns: []core.ColumnDoc{{Name: "id"}},
	}

	project := core.NewProject(
		[]*core.Model{orders, stgOrders},
		[]*core.SourceTable{payments},
		"macro-hash", "duckdb",
	)
	diags := []core.Diagnostic{
		{Code: core.CodeMissingColumn, Severity: core.SeverityError, Model: "orders", Column: "discount", Message: "column not produced upstream"},
		{Code: core.CodeDocDrift, Severity: core.SeverityWarning, Model: "orders", Column: "legacy", Message: "documented column is not produced"},
	}

	return NewServer(ServerConfig{Project: project, Diagnostics: diags, Port: 0, Logger: nil})
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_ModelsEndpoint(t *testing.T) {
	s := setupTestServer(t)

	rec := get(t, s, "/api/models")
	require.Equal(t, http.StatusOK, rec.Code)

	var models []modelSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
	require.Len(t, models, 2)

	assert.Equal(t, "orders", models[0].Name)
	assert.Equal(t, 2, models[0].Columns)
	assert.True(t, models[0].Documented)
	assert.Equal(t, "table", models[0].Materialized)

	assert.Equal(t, "stg_orders", models[1].Name)
	assert.False(t, models[1].Documented)
}

func TestServer_ModelEndpoint(t *testing.T) {
	s := setupTestServer(t)

	rec := get(t, s, "/api/models/orders")
	require.Equal(t, http.StatusOK, rec.Code)

	var detail modelDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "orders", detail.Name)
	assert.Equal(t, "One row per order.", detail.Description)
	assert.Equal(t, []string{"stg_orders"}, detail.Parents)
	assert.Equal(t, []string{"raw.payments"}, detail.Sources)
	assert.Equal(t, []string{"money"}, detail.MacrosUsed)
	require.Len(t, detail.Columns, 2)
	assert.Equal(t, "order_id", detail.Columns[0].Name)
	assert.Equal(t, "fp-orders", detail.Fingerprint)
	assert.Contains(t, detail.RenderedSQL, "from stg_orders")
}

func TestServer_ModelEndpoint_NotFound(t *testing.T) {
	s := setupTestServer(t)

	rec := get(t, s, "/api/models/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "model not found: nope")
}

func TestServer_DiagnosticsEndpoint(t *testing.T) {
	s := setupTestServer(t)

	rec := get(t, s, "/api/diagnostics")
	require.Equal(t, http.StatusOK, rec.Code)

	var view diagnosticsView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Diagnostics, 2)
	assert.Equal(t, 1, view.Errors)
	assert.Equal(t, 1, view.Warnings)
	assert.Equal(t, 0, view.Infos)
	assert.Equal(t, core.SeverityError, view.Diagnostics[0].Severity)
	assert.Equal(t, core.CodeMissingColumn, view.Diagnostics[0].Code)
}

func TestServer_DiagnosticsEndpoint_Empty(t *testing.T) {
	project := core.NewProject(nil, nil, "", "duckdb")
	s := NewServer(ServerConfig{Project: project})

	rec := get(t, s, "/api/diagnostics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"diagnostics":[]`)
}

func TestServer_Index(t *testing.T) {
	s := setupTestServer(t)

	rec := get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, want := range []string{
		"<!doctype html>",
		"2 models",
		`href="/api/models/orders"`,
		"2 diagnostics",
	} {
		assert.Contains(t, body, want, "response should contain %q", want)
	}
}
