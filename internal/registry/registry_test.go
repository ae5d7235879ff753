package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

func TestRegistry_AddModel(t *testing.T) {
	r := New()

	model := &core.Model{Name: "stg_customers", FilePath: "models/stg_customers.sql"}
	require.NoError(t, r.AddModel(model), "unexpected error")

	assert.Equal(t, 1, r.ModelCount(), "expected count 1")

	got, ok := r.Model("stg_customers")
	assert.True(t, ok, "expected to find model by name")
	assert.Equal(t, model, got, "expected same model instance")
}

func TestRegistry_AddModel_Duplicate(t *testing.T) {
	r := New()

	require.NoError(t, r.AddModel(&core.Model{Name: "orders", FilePath: "models/staging/orders.sql"}))

	err := r.AddModel(&core.Model{Name: "orders", FilePath: "models/marts/orders.sql"})
	require.Error(t, err, "expected duplicate error")

	dup, ok := err.(*DuplicateError)
	require.True(t, ok, "expected *DuplicateError, got %T", err)
	assert.Equal(t, "model", dup.Kind)
	assert.Equal(t, "orders", dup.Name)
	assert.Equal(t, "models/staging/orders.sql", dup.ExistingFile)
	assert.Contains(t, err.Error(), `model "orders" already defined`)
}

func TestRegistry_AddSource_Duplicate(t *testing.T) {
	r := New()

	require.NoError(t, r.AddSource(&core.SourceTable{Source: "raw", Name: "customers", FilePath: "models/sources.yml"}))

	err := r.AddSource(&core.SourceTable{Source: "raw", Name: "customers", FilePath: "models/other.yml"})
	require.Error(t, err, "expected duplicate error")

	dup, ok := err.(*DuplicateError)
	require.True(t, ok, "expected *DuplicateError, got %T", err)
	assert.Equal(t, "source", dup.Kind)
	assert.Equal(t, "raw.customers", dup.Name)
}

func TestRegistry_LookupRef(t *testing.T) {
	r := New()
	require.NoError(t, r.AddModel(&core.Model{Name: "stg_orders"}))

	tests := []struct {
		name      string
		target    string
		wantRel   string
		wantFound bool
	}{
		{
			name:      "known model",
			target:    "stg_orders",
			wantRel:   "stg_orders",
			wantFound: true,
		},
		{
			name:   "unknown model",
			target: "stg_payments",
		},
		{
			name:   "source relation is not a ref target",
			target: "raw.orders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, found := r.LookupRef(tt.target)
			assert.Equal(t, tt.wantFound, found, "LookupRef(%q) found", tt.target)
			assert.Equal(t, tt.wantRel, rel, "LookupRef(%q) relation", tt.target)
		})
	}
}

func TestRegistry_LookupSource(t *testing.T) {
	r := New()
	require.NoError(t, r.AddSource(&core.SourceTable{Source: "raw", Name: "customers"}))

	rel, found := r.LookupSource("raw", "customers")
	assert.True(t, found, "expected declared source to resolve")
	assert.Equal(t, "raw.customers", rel)

	_, found = r.LookupSource("raw", "payments")
	assert.False(t, found, "undeclared table should not resolve")

	_, found = r.LookupSource("legacy", "customers")
	assert.False(t, found, "undeclared source group should not resolve")
}

func TestRegistry_SortedListings(t *testing.T) {
	r := New()
	require.NoError(t, r.AddModel(&core.Model{Name: "orders"}))
	require.NoError(t, r.AddModel(&core.Model{Name: "customers"}))
	require.NoError(t, r.AddSource(&core.SourceTable{Source: "raw", Name: "orders"}))
	require.NoError(t, r.AddSource(&core.SourceTable{Source: "crm", Name: "accounts"}))

	var modelNames []string
	for _, m := range r.Models() {
		modelNames = append(modelNames, m.Name)
	}
	assert.Equal(t, []string{"customers", "orders"}, modelNames)

	var sourceNames []string
	for _, s := range r.Sources() {
		sourceNames = append(sourceNames, s.RelationName())
	}
	assert.Equal(t, []string{"crm.accounts", "raw.orders"}, sourceNames)
}

func TestRegistry_Dependencies(t *testing.T) {
	r := New()
	require.NoError(t, r.AddModel(&core.Model{Name: "stg_customers"}))
	require.NoError(t, r.AddModel(&core.Model{Name: "stg_orders"}))
	require.NoError(t, r.AddSource(&core.SourceTable{Source: "raw", Name: "payments"}))

	model := &core.Model{
		Name: "customer_orders",
		Refs: []core.Reference{
			{Kind: core.RefModel, Name: "stg_orders"},
			{Kind: core.RefSource, Name: "raw.payments"},
			{Kind: core.RefModel, Name: "stg_customers"},
			{Kind: core.RefModel, Name: "stg_orders"}, // duplicate
		},
	}

	parents, sources, err := r.Dependencies(model)
	require.NoError(t, err, "unexpected error")

	assert.Equal(t, []string{"stg_orders", "stg_customers"}, parents, "parents in first-use order")
	assert.Equal(t, []string{"raw.payments"}, sources)
}

func TestRegistry_Dependencies_DeletedTarget(t *testing.T) {
	r := New()
	require.NoError(t, r.AddModel(&core.Model{Name: "stg_orders"}))

	// A cached render can reference a model deleted since the cached run.
	model := &core.Model{
		Name: "customer_orders",
		Refs: []core.Reference{{Kind: core.RefModel, Name: "stg_customers"}},
	}

	_, _, err := r.Dependencies(model)
	require.Error(t, err, "expected error for missing target")

	unresolved, ok := err.(*core.UnresolvedReferenceError)
	require.True(t, ok, "expected *UnresolvedReferenceError, got %T", err)
	assert.Equal(t, "customer_orders", unresolved.Model)
	assert.Equal(t, core.RefModel, unresolved.Kind)
	assert.Equal(t, "stg_customers", unresolved.Target)
}

func TestRegistry_Macros(t *testing.T) {
	r := New()
	assert.Empty(t, r.Macros(), "expected empty macro set")

	r.SetMacros(nil)
	assert.Empty(t, r.Macros(), "nil macro set reads as empty")
}
