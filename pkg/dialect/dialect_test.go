package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		lineageType Type
		want        string
	}{
		{TypePassthrough, "passthrough"},
		{TypeAggregate, "aggregate"},
		{TypeGenerator, "generator"},
		{TypeWindow, "window"},
		{Type(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.lineageType.String())
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name  string
		norm  NormalizationStrategy
		input string
		want  string
	}{
		{"lowercase", NormLowercase, "MyColumn", "mycolumn"},
		{"uppercase", NormUppercase, "MyColumn", "MYCOLUMN"},
		{"case sensitive", NormCaseSensitive, "MyColumn", "MyColumn"},
		{"case insensitive", NormCaseInsensitive, "MyColumn", "mycolumn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDialect("test").Identifiers(`"`, `"`, `""`, tt.norm).Build()
			assert.Equal(t, tt.want, d.NormalizeName(tt.input))
		})
	}
}

func TestNamesEqualFoldsUnicode(t *testing.T) {
	d := NewDialect("test").Identifiers(`"`, `"`, `""`, NormCaseInsensitive).Build()
	assert.True(t, d.NamesEqual("Straße", "STRASSE"))
	assert.True(t, d.NamesEqual("order_id", "ORDER_ID"))
	assert.False(t, d.NamesEqual("order_id", "order_date"))
}

func TestFunctionType(t *testing.T) {
	d := NewDialect("test").
		Aggregates("sum", "count").
		Generators("now", "uuid").
		Windows("row_number").
		Build()

	tests := []struct {
		fn   string
		want Type
	}{
		{"sum", TypeAggregate},
		{"SUM", TypeAggregate},
		{"now", TypeGenerator},
		{"row_number", TypeWindow},
		{"upper", TypePassthrough},
	}

	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			assert.Equal(t, tt.want, d.FunctionType(tt.fn))
		})
	}
}

func TestRegistryBuiltins(t *testing.T) {
	for _, name := range []string{"ansi", "duckdb", "postgres", "snowflake", "bigquery"} {
		d, ok := Get(name)
		require.True(t, ok, "builtin dialect %s not registered", name)
		assert.Equal(t, name, d.Name)
	}

	_, ok := Get("oracle")
	assert.False(t, ok)
}

func TestLookupUnknownNamesAlternatives(t *testing.T) {
	_, err := Lookup("oracle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duckdb")
}

func TestGetIsCaseInsensitive(t *testing.T) {
	d, ok := Get("DuckDB")
	require.True(t, ok)
	assert.Equal(t, "duckdb", d.Name)
}

func TestBuiltinClassifications(t *testing.T) {
	duckdb, _ := Get("duckdb")
	assert.True(t, duckdb.IsAggregate("sum"))
	assert.True(t, duckdb.IsAggregate("list"))
	assert.True(t, duckdb.IsGenerator("uuid"))
	assert.True(t, duckdb.IsWindow("lag"))

	snowflake, _ := Get("snowflake")
	assert.True(t, snowflake.IsAggregate("listagg"))
	assert.Equal(t, "MYCOL", snowflake.NormalizeName("mycol"))

	postgres, _ := Get("postgres")
	assert.True(t, postgres.IsAggregate("jsonb_agg"))
	assert.Equal(t, "mycol", postgres.NormalizeName("MyCol"))
}

func TestDefault(t *testing.T) {
	d := Default()
	require.NotNil(t, d)
	assert.Equal(t, DefaultName, d.Name)
}
