package dialect

// Shared ANSI function sets. Dialect-specific lists below extend these.
var (
	ansiAggregates = []string{
		"SUM", "COUNT", "AVG", "MIN", "MAX",
		"STDDEV", "STDDEV_POP", "STDDEV_SAMP",
		"VARIANCE", "VAR_POP", "VAR_SAMP",
		"EVERY", "ANY", "SOME",
	}
	ansiGenerators = []string{
		"CURRENT_TIMESTAMP", "CURRENT_DATE", "CURRENT_TIME",
		"LOCALTIME", "LOCALTIMESTAMP",
		"CURRENT_USER", "SESSION_USER", "SYSTEM_USER",
	}
	ansiWindows = []string{
		"ROW_NUMBER", "RANK", "DENSE_RANK", "NTILE", "PERCENT_RANK", "CUME_DIST",
		"LAG", "LEAD", "FIRST_VALUE", "LAST_VALUE", "NTH_VALUE",
	}
)

var builtinANSI = NewDialect("ansi").
	Identifiers(`"`, `"`, `""`, NormCaseInsensitive).
	Aggregates(ansiAggregates...).
	Generators(ansiGenerators...).
	Windows(ansiWindows...).
	Build()

var builtinDuckDB = NewDialect("duckdb").
	Identifiers(`"`, `"`, `""`, NormCaseInsensitive).
	Aggregates(ansiAggregates...).
	Aggregates(
		"LIST", "ARRAY_AGG", "STRING_AGG", "GROUP_CONCAT",
		"FIRST", "LAST", "ANY_VALUE", "ARBITRARY",
		"MEDIAN", "MODE", "QUANTILE", "QUANTILE_CONT", "QUANTILE_DISC",
		"APPROX_COUNT_DISTINCT", "APPROX_QUANTILE",
		"HISTOGRAM", "ENTROPY", "KURTOSIS", "SKEWNESS",
		"BIT_AND", "BIT_OR", "BIT_XOR", "BOOL_AND", "BOOL_OR",
		"CORR", "COVAR_POP", "COVAR_SAMP",
		"PRODUCT", "FSUM", "FAVG", "MAD",
	).
	Generators(ansiGenerators...).
	Generators(
		"NOW", "TODAY",
		"UUID", "GEN_RANDOM_UUID",
		"RANDOM", "SETSEED",
		"PI", "E",
		"CURRENT_SCHEMA", "CURRENT_DATABASE", "CURRENT_CATALOG",
		"VERSION",
	).
	Windows(ansiWindows...).
	Build()

var builtinPostgres = NewDialect("postgres").
	Identifiers(`"`, `"`, `""`, NormLowercase).
	Aggregates(ansiAggregates...).
	Aggregates(
		"ARRAY_AGG", "STRING_AGG", "JSON_AGG", "JSONB_AGG",
		"JSON_OBJECT_AGG", "JSONB_OBJECT_AGG",
		"BOOL_AND", "BOOL_OR", "BIT_AND", "BIT_OR",
		"MODE", "PERCENTILE_CONT", "PERCENTILE_DISC",
		"CORR", "COVAR_POP", "COVAR_SAMP",
	).
	Generators(ansiGenerators...).
	Generators(
		"NOW", "GEN_RANDOM_UUID", "RANDOM",
		"CURRENT_SCHEMA", "CURRENT_DATABASE", "VERSION",
		"TXID_CURRENT", "PG_BACKEND_PID",
	).
	Windows(ansiWindows...).
	Build()

var builtinSnowflake = NewDialect("snowflake").
	Identifiers(`"`, `"`, `""`, NormUppercase).
	Aggregates(ansiAggregates...).
	Aggregates(
		"LISTAGG", "ARRAY_AGG", "OBJECT_AGG",
		"ANY_VALUE", "MEDIAN", "MODE",
		"APPROX_COUNT_DISTINCT", "HLL",
		"BITAND_AGG", "BITOR_AGG", "BITXOR_AGG",
		"BOOLAND_AGG", "BOOLOR_AGG", "BOOLXOR_AGG",
		"PERCENTILE_CONT", "PERCENTILE_DISC",
	).
	Generators(ansiGenerators...).
	Generators(
		"SYSDATE", "GETDATE", "UUID_STRING", "RANDOM", "SEQ1", "SEQ2", "SEQ4", "SEQ8",
		"CURRENT_ACCOUNT", "CURRENT_REGION", "CURRENT_VERSION",
		"CURRENT_WAREHOUSE", "CURRENT_DATABASE", "CURRENT_SCHEMA", "CURRENT_ROLE",
	).
	Windows(ansiWindows...).
	Windows("RATIO_TO_REPORT", "CONDITIONAL_CHANGE_EVENT", "CONDITIONAL_TRUE_EVENT").
	Build()

var builtinBigQuery = NewDialect("bigquery").
	Identifiers("`", "`", "\\`", NormCaseInsensitive).
	Aggregates(ansiAggregates...).
	Aggregates(
		"ARRAY_AGG", "STRING_AGG", "ARRAY_CONCAT_AGG",
		"ANY_VALUE", "COUNTIF", "LOGICAL_AND", "LOGICAL_OR",
		"APPROX_COUNT_DISTINCT", "APPROX_QUANTILES", "APPROX_TOP_COUNT", "APPROX_TOP_SUM",
		"BIT_AND", "BIT_OR", "BIT_XOR",
	).
	Generators(ansiGenerators...).
	Generators(
		"GENERATE_UUID", "RAND",
		"CURRENT_DATETIME", "SESSION_USER",
	).
	Windows(ansiWindows...).
	Windows("PERCENTILE_CONT", "PERCENTILE_DISC").
	Build()

func init() {
	Register(builtinANSI)
	Register(builtinDuckDB)
	Register(builtinPostgres)
	Register(builtinSnowflake)
	Register(builtinBigQuery)
}
