// Package dialect provides SQL dialect configuration for identifier
// normalization and function classification.
//
// The column resolver is dialect-agnostic at the syntax level but needs
// two dialect-specific answers: how to compare identifiers (case rules)
// and how a function affects lineage (aggregate, generator, window, or
// plain passthrough). Concrete dialects register themselves at package
// load; look them up by the name used in project configuration.
package dialect

import (
	"strings"

	"golang.org/x/text/cases"
)

// NormalizationStrategy defines how unquoted identifiers are normalized.
type NormalizationStrategy int

const (
	// NormLowercase normalizes unquoted identifiers to lowercase (Postgres).
	NormLowercase NormalizationStrategy = iota
	// NormUppercase normalizes unquoted identifiers to uppercase (Snowflake).
	NormUppercase
	// NormCaseSensitive preserves identifier case exactly.
	NormCaseSensitive
	// NormCaseInsensitive folds case for comparison (DuckDB, BigQuery).
	NormCaseInsensitive
)

// Type classifies how a function affects column lineage.
type Type int

const (
	// TypePassthrough means all input columns pass through (default for unknown functions).
	TypePassthrough Type = iota
	// TypeAggregate means many rows collapse to one value (SUM, COUNT, etc.).
	TypeAggregate
	// TypeGenerator means the function produces values with no upstream columns (NOW, UUID, etc.).
	TypeGenerator
	// TypeWindow means the function requires an OVER clause (ROW_NUMBER, LAG, etc.).
	TypeWindow
)

// String returns the string representation of Type.
func (t Type) String() string {
	switch t {
	case TypePassthrough:
		return "passthrough"
	case TypeAggregate:
		return "aggregate"
	case TypeGenerator:
		return "generator"
	case TypeWindow:
		return "window"
	default:
		return "unknown"
	}
}

// Dialect holds the normalization and classification rules for one SQL
// dialect. Build one with NewDialect; registered instances are shared
// and must not be mutated after Build.
type Dialect struct {
	Name string

	// Quote and QuoteEnd delimit quoted identifiers; Escape is the
	// in-quote escape sequence (doubling for standard SQL).
	Quote    string
	QuoteEnd string
	Escape   string

	Normalization NormalizationStrategy

	aggregates map[string]struct{}
	generators map[string]struct{}
	windows    map[string]struct{}

	folder cases.Caser
}

// NormalizeName normalizes an identifier according to dialect rules.
// Case-insensitive dialects use Unicode case folding rather than a
// plain lowercase mapping, so identifiers compare correctly outside
// ASCII as well.
func (d *Dialect) NormalizeName(name string) string {
	switch d.Normalization {
	case NormUppercase:
		return strings.ToUpper(name)
	case NormLowercase:
		return strings.ToLower(name)
	case NormCaseInsensitive:
		return d.folder.String(name)
	default: // NormCaseSensitive
		return name
	}
}

// NamesEqual reports whether two identifiers name the same thing under
// the dialect's comparison rules.
func (d *Dialect) NamesEqual(a, b string) bool {
	return d.NormalizeName(a) == d.NormalizeName(b)
}

// FunctionType returns the lineage classification for a function.
func (d *Dialect) FunctionType(name string) Type {
	normalized := d.NormalizeName(name)
	if _, ok := d.aggregates[normalized]; ok {
		return TypeAggregate
	}
	if _, ok := d.generators[normalized]; ok {
		return TypeGenerator
	}
	if _, ok := d.windows[normalized]; ok {
		return TypeWindow
	}
	return TypePassthrough
}

// IsAggregate returns true if the function is an aggregate function.
func (d *Dialect) IsAggregate(name string) bool {
	return d.FunctionType(name) == TypeAggregate
}

// IsGenerator returns true if the function generates values without input columns.
func (d *Dialect) IsGenerator(name string) bool {
	return d.FunctionType(name) == TypeGenerator
}

// IsWindow returns true if the function is a window-only function.
func (d *Dialect) IsWindow(name string) bool {
	return d.FunctionType(name) == TypeWindow
}

// Builder assembles a Dialect through a fluent interface.
type Builder struct {
	d *Dialect
}

// NewDialect creates a dialect builder with standard double-quote
// identifiers and case-insensitive comparison. Override with the
// builder methods before Build.
func NewDialect(name string) *Builder {
	return &Builder{d: &Dialect{
		Name:          name,
		Quote:         `"`,
		QuoteEnd:      `"`,
		Escape:        `""`,
		Normalization: NormCaseInsensitive,
		aggregates:    make(map[string]struct{}),
		generators:    make(map[string]struct{}),
		windows:       make(map[string]struct{}),
		folder:        cases.Fold(),
	}}
}

// Identifiers configures identifier quoting and normalization.
func (b *Builder) Identifiers(quote, quoteEnd, escape string, norm NormalizationStrategy) *Builder {
	b.d.Quote = quote
	b.d.QuoteEnd = quoteEnd
	b.d.Escape = escape
	b.d.Normalization = norm
	return b
}

// Aggregates adds aggregate functions to the dialect.
func (b *Builder) Aggregates(funcs ...string) *Builder {
	for _, f := range funcs {
		b.d.aggregates[b.d.NormalizeName(f)] = struct{}{}
	}
	return b
}

// Generators adds generator functions to the dialect.
func (b *Builder) Generators(funcs ...string) *Builder {
	for _, f := range funcs {
		b.d.generators[b.d.NormalizeName(f)] = struct{}{}
	}
	return b
}

// Windows adds window-only functions to the dialect.
func (b *Builder) Windows(funcs ...string) *Builder {
	for _, f := range funcs {
		b.d.windows[b.d.NormalizeName(f)] = struct{}{}
	}
	return b
}

// Build returns the assembled dialect.
func (b *Builder) Build() *Dialect {
	return b.d
}
