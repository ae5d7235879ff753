package core

// RefKind distinguishes the targets a templating directive can name.
type RefKind string

// Reference kinds. RefMacro never forms a graph edge; it only
// classifies unresolved-reference errors for unknown macro calls.
const (
	RefModel  RefKind = "model"
	RefSource RefKind = "source"
	RefMacro  RefKind = "macro"
)

// Reference is a directed dependency from one model to another model or
// to a declared external source table, discovered during rendering.
// Duplicate textual references collapse to one Reference per target.
type Reference struct {
	Kind RefKind `json:"kind"`
	// Name is the target identity: the model name for RefModel, the
	// qualified "source.table" relation for RefSource.
	Name string `json:"name"`
}

// TransformType describes how source columns map onto an output column.
type TransformType string

const (
	// TransformDirect means the column is a direct copy of one upstream column.
	TransformDirect TransformType = ""
	// TransformExpression means the column is derived from an expression.
	TransformExpression TransformType = "EXPR"
)

// Provenance identifies one upstream column an output column derives
// from. Unresolved marks the external/unresolvable sentinel: the column
// comes from a literal or an expression whose source cannot be
// determined. Unresolved provenance is opaque, not a violation.
type Provenance struct {
	Relation   string `json:"relation,omitempty"`
	Column     string `json:"column,omitempty"`
	Unresolved bool   `json:"unresolved,omitempty"`
}

// UnresolvedProvenance returns the sentinel provenance entry.
func UnresolvedProvenance() Provenance {
	return Provenance{Unresolved: true}
}

// Column is one output column of a model, with ordered provenance.
type Column struct {
	Name       string        `json:"name"`
	Index      int           `json:"index"`
	Transform  TransformType `json:"transform,omitempty"`
	Function   string        `json:"function,omitempty"`
	Provenance []Provenance  `json:"provenance,omitempty"`
}

// ConsumedKind classifies where a consumed column reference points.
type ConsumedKind string

// Consumed reference kinds.
const (
	// ConsumedExternal references an upstream relation (model or source);
	// existence is checked by the validator against upstream columns.
	ConsumedExternal ConsumedKind = "external"
	// ConsumedCTE references a common table expression local to the query.
	ConsumedCTE ConsumedKind = "cte"
	// ConsumedSubquery references a derived table local to the query.
	ConsumedSubquery ConsumedKind = "subquery"
	// ConsumedInternal references an alias defined by the query itself.
	ConsumedInternal ConsumedKind = "internal"
)

// ConsumedRef records one column reference the model's SQL consumes.
// Valid is tri-state: nil means existence must be checked against the
// producer's column set (external refs), true means the resolver
// verified it locally, false means the resolver proved it invalid
// (e.g. a column a CTE does not expose).
type ConsumedRef struct {
	Relation string       `json:"relation"`
	Column   string       `json:"column"`
	Kind     ConsumedKind `json:"kind"`
	Valid    *bool        `json:"valid,omitempty"`
	// Context names the output column or clause that consumes the
	// reference, used in diagnostics.
	Context string `json:"context,omitempty"`
}

// Model is one named SQL transformation unit. Identity fields are set
// at discovery; rendering and resolution fill in the rest over a run.
type Model struct {
	// Name is the model name (filename without extension), unique per project.
	Name string
	// FilePath is the path to the model's SQL file.
	FilePath string
	// RawSQL is the templated source text as loaded.
	RawSQL string
	// RenderedSQL is the directive-free SQL produced by the renderer.
	RenderedSQL string
	// Materialized is captured from a config() directive: table, view, ...
	Materialized string
	// Refs are the upstream references discovered during rendering, in
	// first-use order with duplicates collapsed.
	Refs []Reference
	// MacrosUsed lists macro names the render expanded, sorted.
	MacrosUsed []string
	// Docs holds the declared documentation block, if any.
	Docs *ModelDocs
	// Columns is the computed output column list, in projection order.
	Columns []Column
	// ConsumedRefs lists every column reference the rendered SQL consumes.
	ConsumedRefs []ConsumedRef
	// LocalFingerprint hashes raw text plus the macro set and logic version.
	LocalFingerprint string
	// Fingerprint additionally folds in all upstream fingerprints.
	Fingerprint string
}

// RefNames returns the names of references of the given kind, in order.
func (m *Model) RefNames(kind RefKind) []string {
	var names []string
	for _, r := range m.Refs {
		if r.Kind == kind {
			names = append(names, r.Name)
		}
	}
	return names
}

// HasRef reports whether the model already references the given target.
func (m *Model) HasRef(kind RefKind, name string) bool {
	for _, r := range m.Refs {
		if r.Kind == kind && r.Name == name {
			return true
		}
	}
	return false
}

// AddRef appends a reference unless an identical one is present.
func (m *Model) AddRef(kind RefKind, name string) {
	if !m.HasRef(kind, name) {
		m.Refs = append(m.Refs, Reference{Kind: kind, Name: name})
	}
}

// ColumnNames returns the computed output column names in order.
func (m *Model) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}
