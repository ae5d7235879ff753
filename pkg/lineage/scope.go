package lineage

import (
	"github.com/erikmunkby/dbt-toolbox/pkg/core"
	"github.com/erikmunkby/dbt-toolbox/pkg/dialect"
)

// Schema maps physical relation names to their known column lists.
// Relations absent from the schema resolve best-effort: column
// references against them are recorded but cannot be verified.
type Schema map[string][]string

// EntryKind classifies what a scope entry stands for.
type EntryKind int

const (
	// EntryRelation is an external physical table or view.
	EntryRelation EntryKind = iota
	// EntryCTE is a common table expression instantiated in FROM.
	EntryCTE
	// EntrySubquery is a derived or lateral table.
	EntrySubquery
)

// EntryColumn is one column a scope entry exposes. Provenance is already
// resolved to physical relations, so references through CTEs and derived
// tables inherit their sources without re-walking the tree.
type EntryColumn struct {
	Name       string
	Provenance []core.Provenance
}

// ScopeEntry is one relation visible to column resolution.
type ScopeEntry struct {
	Kind  EntryKind
	Name  string // relation or CTE name, "" for anonymous subqueries
	Alias string
	// Columns lists the exposed columns in definition order. Complete
	// reports whether this is the full set: false for external relations
	// missing from the schema and for queries whose star expansion could
	// not be resolved.
	Columns  []EntryColumn
	Complete bool
}

// key returns the name this entry is addressed by in column qualifiers.
func (e *ScopeEntry) key() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Name
}

// column returns the entry column matching name under the dialect's
// normalization rules.
func (e *ScopeEntry) column(name string, d *dialect.Dialect) (EntryColumn, bool) {
	for _, c := range e.Columns {
		if d.NamesEqual(c.Name, name) {
			return c, true
		}
	}
	return EntryColumn{}, false
}

// Scope tracks the relations visible to one SELECT core, with a parent
// chain for correlated subqueries and CTE visibility. FROM entries keep
// registration order so star expansion preserves column order.
type Scope struct {
	parent  *Scope
	dialect *dialect.Dialect

	entries map[string]*ScopeEntry // FROM entries by normalized key
	order   []string               // normalized keys in FROM order
	ctes    map[string]*ScopeEntry // CTE definitions by normalized name
}

// NewScope creates a root scope for the given dialect.
func NewScope(d *dialect.Dialect) *Scope {
	return &Scope{
		dialect: d,
		entries: make(map[string]*ScopeEntry),
		ctes:    make(map[string]*ScopeEntry),
	}
}

// Child creates a nested scope that sees this scope's entries and CTEs.
func (s *Scope) Child() *Scope {
	child := NewScope(s.dialect)
	child.parent = s
	return child
}

// DefineCTE registers a CTE definition. Later definitions shadow earlier
// ones of the same name, matching WITH clause semantics.
func (s *Scope) DefineCTE(entry *ScopeEntry) {
	s.ctes[s.dialect.NormalizeName(entry.Name)] = entry
}

// LookupCTE finds a CTE definition by name, walking the parent chain.
func (s *Scope) LookupCTE(name string) (*ScopeEntry, bool) {
	key := s.dialect.NormalizeName(name)
	for scope := s; scope != nil; scope = scope.parent {
		if entry, ok := scope.ctes[key]; ok {
			return entry, true
		}
	}
	return nil, false
}

// Register adds a FROM entry to this scope. The entry is addressed by
// its alias when present, otherwise its name.
func (s *Scope) Register(entry *ScopeEntry) {
	key := s.dialect.NormalizeName(entry.key())
	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = entry
}

// Entries returns this scope's FROM entries in registration order.
func (s *Scope) Entries() []*ScopeEntry {
	result := make([]*ScopeEntry, 0, len(s.order))
	for _, key := range s.order {
		result = append(result, s.entries[key])
	}
	return result
}

// Entry finds a FROM entry by qualifier, walking the parent chain so
// correlated subqueries can reach outer relations.
func (s *Scope) Entry(qualifier string) (*ScopeEntry, bool) {
	key := s.dialect.NormalizeName(qualifier)
	for scope := s; scope != nil; scope = scope.parent {
		if entry, ok := scope.entries[key]; ok {
			return entry, true
		}
	}
	return nil, false
}

// resolution is the outcome of resolving one column reference. A nil
// entry means the reference could not be attributed to any relation:
// the qualifier is unknown, the scope is empty, or an unqualified name
// is ambiguous across multiple relations.
type resolution struct {
	entry      *ScopeEntry
	provenance []core.Provenance
	// found means the column is present in the entry's column list.
	// When false and the entry is incomplete, the column may still
	// exist; when false and the entry is complete, it provably does not.
	found bool
}

// ResolveColumn resolves a column reference against this scope.
//
// Qualified references walk the parent chain. Unqualified references
// use only this scope's entries: with a single entry the column is
// attributed to it, with several the reference stays unattributed
// unless exactly one complete entry exposes the column.
func (s *Scope) ResolveColumn(table, column string) resolution {
	if table != "" {
		entry, ok := s.Entry(table)
		if !ok {
			return resolution{}
		}
		return s.resolveAgainst(entry, column)
	}

	entries := s.Entries()
	switch len(entries) {
	case 0:
		return resolution{}
	case 1:
		return s.resolveAgainst(entries[0], column)
	}

	// Multiple relations: attribute the column only when exactly one
	// exposes it and every column set is known.
	var match *ScopeEntry
	incomplete := false
	for _, entry := range entries {
		if _, ok := entry.column(column, s.dialect); ok {
			if match != nil {
				return resolution{}
			}
			match = entry
		}
		if !entry.Complete {
			incomplete = true
		}
	}
	if match != nil && !incomplete {
		return s.resolveAgainst(match, column)
	}
	return resolution{}
}

// resolveAgainst resolves a column against a specific entry.
func (s *Scope) resolveAgainst(entry *ScopeEntry, column string) resolution {
	if col, ok := entry.column(column, s.dialect); ok {
		return resolution{entry: entry, provenance: col.Provenance, found: true}
	}

	// Not listed. For external relations the claim is kept best-effort;
	// the caller decides validity from entry.Complete.
	prov := []core.Provenance{core.UnresolvedProvenance()}
	if entry.Kind == EntryRelation {
		prov = []core.Provenance{{Relation: entry.Name, Column: column}}
	}
	return resolution{entry: entry, provenance: prov, found: false}
}

// ExpandStar returns the columns a star expands to. With a qualifier it
// expands one entry, otherwise every entry in FROM order. Entries whose
// column set is unknown contribute a single "*" pseudo-column with
// unresolved provenance.
func (s *Scope) ExpandStar(qualifier string) ([]EntryColumn, bool) {
	if qualifier != "" {
		entry, ok := s.Entry(qualifier)
		if !ok {
			return nil, false
		}
		return expandEntry(entry), true
	}

	var columns []EntryColumn
	for _, entry := range s.Entries() {
		columns = append(columns, expandEntry(entry)...)
	}
	return columns, true
}

func expandEntry(entry *ScopeEntry) []EntryColumn {
	if !entry.Complete {
		return []EntryColumn{{
			Name:       "*",
			Provenance: starProvenance(entry),
		}}
	}
	return entry.Columns
}

// starProvenance points an unexpandable star at its relation when the
// relation is at least known by name.
func starProvenance(entry *ScopeEntry) []core.Provenance {
	if entry.Kind == EntryRelation && entry.Name != "" {
		return []core.Provenance{{Relation: entry.Name, Column: "*"}}
	}
	return []core.Provenance{core.UnresolvedProvenance()}
}
