package lineage

import (
	"strconv"

	"github.com/erikmunkby/dbt-toolbox/pkg/core"
	"github.com/erikmunkby/dbt-toolbox/pkg/dialect"
)

// Options configures statement analysis.
type Options struct {
	// Dialect drives identifier normalization and function
	// classification. Nil falls back to the registered default.
	Dialect *dialect.Dialect
	// Schema lists the known columns of upstream relations, keyed by
	// relation name. Relations not listed resolve best-effort.
	Schema Schema
}

// Result is the outcome of analyzing one statement.
type Result struct {
	// Columns are the statement's output columns in projection order.
	Columns []core.Column
	// Consumed records the column references the statement reads, in
	// encounter order with exact duplicates collapsed.
	Consumed []core.ConsumedRef
	// Relations lists the external relations referenced, in first-use
	// order with duplicates collapsed. CTE instantiations are not
	// external and do not appear.
	Relations []string
}

// Analyze parses and resolves one SQL statement, computing its output
// columns with provenance and the column references it consumes.
func Analyze(sql string, opts Options) (*Result, error) {
	stmt, err := Parse(sql)
	if err != nil {
		return nil, err
	}

	d := opts.Dialect
	if d == nil {
		d = dialect.Default()
	}

	a := newAnalyzer(d, opts.Schema)
	columns := a.analyzeStatement(stmt, NewScope(d))
	if len(a.errs) > 0 {
		return nil, a.errs[0]
	}

	a.result.Columns = columns
	return a.result, nil
}

// schemaRelation is one schema entry with its declared spelling.
type schemaRelation struct {
	name    string
	columns []string
}

// analyzer walks a parsed statement and accumulates the result. Errors
// are collected rather than returned so traversal state stays simple;
// the first error wins.
type analyzer struct {
	dialect  *dialect.Dialect
	schema   map[string]schemaRelation // keyed by normalized name
	result   *Result
	seenRefs map[string]bool
	seenRels map[string]bool
	// outputs holds the current core's projection while its trailing
	// clauses resolve, so alias references land as internal refs. Nil
	// during projection and FROM analysis.
	outputs []core.Column
	errs    []error
}

func newAnalyzer(d *dialect.Dialect, schema Schema) *analyzer {
	a := &analyzer{
		dialect:  d,
		schema:   make(map[string]schemaRelation, len(schema)),
		result:   &Result{},
		seenRefs: make(map[string]bool),
		seenRels: make(map[string]bool),
	}
	for rel, cols := range schema {
		a.schema[d.NormalizeName(rel)] = schemaRelation{name: rel, columns: cols}
	}
	return a
}

func (a *analyzer) fail(err error) {
	a.errs = append(a.errs, err)
}

// ---------- Statement walking ----------

// analyzeStatement resolves a statement in the given scope and returns
// its output columns. CTEs are defined in the scope itself so later
// CTEs and the main body can instantiate them.
func (a *analyzer) analyzeStatement(stmt *SelectStmt, scope *Scope) []core.Column {
	if stmt == nil || stmt.Body == nil {
		return nil
	}

	if stmt.With != nil {
		for _, cte := range stmt.With.CTEs {
			columns := a.analyzeStatement(cte.Select, scope.Child())
			scope.DefineCTE(a.cteEntry(cte, columns))
		}
	}

	return a.analyzeBody(stmt.Body, scope)
}

// cteEntry builds the scope entry for a CTE definition, applying an
// explicit column list when present.
func (a *analyzer) cteEntry(cte *CTE, columns []core.Column) *ScopeEntry {
	entryCols := entryColumns(columns)

	if len(cte.ColumnNames) > 0 {
		if hasStarColumn(columns) {
			// The declared list names columns the inner star hides, so
			// trust the declaration and spread the star's provenance.
			prov := starredProvenance(columns)
			entryCols = make([]EntryColumn, len(cte.ColumnNames))
			for i, name := range cte.ColumnNames {
				entryCols[i] = EntryColumn{Name: a.dialect.NormalizeName(name), Provenance: prov}
			}
			return &ScopeEntry{Kind: EntryCTE, Name: cte.Name, Columns: entryCols, Complete: true}
		}
		for i, name := range cte.ColumnNames {
			if i >= len(entryCols) {
				break
			}
			entryCols[i].Name = a.dialect.NormalizeName(name)
		}
	}

	return &ScopeEntry{
		Kind:     EntryCTE,
		Name:     cte.Name,
		Columns:  entryCols,
		Complete: !hasStarColumn(columns),
	}
}

// analyzeBody resolves a select body, merging set operation branches.
// Each branch gets its own child scope so FROM entries never leak
// across branches, while CTEs stay visible through the parent.
func (a *analyzer) analyzeBody(body *SelectBody, scope *Scope) []core.Column {
	left := a.analyzeCore(body.Left, scope.Child())

	if body.Op == SetOpNone || body.Right == nil {
		return left
	}

	right := a.analyzeBody(body.Right, scope)
	return a.mergeSetOp(body.Op, left, right)
}

// mergeSetOp combines the columns of two set operation branches. The
// left branch names the output; provenance unions per position. When
// either side holds an unexpanded star the column counts are not
// comparable, so the check is skipped and the left side stands.
func (a *analyzer) mergeSetOp(op SetOpType, left, right []core.Column) []core.Column {
	if hasStarColumn(left) || hasStarColumn(right) {
		return left
	}

	if len(left) != len(right) {
		a.fail(&SetOpError{Op: op, Left: len(left), Right: len(right)})
		return left
	}

	merged := make([]core.Column, len(left))
	for i := range left {
		col := left[i]
		if !sameProvenance(left[i].Provenance, right[i].Provenance) || left[i].Transform != right[i].Transform {
			col.Transform = core.TransformExpression
			col.Function = ""
		}
		col.Provenance = normalizeProvenance(append(append([]core.Provenance{}, left[i].Provenance...), right[i].Provenance...))
		merged[i] = col
	}
	return merged
}

// analyzeCore resolves one SELECT core: FROM entries first, then the
// projection, then the trailing clauses for consumption tracking.
func (a *analyzer) analyzeCore(sel *SelectCore, scope *Scope) []core.Column {
	savedOutputs := a.outputs
	a.outputs = nil
	defer func() { a.outputs = savedOutputs }()

	if sel.From != nil {
		a.analyzeFrom(sel.From, scope)
	}

	var out []core.Column
	for _, item := range sel.Columns {
		out = append(out, a.analyzeSelectItem(item, scope, len(out))...)
	}
	for i := range out {
		out[i].Index = i
	}

	// Trailing clauses resolve against FROM entries plus output aliases.
	a.outputs = out

	a.consume(sel.Where, scope, "where")
	for _, expr := range sel.GroupBy {
		a.consume(expr, scope, "group by")
	}
	a.consume(sel.Having, scope, "having")
	a.consume(sel.Qualify, scope, "qualify")
	for _, item := range sel.OrderBy {
		a.consume(item.Expr, scope, "order by")
	}

	return out
}

// analyzeFrom registers every FROM entry, then resolves join conditions
// once all relations are in scope.
func (a *analyzer) analyzeFrom(from *FromClause, scope *Scope) {
	a.registerTableRef(from.Source, scope)
	for _, join := range from.Joins {
		a.registerTableRef(join.Right, scope)
	}

	for _, join := range from.Joins {
		a.consume(join.Condition, scope, "join")
		for _, col := range join.Using {
			a.resolveColumnRef("", col, scope, "join")
		}
	}
}

// registerTableRef resolves one table reference into a scope entry.
func (a *analyzer) registerTableRef(ref TableRef, scope *Scope) {
	switch t := ref.(type) {
	case *TableName:
		// Unqualified names may instantiate a CTE.
		if t.Catalog == "" && t.Schema == "" {
			if def, ok := scope.LookupCTE(t.Name); ok {
				scope.Register(&ScopeEntry{
					Kind:     EntryCTE,
					Name:     def.Name,
					Alias:    t.Alias,
					Columns:  def.Columns,
					Complete: def.Complete,
				})
				return
			}
		}
		scope.Register(a.relationEntry(t.Relation(), t.Alias))

	case *DerivedTable:
		// A plain derived table must not see sibling FROM entries, so
		// it resolves in a child of the enclosing scope.
		outer := scope.parent
		if outer == nil {
			outer = scope
		}
		columns := a.analyzeStatement(t.Select, outer.Child())
		scope.Register(a.subqueryEntry(t.Alias, columns))

	case *LateralTable:
		// LATERAL sees the entries registered before it.
		columns := a.analyzeStatement(t.Select, scope.Child())
		scope.Register(a.subqueryEntry(t.Alias, columns))
	}
}

// relationEntry builds the scope entry for an external relation,
// filling columns from the schema when it lists the relation.
func (a *analyzer) relationEntry(relation, alias string) *ScopeEntry {
	entry := &ScopeEntry{Kind: EntryRelation, Alias: alias}

	if rel, ok := a.schema[a.dialect.NormalizeName(relation)]; ok {
		entry.Name = rel.name
		entry.Complete = true
		entry.Columns = make([]EntryColumn, len(rel.columns))
		for i, col := range rel.columns {
			entry.Columns[i] = EntryColumn{
				Name:       col,
				Provenance: []core.Provenance{{Relation: rel.name, Column: col}},
			}
		}
	} else {
		entry.Name = relation
	}

	a.recordRelation(entry.Name)
	return entry
}

func (a *analyzer) subqueryEntry(alias string, columns []core.Column) *ScopeEntry {
	return &ScopeEntry{
		Kind:     EntrySubquery,
		Alias:    alias,
		Columns:  entryColumns(columns),
		Complete: !hasStarColumn(columns),
	}
}

func (a *analyzer) recordRelation(name string) {
	key := a.dialect.NormalizeName(name)
	if a.seenRels[key] {
		return
	}
	a.seenRels[key] = true
	a.result.Relations = append(a.result.Relations, name)
}

// ---------- Projection ----------

// analyzeSelectItem resolves one projected item into output columns.
// Stars expand to one column per exposed upstream column; everything
// else yields exactly one.
func (a *analyzer) analyzeSelectItem(item SelectItem, scope *Scope, index int) []core.Column {
	if item.Star || item.TableStar != "" {
		expanded, ok := scope.ExpandStar(item.TableStar)
		if !ok {
			// Star over an unknown qualifier: keep the claim visible.
			a.record(core.ConsumedRef{
				Relation: item.TableStar,
				Column:   "*",
				Kind:     core.ConsumedExternal,
				Context:  "select",
			})
			return []core.Column{{
				Name:       "*",
				Provenance: []core.Provenance{{Relation: item.TableStar, Column: "*"}},
			}}
		}

		out := make([]core.Column, len(expanded))
		for i, col := range expanded {
			name := col.Name
			if name != "*" {
				name = a.dialect.NormalizeName(name)
			}
			out[i] = core.Column{Name: name, Provenance: col.Provenance}
		}
		return out
	}

	name := item.Alias
	if name == "" {
		name = inferredName(item.Expr, index)
	}

	transform, function, prov := a.analyzeExpr(item.Expr, scope, a.dialect.NormalizeName(name))
	return []core.Column{{
		Name:       a.dialect.NormalizeName(name),
		Transform:  transform,
		Function:   function,
		Provenance: prov,
	}}
}

// inferredName derives an output name for an unaliased projection.
func inferredName(expr Expr, index int) string {
	switch e := expr.(type) {
	case *ColumnRef:
		return e.Column
	case *FuncCall:
		return e.Name
	case *CastExpr:
		return inferredName(e.Expr, index)
	case *ParenExpr:
		return inferredName(e.Expr, index)
	default:
		return "column" + strconv.Itoa(index)
	}
}

// ---------- Expression resolution ----------

// consume resolves an expression purely for its consumed references.
func (a *analyzer) consume(expr Expr, scope *Scope, context string) {
	if expr == nil {
		return
	}
	a.analyzeExpr(expr, scope, context)
}

// exprProvenance resolves an expression and returns its provenance.
func (a *analyzer) exprProvenance(expr Expr, scope *Scope, context string) []core.Provenance {
	if expr == nil {
		return nil
	}
	_, _, prov := a.analyzeExpr(expr, scope, context)
	return prov
}

// analyzeExpr resolves one expression, returning how it transforms its
// inputs, the outermost function name when one applies, and the set of
// physical columns it reads.
func (a *analyzer) analyzeExpr(expr Expr, scope *Scope, context string) (core.TransformType, string, []core.Provenance) {
	switch e := expr.(type) {
	case *ColumnRef:
		return a.resolveColumnRef(e.Table, e.Column, scope, context)

	case *Literal:
		return core.TransformExpression, "", []core.Provenance{core.UnresolvedProvenance()}

	case *ParenExpr:
		return a.analyzeExpr(e.Expr, scope, context)

	case *CastExpr:
		prov := a.exprProvenance(e.Expr, scope, context)
		return core.TransformExpression, "cast", normalizeProvenance(prov)

	case *FuncCall:
		return a.analyzeFuncCall(e, scope, context)

	case *CaseExpr:
		var prov []core.Provenance
		prov = append(prov, a.exprProvenance(e.Operand, scope, context)...)
		for _, when := range e.Whens {
			prov = append(prov, a.exprProvenance(when.Condition, scope, context)...)
			prov = append(prov, a.exprProvenance(when.Result, scope, context)...)
		}
		prov = append(prov, a.exprProvenance(e.Else, scope, context)...)
		return core.TransformExpression, "case", normalizeProvenance(prov)

	case *BinaryExpr:
		prov := append(a.exprProvenance(e.Left, scope, context), a.exprProvenance(e.Right, scope, context)...)
		return core.TransformExpression, "", normalizeProvenance(prov)

	case *UnaryExpr:
		return core.TransformExpression, "", normalizeProvenance(a.exprProvenance(e.Expr, scope, context))

	case *InExpr:
		prov := a.exprProvenance(e.Expr, scope, context)
		for _, value := range e.Values {
			prov = append(prov, a.exprProvenance(value, scope, context)...)
		}
		if e.Query != nil {
			for _, col := range a.analyzeStatement(e.Query, scope.Child()) {
				prov = append(prov, col.Provenance...)
			}
		}
		return core.TransformExpression, "", normalizeProvenance(prov)

	case *BetweenExpr:
		prov := a.exprProvenance(e.Expr, scope, context)
		prov = append(prov, a.exprProvenance(e.Low, scope, context)...)
		prov = append(prov, a.exprProvenance(e.High, scope, context)...)
		return core.TransformExpression, "", normalizeProvenance(prov)

	case *IsNullExpr:
		return core.TransformExpression, "", normalizeProvenance(a.exprProvenance(e.Expr, scope, context))

	case *IsBoolExpr:
		return core.TransformExpression, "", normalizeProvenance(a.exprProvenance(e.Expr, scope, context))

	case *LikeExpr:
		prov := a.exprProvenance(e.Expr, scope, context)
		prov = append(prov, a.exprProvenance(e.Pattern, scope, context)...)
		return core.TransformExpression, "", normalizeProvenance(prov)

	case *SubqueryExpr:
		// Scalar subquery: its value carries its columns' provenance.
		var prov []core.Provenance
		for _, col := range a.analyzeStatement(e.Select, scope.Child()) {
			prov = append(prov, col.Provenance...)
		}
		return core.TransformExpression, "", normalizeProvenance(prov)

	case *ExistsExpr:
		// The boolean result has no column sources, but the subquery's
		// consumption still counts.
		a.analyzeStatement(e.Select, scope.Child())
		return core.TransformExpression, "exists", []core.Provenance{core.UnresolvedProvenance()}

	case *StarExpr:
		return core.TransformExpression, "", []core.Provenance{core.UnresolvedProvenance()}

	default:
		return core.TransformExpression, "", []core.Provenance{core.UnresolvedProvenance()}
	}
}

// analyzeFuncCall resolves a function application. The dialect decides
// whether the call generates values (no upstream sources) and supplies
// the classification recorded on the output column.
func (a *analyzer) analyzeFuncCall(fc *FuncCall, scope *Scope, context string) (core.TransformType, string, []core.Provenance) {
	var prov []core.Provenance
	for _, arg := range fc.Args {
		prov = append(prov, a.exprProvenance(arg, scope, context)...)
	}
	prov = append(prov, a.exprProvenance(fc.Filter, scope, context)...)

	if fc.Window != nil {
		for _, expr := range fc.Window.PartitionBy {
			prov = append(prov, a.exprProvenance(expr, scope, context)...)
		}
		for _, item := range fc.Window.OrderBy {
			prov = append(prov, a.exprProvenance(item.Expr, scope, context)...)
		}
	}

	if a.dialect.IsGenerator(fc.Name) {
		return core.TransformExpression, fc.Name, []core.Provenance{core.UnresolvedProvenance()}
	}

	return core.TransformExpression, fc.Name, normalizeProvenance(prov)
}

// resolveColumnRef resolves a column reference, records its consumption
// and returns the provenance it contributes.
func (a *analyzer) resolveColumnRef(table, column string, scope *Scope, context string) (core.TransformType, string, []core.Provenance) {
	// Output aliases win for unqualified references in trailing clauses.
	if table == "" && a.outputs != nil {
		if col, ok := a.lookupOutput(column); ok {
			a.record(core.ConsumedRef{
				Column:  column,
				Kind:    core.ConsumedInternal,
				Valid:   boolPtr(true),
				Context: context,
			})
			return core.TransformDirect, "", col.Provenance
		}
	}

	res := scope.ResolveColumn(table, column)

	// Bare generator identifiers like current_date parse as column
	// references; treat them as calls only when nothing in scope
	// actually exposes the name.
	if table == "" && !res.found && a.dialect.IsGenerator(column) {
		name := lowerASCII(column)
		return core.TransformExpression, name, []core.Provenance{core.UnresolvedProvenance()}
	}

	return core.TransformDirect, "", a.recordResolution(table, column, res, context)
}

// recordResolution converts a scope resolution into a consumed ref and
// the provenance the reference contributes.
func (a *analyzer) recordResolution(table, column string, res resolution, context string) []core.Provenance {
	ref := core.ConsumedRef{Column: column, Kind: core.ConsumedExternal, Context: context}

	if res.entry == nil {
		// Ambiguous unqualified name, unknown qualifier, or an empty
		// scope. The claim is recorded unverified.
		ref.Relation = table
		a.record(ref)
		if table != "" {
			return []core.Provenance{{Relation: table, Column: column}}
		}
		return []core.Provenance{core.UnresolvedProvenance()}
	}

	entry := res.entry
	switch entry.Kind {
	case EntryRelation:
		ref.Relation = entry.Name
	case EntryCTE:
		ref.Kind = core.ConsumedCTE
		ref.Relation = entry.Name
	case EntrySubquery:
		ref.Kind = core.ConsumedSubquery
		ref.Relation = entry.key()
	}

	switch {
	case res.found:
		ref.Valid = boolPtr(true)
	case entry.Complete:
		ref.Valid = boolPtr(false)
	}

	a.record(ref)
	return res.provenance
}

func (a *analyzer) lookupOutput(name string) (core.Column, bool) {
	for _, col := range a.outputs {
		if col.Name != "*" && a.dialect.NamesEqual(col.Name, name) {
			return col, true
		}
	}
	return core.Column{}, false
}

func (a *analyzer) record(ref core.ConsumedRef) {
	key := string(ref.Kind) + "\x00" + ref.Relation + "\x00" + ref.Column + "\x00" + ref.Context
	if a.seenRefs[key] {
		return
	}
	a.seenRefs[key] = true
	a.result.Consumed = append(a.result.Consumed, ref)
}

// ---------- Provenance helpers ----------

func entryColumns(columns []core.Column) []EntryColumn {
	out := make([]EntryColumn, len(columns))
	for i, col := range columns {
		out[i] = EntryColumn{Name: col.Name, Provenance: col.Provenance}
	}
	return out
}

func hasStarColumn(columns []core.Column) bool {
	for _, col := range columns {
		if col.Name == "*" {
			return true
		}
	}
	return false
}

// starredProvenance collects the provenance of star pseudo-columns, for
// spreading over a declared column list.
func starredProvenance(columns []core.Column) []core.Provenance {
	var prov []core.Provenance
	for _, col := range columns {
		if col.Name == "*" {
			prov = append(prov, col.Provenance...)
		}
	}
	return normalizeProvenance(prov)
}

// normalizeProvenance dedupes provenance entries and drops the
// unresolved sentinel once any real source is present. An empty or
// all-sentinel set collapses to a single sentinel.
func normalizeProvenance(prov []core.Provenance) []core.Provenance {
	var out []core.Provenance
	seen := make(map[core.Provenance]bool)
	for _, p := range prov {
		if p.Unresolved || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return []core.Provenance{core.UnresolvedProvenance()}
	}
	return out
}

func sameProvenance(a, b []core.Provenance) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func boolPtr(b bool) *bool {
	return &b
}
