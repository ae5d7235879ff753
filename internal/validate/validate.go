// Package validate checks resolved models against their upstream
// column sets and their documentation blocks, producing Diagnostics.
package validate

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/erikmunkby/dbt-toolbox/pkg/core"
	"github.com/erikmunkby/dbt-toolbox/pkg/dialect"
)

// Validator walks an analyzed project and reports column-level
// violations. Unresolvable provenance and unknown upstream schemas are
// skipped, never reported.
type Validator struct {
	project *core.Project
	dialect *dialect.Dialect
	logger  *slog.Logger
}

// New creates a validator for an analyzed project.
func New(project *core.Project, d *dialect.Dialect, logger *slog.Logger) *Validator {
	if d == nil {
		d = dialect.Default()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Validator{project: project, dialect: d, logger: logger}
}

// Validate checks every model and returns diagnostics ordered by
// model, then column, then code.
func (v *Validator) Validate() []core.Diagnostic {
	var diags []core.Diagnostic
	for _, m := range v.project.Models() {
		diags = append(diags, v.checkConsumed(m)...)
		diags = append(diags, v.checkDocs(m)...)
	}

	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].Model != diags[j].Model {
			return diags[i].Model < diags[j].Model
		}
		if diags[i].Column != diags[j].Column {
			return diags[i].Column < diags[j].Column
		}
		return diags[i].Code < diags[j].Code
	})
	return diags
}

// checkConsumed reports consumed column references their producer does
// not expose: resolver-invalidated local refs (CTEs, derived tables)
// and external refs checked here against upstream column sets.
func (v *Validator) checkConsumed(m *core.Model) []core.Diagnostic {
	var diags []core.Diagnostic
	for _, cr := range m.ConsumedRefs {
		switch {
		case cr.Valid != nil && !*cr.Valid:
			diags = append(diags, core.Diagnostic{
				Code:     core.CodeMissingColumn,
				Severity: core.SeverityError,
				Model:    m.Name,
				Column:   cr.Column,
				Relation: cr.Relation,
				Message:  missingColumnMessage(kindNoun(cr.Kind), cr),
				FilePath: m.FilePath,
			})
		case cr.Kind == core.ConsumedExternal && cr.Valid == nil:
			noun, columns, known := v.upstreamColumns(cr.Relation)
			if !known || v.hasColumn(columns, cr.Column) {
				continue
			}
			diags = append(diags, core.Diagnostic{
				Code:     core.CodeMissingColumn,
				Severity: core.SeverityError,
				Model:    m.Name,
				Column:   cr.Column,
				Relation: cr.Relation,
				Message:  missingColumnMessage(noun, cr),
				FilePath: m.FilePath,
			})
		}
	}
	return diags
}

// checkDocs compares a model's documentation block with its computed
// columns. Models without a docs block are skipped entirely.
func (v *Validator) checkDocs(m *core.Model) []core.Diagnostic {
	if m.Docs == nil {
		return nil
	}

	var diags []core.Diagnostic
	computed := m.ColumnNames()
	documented := m.Docs.ColumnNames()

	// Drift applies only when the computed set is complete: a failed
	// model has no columns, and a "*" marker means documented columns
	// may still come from the unexpanded star.
	if len(computed) > 0 && !v.hasColumn(computed, "*") {
		for _, dc := range m.Docs.Columns {
			if v.hasColumn(computed, dc.Name) {
				continue
			}
			diags = append(diags, core.Diagnostic{
				Code:     core.CodeDocDrift,
				Severity: core.SeverityWarning,
				Model:    m.Name,
				Column:   dc.Name,
				Message:  "documented column is not produced by the model",
				FilePath: m.Docs.FilePath,
			})
		}
	}

	for _, col := range m.Columns {
		if col.Name == "*" || v.hasColumn(documented, col.Name) {
			continue
		}
		diags = append(diags, core.Diagnostic{
			Code:     core.CodeUndocumentedColumn,
			Severity: core.SeverityInfo,
			Model:    m.Name,
			Column:   col.Name,
			Message:  "column has no documentation entry",
			FilePath: m.Docs.FilePath,
		})
	}
	return diags
}

// upstreamColumns returns the column set of a producing relation.
// Computed columns win for models, declared docs are the fallback; a
// set containing the "*" marker is incomplete and reads as unknown.
// known is false when no usable column set exists.
func (v *Validator) upstreamColumns(relation string) (noun string, columns []string, known bool) {
	if m := v.project.Model(relation); m != nil {
		if len(m.Columns) > 0 && !v.hasColumn(m.ColumnNames(), "*") {
			return "model", m.ColumnNames(), true
		}
		if m.Docs != nil && len(m.Docs.Columns) > 0 {
			return "model", m.Docs.ColumnNames(), true
		}
		return "model", nil, false
	}
	if s := v.project.Source(relation); s != nil {
		if len(s.Columns) > 0 {
			return "source", s.ColumnNames(), true
		}
		return "source", nil, false
	}
	return "", nil, false
}

func (v *Validator) hasColumn(columns []string, name string) bool {
	for _, c := range columns {
		if v.dialect.NamesEqual(c, name) {
			return true
		}
	}
	return false
}

func missingColumnMessage(noun string, cr core.ConsumedRef) string {
	msg := fmt.Sprintf("%s %q does not produce column %q", noun, cr.Relation, cr.Column)
	if cr.Context != "" {
		msg += fmt.Sprintf(" (consumed by %q)", cr.Context)
	}
	return msg
}

func kindNoun(kind core.ConsumedKind) string {
	switch kind {
	case core.ConsumedCTE:
		return "cte"
	case core.ConsumedSubquery:
		return "subquery"
	case core.ConsumedInternal:
		return "alias"
	default:
		return "relation"
	}
}
