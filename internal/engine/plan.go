package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erikmunkby/dbt-toolbox/internal/state"
	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

// ReasonCode classifies why a model would rebuild.
type ReasonCode string

// Rebuild reasons, in the order they are checked.
const (
	// ReasonNotCached marks a model with no recorded analysis.
	ReasonNotCached ReasonCode = "not-cached"
	// ReasonModelStale marks a model whose own text changed or whose
	// cached analysis aged past the validity window.
	ReasonModelStale ReasonCode = "model-stale"
	// ReasonUpstreamMacros marks a macro-using model after any macro
	// definition changed.
	ReasonUpstreamMacros ReasonCode = "upstream-macros-changed"
	// ReasonUpstreamModels marks a model whose upstream models or
	// source declarations changed.
	ReasonUpstreamModels ReasonCode = "upstream-models-changed"
	// ReasonSelected marks an otherwise fresh model that an explicit
	// selection names.
	ReasonSelected ReasonCode = "selected"
)

// PlanReason is one rebuild reason with human-readable detail.
type PlanReason struct {
	Code   ReasonCode `json:"code"`
	Detail string     `json:"detail,omitempty"`
}

// PlanEntry is one model the plan would rebuild, with every reason
// that applies.
type PlanEntry struct {
	Model   string       `json:"model"`
	Reasons []PlanReason `json:"reasons"`
}

// Plan is the execution plan for one selection: which models would
// rebuild and why. Entries follow dependency order. Models that are up
// to date are counted but listed only when an explicit selection names
// them.
type Plan struct {
	Selection string      `json:"selection,omitempty"`
	Total     int         `json:"total"`
	UpToDate  int         `json:"up_to_date"`
	Entries   []PlanEntry `json:"entries"`
}

// BuildPlan computes the execution plan for a dbt-style selection
// ("model", "+model", "model+", "+model+", space-separated atoms; the
// empty selection covers every model). It renders and fingerprints the
// project but never moves the stored baseline, so planning is
// side-effect free and repeatable.
func (e *Engine) BuildPlan(ctx context.Context, selection string) (*Plan, error) {
	p, err := e.prepare(ctx)
	if err != nil {
		return nil, err
	}

	states, err := e.store.AllModelStates(ctx)
	if err != nil {
		return nil, err
	}

	closure, err := e.selectionClosure(selection)
	if err != nil {
		return nil, err
	}

	explicit := strings.TrimSpace(selection) != ""
	now := time.Now().UTC()
	plan := &Plan{Selection: strings.TrimSpace(selection)}

	// Staleness propagates along edges, so walk in dependency order
	// over every model, filtering to the selection afterwards.
	rebuilt := make(map[string]bool)
	for _, name := range p.order {
		m, ok := e.registry.Model(name)
		if !ok {
			continue
		}
		reasons := e.rebuildReasons(m, states[name], rebuilt, now)
		if ferr, failed := p.failures[name]; failed {
			// No valid analysis exists for the model's current text, so
			// it and everything downstream would rerun.
			reasons = []PlanReason{{Code: ReasonModelStale, Detail: fmt.Sprintf("analysis failed: %v", ferr)}}
		}
		rebuilt[name] = len(reasons) > 0

		if !closure[name] || p.disabled[name] {
			continue
		}
		plan.Total++
		if len(reasons) == 0 {
			plan.UpToDate++
			if !explicit {
				continue
			}
			// Explicitly selected models are listed even when fresh.
			reasons = []PlanReason{{
				Code:   ReasonSelected,
				Detail: fmt.Sprintf("matched selection %q", plan.Selection),
			}}
		}
		plan.Entries = append(plan.Entries, PlanEntry{Model: name, Reasons: reasons})
	}

	return plan, nil
}

// rebuildReasons collects every reason one model needs re-analysis,
// comparing its current fingerprints against the stored baseline.
// rebuilt holds the verdicts of all upstream models, which the
// dependency-ordered walk has already produced.
func (e *Engine) rebuildReasons(m *core.Model, st *state.ModelState, rebuilt map[string]bool, now time.Time) []PlanReason {
	if st == nil {
		return []PlanReason{{Code: ReasonNotCached, Detail: "never analyzed"}}
	}

	var reasons []PlanReason

	if e.cacheValidityMinutes > 0 {
		age := now.Sub(st.AnalyzedAt)
		if age > time.Duration(e.cacheValidityMinutes)*time.Minute {
			reasons = append(reasons, PlanReason{
				Code:   ReasonModelStale,
				Detail: fmt.Sprintf("cached analysis expired (%dm limit)", e.cacheValidityMinutes),
			})
		}
	}

	// The environment hash folds into every local fingerprint, so a raw
	// comparison cannot tell a text edit from a macro edit. Recomputing
	// with the stored hash isolates the text: if the raw SQL still
	// hashes to the stored local fingerprint, only the environment moved.
	if st.LocalFingerprint != m.LocalFingerprint {
		if st.MacroHash != e.envHash && len(m.MacrosUsed) > 0 {
			reasons = append(reasons, PlanReason{
				Code:   ReasonUpstreamMacros,
				Detail: fmt.Sprintf("macro set changed; model uses %s", strings.Join(m.MacrosUsed, ", ")),
			})
		}
		if core.LocalFingerprint(m.RawSQL, st.MacroHash) != st.LocalFingerprint {
			reasons = append(reasons, PlanReason{Code: ReasonModelStale, Detail: "model text changed"})
		}
	}

	var changed []string
	for _, parent := range e.graph.GetParents(m.Name) {
		if rebuilt[parent] {
			changed = append(changed, parent)
		}
	}
	switch {
	case len(changed) > 0:
		sort.Strings(changed)
		reasons = append(reasons, PlanReason{
			Code:   ReasonUpstreamModels,
			Detail: fmt.Sprintf("upstream models changed: %s", strings.Join(changed, ", ")),
		})
	case st.Fingerprint != m.Fingerprint && st.LocalFingerprint == m.LocalFingerprint:
		// Local state is untouched and no parent moved, so the drift
		// comes from a referenced source declaration.
		reasons = append(reasons, PlanReason{
			Code:   ReasonUpstreamModels,
			Detail: "upstream source declarations changed",
		})
	}

	return reasons
}

// selectionClosure expands a dbt-style selection into the set of model
// names it covers.
func (e *Engine) selectionClosure(selection string) (map[string]bool, error) {
	closure := make(map[string]bool)

	atoms := strings.Fields(selection)
	if len(atoms) == 0 {
		for _, name := range e.graph.Nodes() {
			closure[name] = true
		}
		return closure, nil
	}

	for _, atom := range atoms {
		upstream := strings.HasPrefix(atom, "+")
		downstream := strings.HasSuffix(atom, "+")
		name := strings.TrimSuffix(strings.TrimPrefix(atom, "+"), "+")
		if name == "" {
			return nil, fmt.Errorf("invalid selection %q", atom)
		}
		if !e.graph.Has(name) {
			return nil, fmt.Errorf("unknown model %q in selection", name)
		}

		closure[name] = true
		if upstream {
			for _, a := range e.graph.Ancestors(name) {
				closure[a] = true
			}
		}
		if downstream {
			for _, d := range e.graph.Descendants(name) {
				closure[d] = true
			}
		}
	}
	return closure, nil
}
