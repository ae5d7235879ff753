package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/erikmunkby/dbt-toolbox/internal/state"
	"github.com/erikmunkby/dbt-toolbox/internal/validate"
	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

// Result is the outcome of one analysis run.
type Result struct {
	RunID string `json:"run_id"`

	Discovery *DiscoveryResult `json:"discovery"`

	// Diagnostics holds every validation finding plus one error entry
	// per failed model, ordered by model then column.
	Diagnostics []core.Diagnostic `json:"diagnostics"`

	// Failures maps model name to the error that stopped its analysis.
	// A failed model never aborts the run.
	Failures map[string]error `json:"-"`

	Models  int `json:"models"`
	Sources int `json:"sources"`

	RenderHits    int `json:"render_hits"`
	RenderMisses  int `json:"render_misses"`
	LineageHits   int `json:"lineage_hits"`
	LineageMisses int `json:"lineage_misses"`

	Duration time.Duration `json:"duration"`
}

// HasErrors reports whether the run produced any error-severity
// diagnostic or failed model.
func (r *Result) HasErrors() bool {
	return len(r.Failures) > 0 || core.HasErrors(r.Diagnostics)
}

// Summary returns a human-readable summary.
func (r *Result) Summary() string {
	counts := core.CountBySeverity(r.Diagnostics)
	return fmt.Sprintf("Models: %d | Errors: %d | Warnings: %d | Duration: %s",
		r.Models, counts[core.SeverityError], counts[core.SeverityWarning],
		r.Duration.Round(time.Millisecond))
}

// prep carries intermediate pipeline state between the shared prepare
// phase and its consumers.
type prep struct {
	discovery *DiscoveryResult
	order     []string
	failures  map[string]error
	disabled  map[string]bool

	renderHits   int
	renderMisses int
}

// prepare runs the cheap front half of the pipeline: discovery,
// rendering, graph construction, and fingerprinting. It writes nothing
// to model state, so planning can run it without moving the baseline
// the plan compares against. A dependency cycle is the only fatal
// outcome besides store problems.
func (e *Engine) prepare(ctx context.Context) (*prep, error) {
	disc, err := e.Discover()
	if err != nil {
		return nil, err
	}

	models := e.registry.Models()
	rendered, err := e.renderAll(ctx, models)
	if err != nil {
		return nil, err
	}

	e.graph = e.buildGraph(models, rendered.failures)
	order, err := e.graph.TopologicalSort()
	if err != nil {
		return nil, err
	}
	e.computeFingerprints(order)

	e.project = core.NewProject(models, e.registry.Sources(), e.macros.Hash, e.dialect.Name)

	return &prep{
		discovery:    disc,
		order:        order,
		failures:     rendered.failures,
		disabled:     rendered.disabled,
		renderHits:   rendered.hits,
		renderMisses: rendered.misses,
	}, nil
}

// Analyze runs the full pipeline: discover, render, graph,
// fingerprint, resolve, validate, persist. Failed models are collected
// into the result; only a dependency cycle or a store problem aborts
// the run.
func (e *Engine) Analyze(ctx context.Context) (*Result, error) {
	start := time.Now()

	run, err := e.store.StartRun(ctx)
	if err != nil {
		return nil, err
	}

	p, err := e.prepare(ctx)
	if err != nil {
		e.finishRun(ctx, run.ID, state.RunStatusFailed, 0, 1, 0)
		return nil, err
	}

	resolved, err := e.resolveAll(ctx, p.failures)
	if err != nil {
		e.finishRun(ctx, run.ID, state.RunStatusFailed, 0, 1, 0)
		return nil, err
	}

	diags := validate.New(e.project, e.dialect, e.logger).Validate()
	for name, ferr := range p.failures {
		diags = append(diags, e.failureDiagnostic(name, ferr))
	}
	sortDiagnostics(diags)

	if err := e.persist(ctx, p.failures); err != nil {
		e.finishRun(ctx, run.ID, state.RunStatusFailed, 0, 1, 0)
		return nil, err
	}

	counts := core.CountBySeverity(diags)
	models := e.project.ModelCount()
	e.finishRun(ctx, run.ID, state.RunStatusCompleted,
		models, counts[core.SeverityError], counts[core.SeverityWarning])

	result := &Result{
		RunID:         run.ID,
		Discovery:     p.discovery,
		Diagnostics:   diags,
		Failures:      p.failures,
		Models:        models,
		Sources:       e.project.SourceCount(),
		RenderHits:    p.renderHits,
		RenderMisses:  p.renderMisses,
		LineageHits:   resolved.hits,
		LineageMisses: resolved.misses,
		Duration:      time.Since(start),
	}

	e.logger.Info("analysis completed",
		"run_id", result.RunID,
		"models", result.Models,
		"errors", counts[core.SeverityError],
		"warnings", counts[core.SeverityWarning],
		"duration_ms", result.Duration.Milliseconds())

	return result, nil
}

// RenderModel returns the rendered SQL of one model, serving from the
// render cache when the raw text and render environment are unchanged.
func (e *Engine) RenderModel(ctx context.Context, name string) (string, error) {
	p, err := e.prepare(ctx)
	if err != nil {
		return "", err
	}
	if ferr, ok := p.failures[name]; ok {
		return "", ferr
	}
	m, ok := e.registry.Model(name)
	if !ok {
		return "", fmt.Errorf("unknown model %q", name)
	}
	return m.RenderedSQL, nil
}

// persist records the post-run fingerprint baseline: one model_state
// row per successfully analyzed model, rows for deleted models pruned,
// then a flush to disk. Failed models keep their previous row so the
// plan still has a baseline once they are fixed.
func (e *Engine) persist(ctx context.Context, failures map[string]error) error {
	now := time.Now().UTC()
	keep := make([]string, 0, e.project.ModelCount())

	for _, m := range e.project.Models() {
		keep = append(keep, m.Name)
		if _, failed := failures[m.Name]; failed {
			continue
		}
		err := e.store.UpsertModelState(ctx, state.ModelState{
			Name:             m.Name,
			Fingerprint:      m.Fingerprint,
			LocalFingerprint: m.LocalFingerprint,
			MacroHash:        e.envHash,
			AnalyzedAt:       now,
		})
		if err != nil {
			return err
		}
	}

	if _, err := e.store.PruneModelStates(ctx, keep); err != nil {
		return err
	}
	return e.store.Flush(ctx)
}

func (e *Engine) finishRun(ctx context.Context, id string, status state.RunStatus, models, errCount, warnings int) {
	if err := e.store.FinishRun(ctx, id, status, models, errCount, warnings); err != nil {
		e.logger.Warn("failed to record run", "run_id", id, "error", err.Error())
	}
}

// failureDiagnostic converts a per-model failure into an
// error-severity diagnostic so broken models surface in the same
// report as validation findings.
func (e *Engine) failureDiagnostic(model string, err error) core.Diagnostic {
	d := core.Diagnostic{
		Code:     core.CodeAnalysisFailed,
		Severity: core.SeverityError,
		Model:    model,
		Message:  err.Error(),
	}
	if m, ok := e.registry.Model(model); ok {
		d.FilePath = m.FilePath
	}

	var unresolved *core.UnresolvedReferenceError
	var recursion *core.MacroRecursionError
	var malformed *core.MalformedQueryError
	switch {
	case errors.As(err, &unresolved):
		d.Code = core.CodeUnresolvedRef
		d.Relation = unresolved.Target
		d.Message = fmt.Sprintf("references unknown %s %q", unresolved.Kind, unresolved.Target)
	case errors.As(err, &recursion):
		d.Message = fmt.Sprintf("macro %q exceeded expansion depth %d", recursion.Macro, recursion.Depth)
	case errors.As(err, &malformed):
		d.Message = fmt.Sprintf("malformed query: %v", malformed.Err)
	}
	return d
}

func sortDiagnostics(diags []core.Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].Model != diags[j].Model {
			return diags[i].Model < diags[j].Model
		}
		if diags[i].Column != diags[j].Column {
			return diags[i].Column < diags[j].Column
		}
		return diags[i].Code < diags[j].Code
	})
}
