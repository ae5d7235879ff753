package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/erikmunkby/dbt-toolbox/internal/state"
	"github.com/erikmunkby/dbt-toolbox/internal/template"
	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

// renderOutcome collects what the render step learned beyond the model
// fields themselves.
type renderOutcome struct {
	// failures maps model name to its render error. Failed models keep
	// their raw SQL and local fingerprint but have no rendered SQL.
	failures map[string]error
	// disabled marks models whose config set enabled=false.
	disabled map[string]bool

	hits   int
	misses int
}

// renderAll renders every model, consulting the render cache by local
// fingerprint first. A cache hit restores the full render outcome; a
// miss expands the template and writes the record back. Per-model
// render errors are collected without blocking siblings; only store
// problems abort.
func (e *Engine) renderAll(ctx context.Context, models []*core.Model) (*renderOutcome, error) {
	out := &renderOutcome{
		failures: make(map[string]error),
		disabled: make(map[string]bool),
	}

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.threads)

	for _, m := range models {
		eg.Go(func() error {
			m.LocalFingerprint = core.LocalFingerprint(m.RawSQL, e.envHash)

			rec, ok, err := e.store.GetRender(ctx, m.LocalFingerprint)
			if err != nil {
				return err
			}
			if ok {
				m.RenderedSQL = rec.SQL
				m.Refs = rec.Refs
				m.Materialized = rec.Materialized
				m.MacrosUsed = rec.MacrosUsed
				mu.Lock()
				if rec.Disabled {
					out.disabled[m.Name] = true
				}
				out.hits++
				mu.Unlock()
				return nil
			}

			rendered, renderErr := template.RenderString(m.RawSQL, m.FilePath, &template.Context{
				Model:        m.Name,
				LookupRef:    e.registry.LookupRef,
				LookupSource: e.registry.LookupSource,
				Vars:         e.vars,
				Macros:       e.registry.Macros(),
				MaxDepth:     e.macroDepthLimit,
				Logger:       e.logger,
			})
			if renderErr != nil {
				e.logger.Debug("render failed", "model", m.Name, "error", renderErr.Error())
				mu.Lock()
				out.failures[m.Name] = renderErr
				mu.Unlock()
				return nil
			}

			m.RenderedSQL = rendered.SQL
			m.Refs = rendered.Refs
			m.Materialized = rendered.Materialized()
			m.MacrosUsed = rendered.MacrosUsed

			disabled := !rendered.Enabled()
			if err := e.store.PutRender(ctx, m.LocalFingerprint, &state.RenderRecord{
				Model:        m.Name,
				SQL:          rendered.SQL,
				Refs:         rendered.Refs,
				Materialized: rendered.Materialized(),
				MacrosUsed:   rendered.MacrosUsed,
				Disabled:     disabled,
			}); err != nil {
				return err
			}

			mu.Lock()
			if disabled {
				out.disabled[m.Name] = true
			}
			out.misses++
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("render completed",
		"models", len(models), "cache_hits", out.hits, "failures", len(out.failures))

	return out, nil
}
