package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/erikmunkby/dbt-toolbox/internal/state"
	"github.com/erikmunkby/dbt-toolbox/pkg/core"
	"github.com/erikmunkby/dbt-toolbox/pkg/lineage"
)

// resolveOutcome collects cache statistics for the resolve step.
type resolveOutcome struct {
	hits   int
	misses int
}

// resolveAll computes column lineage for every rendered model, one
// execution level at a time. Members of a level are independent and
// resolve in parallel; their parents finished in earlier levels, so
// upstream column sets are final when a model reads them. The lineage
// cache is keyed by transitive fingerprint, which embeds every
// ancestor, so a hit can never serve stale columns.
func (e *Engine) resolveAll(ctx context.Context, failures map[string]error) (*resolveOutcome, error) {
	out := &resolveOutcome{}

	levels, err := e.graph.GetExecutionLevels()
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	for _, level := range levels {
		eg, ctx := errgroup.WithContext(ctx)
		eg.SetLimit(e.threads)

		for _, name := range level {
			mu.Lock()
			_, failed := failures[name]
			mu.Unlock()
			if failed {
				continue
			}
			m, ok := e.registry.Model(name)
			if !ok {
				continue
			}

			eg.Go(func() error {
				rec, ok, err := e.store.GetLineage(ctx, m.Fingerprint)
				if err != nil {
					return err
				}
				if ok {
					m.Columns = rec.Columns
					m.ConsumedRefs = rec.ConsumedRefs
					mu.Lock()
					out.hits++
					mu.Unlock()
					return nil
				}

				res, analyzeErr := lineage.Analyze(m.RenderedSQL, lineage.Options{
					Dialect: e.dialect,
					Schema:  e.upstreamSchema(m),
				})
				if analyzeErr != nil {
					e.logger.Debug("resolve failed", "model", m.Name, "error", analyzeErr.Error())
					mu.Lock()
					failures[m.Name] = core.NewMalformedQueryError(m.Name, analyzeErr)
					mu.Unlock()
					return nil
				}

				m.Columns = res.Columns
				m.ConsumedRefs = res.Consumed
				if err := e.store.PutLineage(ctx, m.Fingerprint, &state.LineageRecord{
					Model:        m.Name,
					Columns:      res.Columns,
					ConsumedRefs: res.Consumed,
					Relations:    res.Relations,
				}); err != nil {
					return err
				}
				mu.Lock()
				out.misses++
				mu.Unlock()
				return nil
			})
		}

		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	e.logger.Debug("resolve completed", "cache_hits", out.hits, "cache_misses", out.misses)

	return out, nil
}

// upstreamSchema assembles the known column sets of a model's direct
// upstream relations, keyed the way the rendered SQL names them.
func (e *Engine) upstreamSchema(m *core.Model) lineage.Schema {
	schema := make(lineage.Schema)
	for _, ref := range m.Refs {
		switch ref.Kind {
		case core.RefModel:
			if pm, ok := e.registry.Model(ref.Name); ok {
				if cols := producedColumns(pm); len(cols) > 0 {
					schema[ref.Name] = cols
				}
			}
		case core.RefSource:
			if s, ok := e.registry.Source(ref.Name); ok && len(s.Columns) > 0 {
				schema[ref.Name] = s.ColumnNames()
			}
		}
	}
	return schema
}

// producedColumns returns the columns downstream models see for one
// upstream model: computed lineage when complete, declared docs as
// fallback when analysis failed or left a star unexpanded.
func producedColumns(m *core.Model) []string {
	cols := m.ColumnNames()
	complete := len(cols) > 0 && !containsStar(cols)
	if complete {
		return cols
	}
	if m.Docs != nil && len(m.Docs.Columns) > 0 {
		return m.Docs.ColumnNames()
	}
	return cols
}

func containsStar(cols []string) bool {
	for _, c := range cols {
		if c == "*" {
			return true
		}
	}
	return false
}
