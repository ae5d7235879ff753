package engine

import (
	"github.com/erikmunkby/dbt-toolbox/internal/dag"
	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

// buildGraph constructs the dependency graph from render-discovered
// references. Every model is a node; edges run parent to child for
// model references only. Source references carry no node but still
// participate in fingerprints.
func (e *Engine) buildGraph(models []*core.Model, failures map[string]error) *dag.Graph {
	g := dag.New()

	for _, m := range models {
		g.AddNode(m.Name)
	}
	for _, m := range models {
		if _, failed := failures[m.Name]; failed {
			continue
		}
		parents, _, err := e.registry.Dependencies(m)
		if err != nil {
			// Rendering verified every reference, so this only fires
			// when the registry changed mid-run.
			failures[m.Name] = err
			continue
		}
		for _, p := range parents {
			// Parents are registered models, so the edge cannot name a
			// missing node. A self-reference forms a one-node cycle and
			// surfaces through the cycle check.
			_ = g.AddEdge(p, m.Name)
		}
	}

	return g
}

// computeFingerprints fills in transitive fingerprints in dependency
// order: each model folds its local fingerprint with the fingerprints
// of its parent models and referenced source declarations. A model
// whose render failed contributes its local fingerprint alone, which
// still shifts every descendant once the model is fixed.
func (e *Engine) computeFingerprints(order []string) {
	for _, name := range order {
		m, ok := e.registry.Model(name)
		if !ok {
			continue
		}

		var upstream []string
		for _, p := range e.graph.GetParents(name) {
			if pm, ok := e.registry.Model(p); ok {
				upstream = append(upstream, pm.Fingerprint)
			}
		}
		for _, rel := range m.RefNames(core.RefSource) {
			if s, ok := e.registry.Source(rel); ok {
				upstream = append(upstream, core.SourceFingerprint(s))
			}
		}

		m.Fingerprint = core.Fingerprint(m.LocalFingerprint, upstream)
	}
}
