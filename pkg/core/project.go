package core

import "sort"

// Project is the fully-loaded view of a transformation project: every
// model, every declared source, and the macro set hash the render stage
// folds into fingerprints. Construct one with NewProject and treat it
// as immutable afterwards; pipeline stages receive it by pointer but
// never mutate the maps.
type Project struct {
	models  map[string]*Model
	sources map[string]*SourceTable

	// MacroHash is the deterministic hash over every loaded macro
	// definition. Any macro edit changes it, which in turn changes
	// every model's local fingerprint.
	MacroHash string

	// Dialect is the SQL dialect tag the project is configured for.
	Dialect string
}

// NewProject builds a Project from loaded models and sources. Sources
// are keyed by their qualified "source.table" relation name.
func NewProject(models []*Model, sources []*SourceTable, macroHash, dialect string) *Project {
	p := &Project{
		models:    make(map[string]*Model, len(models)),
		sources:   make(map[string]*SourceTable, len(sources)),
		MacroHash: macroHash,
		Dialect:   dialect,
	}
	for _, m := range models {
		p.models[m.Name] = m
	}
	for _, s := range sources {
		p.sources[s.RelationName()] = s
	}
	return p
}

// Model returns the model with the given name, or nil.
func (p *Project) Model(name string) *Model {
	return p.models[name]
}

// HasModel reports whether a model with the given name exists.
func (p *Project) HasModel(name string) bool {
	_, ok := p.models[name]
	return ok
}

// Source returns the source table for a qualified "source.table" name,
// or nil.
func (p *Project) Source(relation string) *SourceTable {
	return p.sources[relation]
}

// HasSource reports whether a source with the qualified name exists.
func (p *Project) HasSource(relation string) bool {
	_, ok := p.sources[relation]
	return ok
}

// Models returns all models sorted by name.
func (p *Project) Models() []*Model {
	out := make([]*Model, 0, len(p.models))
	for _, m := range p.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Sources returns all source tables sorted by qualified name.
func (p *Project) Sources() []*SourceTable {
	out := make([]*SourceTable, 0, len(p.sources))
	for _, s := range p.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RelationName() < out[j].RelationName()
	})
	return out
}

// ModelCount returns the number of models in the project.
func (p *Project) ModelCount() int { return len(p.models) }

// SourceCount returns the number of declared source tables.
func (p *Project) SourceCount() int { return len(p.sources) }
