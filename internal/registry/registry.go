// Package registry indexes a project's model, source, and macro names
// so the render and graph stages can resolve references without
// touching the filesystem.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/erikmunkby/dbt-toolbox/internal/template"
	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

// Registry holds the discovered names of one project. Registration
// happens during discovery; lookups run concurrently during render.
type Registry struct {
	mu sync.RWMutex

	// models maps model name to its definition.
	models map[string]*core.Model

	// sources maps qualified "source.table" names to declarations.
	sources map[string]*core.SourceTable

	// macros is the loaded macro set, keyed by macro name.
	macros map[string]*template.Macro
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		models:  make(map[string]*core.Model),
		sources: make(map[string]*core.SourceTable),
		macros:  make(map[string]*template.Macro),
	}
}

// AddModel registers a model under its name. Two model files with the
// same basename collide: references could not be disambiguated, so the
// second registration fails.
func (r *Registry) AddModel(m *core.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.models[m.Name]; ok {
		return &DuplicateError{Kind: "model", Name: m.Name, ExistingFile: existing.FilePath}
	}
	r.models[m.Name] = m
	return nil
}

// AddSource registers a source table under its qualified name.
func (r *Registry) AddSource(s *core.SourceTable) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	relation := s.RelationName()
	if existing, ok := r.sources[relation]; ok {
		return &DuplicateError{Kind: "source", Name: relation, ExistingFile: existing.FilePath}
	}
	r.sources[relation] = s
	return nil
}

// SetMacros installs the loaded macro set.
func (r *Registry) SetMacros(macros map[string]*template.Macro) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.macros = macros
}

// LookupRef resolves a ref() target to its relation identifier. The
// signature matches template.Context.LookupRef.
func (r *Registry) LookupRef(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.models[name]; ok {
		return name, true
	}
	return "", false
}

// LookupSource resolves a source() pair to its qualified relation. The
// signature matches template.Context.LookupSource.
func (r *Registry) LookupSource(source, table string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	relation := source + "." + table
	if _, ok := r.sources[relation]; ok {
		return relation, true
	}
	return "", false
}

// Model returns the registered model with the given name.
func (r *Registry) Model(name string) (*core.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Source returns the source declaration for a qualified name.
func (r *Registry) Source(relation string) (*core.SourceTable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[relation]
	return s, ok
}

// Macros returns the installed macro set.
func (r *Registry) Macros() map[string]*template.Macro {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.macros
}

// Models returns all registered models sorted by name.
func (r *Registry) Models() []*core.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*core.Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Sources returns all registered sources sorted by qualified name.
func (r *Registry) Sources() []*core.SourceTable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*core.SourceTable, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelationName() < out[j].RelationName() })
	return out
}

// ModelCount returns the number of registered models.
func (r *Registry) ModelCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// SourceCount returns the number of registered sources.
func (r *Registry) SourceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// Dependencies splits a model's recorded references into parent model
// names and source relations, deduplicated in first-use order. A model
// reference whose target is not registered fails: renders replayed
// from cache can carry references to models deleted since the cached
// run.
func (r *Registry) Dependencies(m *core.Model) (parents, sources []string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seenParent := make(map[string]bool)
	seenSource := make(map[string]bool)

	for _, ref := range m.Refs {
		switch ref.Kind {
		case core.RefModel:
			if _, ok := r.models[ref.Name]; !ok {
				return nil, nil, core.NewUnresolvedReferenceError(m.Name, core.RefModel, ref.Name)
			}
			if !seenParent[ref.Name] {
				seenParent[ref.Name] = true
				parents = append(parents, ref.Name)
			}
		case core.RefSource:
			if _, ok := r.sources[ref.Name]; !ok {
				return nil, nil, core.NewUnresolvedReferenceError(m.Name, core.RefSource, ref.Name)
			}
			if !seenSource[ref.Name] {
				seenSource[ref.Name] = true
				sources = append(sources, ref.Name)
			}
		}
	}
	return parents, sources, nil
}

// DuplicateError reports a name registered twice.
type DuplicateError struct {
	Kind         string // "model" or "source"
	Name         string
	ExistingFile string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q already defined in %s", e.Kind, e.Name, e.ExistingFile)
}
