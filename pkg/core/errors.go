package core

import (
	"fmt"
	"strings"
)

// UnresolvedReferenceError reports a directive that names a model or
// source the project does not define. It fails only the model that
// carries the directive; analysis of sibling models proceeds.
type UnresolvedReferenceError struct {
	// Model is the model whose SQL contains the directive.
	Model string
	// Kind distinguishes ref from source directives.
	Kind RefKind
	// Target is the name the directive asked for.
	Target string
}

// NewUnresolvedReferenceError creates an unresolved reference error.
func NewUnresolvedReferenceError(model string, kind RefKind, target string) *UnresolvedReferenceError {
	return &UnresolvedReferenceError{Model: model, Kind: kind, Target: target}
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("model %q references unknown %s %q", e.Model, e.Kind, e.Target)
}

// MacroRecursionError reports a macro expansion that exceeded the
// configured depth limit, which indicates direct or mutual recursion.
type MacroRecursionError struct {
	Model string
	// Macro is the macro whose expansion tripped the limit.
	Macro string
	// Depth is the limit that was exceeded.
	Depth int
}

// NewMacroRecursionError creates a macro recursion error.
func NewMacroRecursionError(model, macro string, depth int) *MacroRecursionError {
	return &MacroRecursionError{Model: model, Macro: macro, Depth: depth}
}

func (e *MacroRecursionError) Error() string {
	return fmt.Sprintf("model %q: macro %q exceeded expansion depth %d (recursive macro?)", e.Model, e.Macro, e.Depth)
}

// MalformedQueryError reports SQL that could not be parsed or resolved.
// The model it belongs to is excluded from lineage; siblings proceed.
type MalformedQueryError struct {
	Model string
	Err   error
}

// NewMalformedQueryError wraps a parse or resolution failure.
func NewMalformedQueryError(model string, err error) *MalformedQueryError {
	return &MalformedQueryError{Model: model, Err: err}
}

func (e *MalformedQueryError) Error() string {
	return fmt.Sprintf("model %q: malformed query: %v", e.Model, e.Err)
}

func (e *MalformedQueryError) Unwrap() error { return e.Err }

// CyclicDependencyError reports a reference cycle in the model graph.
// Unlike the per-model errors above it aborts the whole run: no
// topological order exists, so no model can be safely analyzed.
type CyclicDependencyError struct {
	// Cycle lists the models along the cycle; the first name is
	// repeated at the end to close the loop.
	Cycle []string
}

// NewCyclicDependencyError creates a cycle error from the ordered
// node path.
func NewCyclicDependencyError(cycle []string) *CyclicDependencyError {
	return &CyclicDependencyError{Cycle: cycle}
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}
