package template

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

// DefaultMaxDepth bounds macro expansion nesting when the context does
// not set a limit.
const DefaultMaxDepth = 50

// Context supplies everything a render needs. Lookups come from the
// caller so the renderer never reaches into project state on its own.
type Context struct {
	// Model is the name of the model being rendered, used in errors.
	Model string
	// LookupRef maps a model name to its relation identifier.
	LookupRef func(name string) (string, bool)
	// LookupSource maps a source and table name to a relation identifier.
	LookupSource func(source, table string) (string, bool)
	// Vars holds the project variables for var() directives.
	Vars map[string]any
	// Macros holds the loaded macro set by name.
	Macros map[string]*Macro
	// MaxDepth bounds macro expansion nesting; <= 0 means DefaultMaxDepth.
	MaxDepth int
	// Logger receives warnings; nil discards them.
	Logger *slog.Logger
}

// Output is the result of rendering one model.
type Output struct {
	// SQL is the rendered, directive-free text.
	SQL string
	// Refs lists the discovered upstream references in first-use order,
	// duplicates collapsed.
	Refs []core.Reference
	// Config holds the captured config() options.
	Config map[string]string
	// MacrosUsed lists the macros the render expanded, sorted.
	MacrosUsed []string
}

// Materialized returns the captured materialized config value, if any.
func (o *Output) Materialized() string {
	return o.Config["materialized"]
}

// Enabled reports whether the model is enabled; only an explicit
// enabled=false disables it.
func (o *Output) Enabled() bool {
	return o.Config["enabled"] != "false"
}

// Render walks the template and produces the rendered SQL. Rendering
// is pure: the same template, macro set, and vars always produce the
// same output.
func Render(tmpl *Template, ctx *Context) (*Output, error) {
	logger := ctx.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxDepth := ctx.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	r := &renderer{
		ctx:      ctx,
		logger:   logger,
		maxDepth: maxDepth,
		config:   make(map[string]string),
		used:     make(map[string]bool),
	}
	if err := r.renderNodes(tmpl.Nodes, nil); err != nil {
		return nil, err
	}

	out := &Output{
		SQL:    r.out.String(),
		Refs:   r.refs,
		Config: r.config,
	}
	for name := range r.used {
		out.MacrosUsed = append(out.MacrosUsed, name)
	}
	sort.Strings(out.MacrosUsed)
	return out, nil
}

// RenderString parses and renders input in one step.
func RenderString(input, file string, ctx *Context) (*Output, error) {
	tmpl, err := ParseString(input, file)
	if err != nil {
		return nil, err
	}
	return Render(tmpl, ctx)
}

type renderer struct {
	ctx      *Context
	logger   *slog.Logger
	maxDepth int
	out      strings.Builder
	refs     []core.Reference
	config   map[string]string
	used     map[string]bool
	depth    int
}

// renderNodes renders a node list. scope holds the parameter bindings
// of the macro body being rendered, nil at the top level.
func (r *renderer) renderNodes(nodes []Node, scope map[string]string) error {
	for _, node := range nodes {
		if err := r.renderNode(node, scope); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) renderNode(node Node, scope map[string]string) error {
	switch n := node.(type) {
	case *TextNode:
		r.out.WriteString(n.Text)

	case *RefNode:
		if r.ctx.LookupRef == nil {
			return NewRenderErrorf(n.Pos(), "ref(%q) used without a model lookup", n.Target)
		}
		relation, ok := r.ctx.LookupRef(n.Target)
		if !ok {
			return core.NewUnresolvedReferenceError(r.ctx.Model, core.RefModel, n.Target)
		}
		r.out.WriteString(relation)
		r.addRef(core.RefModel, n.Target)

	case *SourceNode:
		target := n.Source + "." + n.Table
		if r.ctx.LookupSource == nil {
			return NewRenderErrorf(n.Pos(), "source(%q, %q) used without a source lookup", n.Source, n.Table)
		}
		relation, ok := r.ctx.LookupSource(n.Source, n.Table)
		if !ok {
			return core.NewUnresolvedReferenceError(r.ctx.Model, core.RefSource, target)
		}
		r.out.WriteString(relation)
		r.addRef(core.RefSource, target)

	case *ConfigNode:
		for _, opt := range n.Options {
			r.config[opt.Key] = opt.Value
		}

	case *VarNode:
		if value, ok := r.ctx.Vars[n.Name]; ok {
			r.out.WriteString(fmt.Sprint(value))
			return nil
		}
		if n.HasDefault {
			r.out.WriteString(n.Default)
			return nil
		}
		r.logger.Warn("undefined project variable renders empty",
			"var", n.Name, "model", r.ctx.Model)

	case *NameNode:
		value, ok := scope[n.Name]
		if !ok {
			return NewRenderErrorf(n.Pos(), "undefined name %q", n.Name)
		}
		r.out.WriteString(value)

	case *MacroCallNode:
		return r.expandMacro(n, scope)

	default:
		return NewRenderErrorf(node.Pos(), "unhandled template node %T", node)
	}
	return nil
}

// expandMacro substitutes a macro call with its rendered body. The
// body renders with a fresh binding frame, so parameters do not leak
// between macros.
func (r *renderer) expandMacro(call *MacroCallNode, scope map[string]string) error {
	macro, ok := r.ctx.Macros[call.Name]
	if !ok {
		return core.NewUnresolvedReferenceError(r.ctx.Model, core.RefMacro, call.Name)
	}
	if r.depth >= r.maxDepth {
		return core.NewMacroRecursionError(r.ctx.Model, call.Name, r.maxDepth)
	}

	frame, err := r.bindArgs(macro, call, scope)
	if err != nil {
		return err
	}
	r.used[call.Name] = true

	r.depth++
	err = r.renderNodes(macro.Body.Nodes, frame)
	r.depth--
	return err
}

// bindArgs binds call arguments to macro parameters: positionals in
// order, then keywords by name, then declared defaults.
func (r *renderer) bindArgs(macro *Macro, call *MacroCallNode, scope map[string]string) (map[string]string, error) {
	frame := make(map[string]string, len(macro.Params))

	pos := 0
	for _, arg := range call.Args {
		if arg.Name == "" {
			if pos >= len(macro.Params) {
				return nil, NewRenderErrorf(call.Pos(), "macro %q takes at most %d arguments",
					macro.Name, len(macro.Params))
			}
			frame[macro.Params[pos].Name] = r.resolveArg(arg, scope)
			pos++
			continue
		}

		if !macroHasParam(macro, arg.Name) {
			return nil, NewRenderErrorf(call.Pos(), "macro %q has no parameter %q", macro.Name, arg.Name)
		}
		if _, dup := frame[arg.Name]; dup {
			return nil, NewRenderErrorf(call.Pos(), "macro %q got multiple values for %q", macro.Name, arg.Name)
		}
		frame[arg.Name] = r.resolveArg(arg, scope)
	}

	for _, param := range macro.Params {
		if _, bound := frame[param.Name]; bound {
			continue
		}
		if !param.HasDefault {
			return nil, NewRenderErrorf(call.Pos(), "macro %q missing argument %q", macro.Name, param.Name)
		}
		frame[param.Name] = param.Default
	}

	return frame, nil
}

// resolveArg produces the textual value of an argument. A bare name
// bound in the calling scope passes its value through; an unbound name
// passes through as text.
func (r *renderer) resolveArg(arg Arg, scope map[string]string) string {
	if arg.Kind == ArgName {
		if value, ok := scope[arg.Text]; ok {
			return value
		}
	}
	return arg.Text
}

func macroHasParam(macro *Macro, name string) bool {
	for _, p := range macro.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// addRef appends a reference unless the same target is already
// recorded.
func (r *renderer) addRef(kind core.RefKind, name string) {
	for _, ref := range r.refs {
		if ref.Kind == kind && ref.Name == name {
			return
		}
	}
	r.refs = append(r.refs, core.Reference{Kind: kind, Name: name})
}
