// Package template renders model SQL written in the project templating
// dialect: {{ ref('model') }}, {{ source('src', 'table') }},
// {{ config(...) }}, {{ var('name') }}, macro calls, {# comments #},
// and the {{- -}} / {%- -%} whitespace trim markers. Statement blocks
// ({% macro %} and friends) are tokenized here but assembled by the
// macro loader.
package template

// Position tracks source location for error reporting.
type Position struct {
	File   string
	Line   int
	Column int
}

// Node is the interface for all template AST nodes.
type Node interface {
	Pos() Position
	node() // marker method to restrict implementation
}

// nodeBase provides common Position handling for all nodes.
type nodeBase struct {
	pos Position
}

func (n *nodeBase) Pos() Position { return n.pos }
func (n *nodeBase) node()         {}

// TextNode represents literal SQL text (passed through unchanged).
type TextNode struct {
	nodeBase
	Text string
}

// RefNode represents a {{ ref('model') }} directive. Rendering
// substitutes the target model's relation identifier and records a
// model Reference.
type RefNode struct {
	nodeBase
	Target string
}

// SourceNode represents a {{ source('src', 'table') }} directive.
// Rendering substitutes the qualified identifier and records a source
// Reference.
type SourceNode struct {
	nodeBase
	Source string
	Table  string
}

// ConfigNode represents a {{ config(key=value, ...) }} directive. It
// renders to the empty string; the options are captured onto the
// render output.
type ConfigNode struct {
	nodeBase
	Options []ConfigOption
}

// ConfigOption is one key=value pair of a config() directive, in
// written order.
type ConfigOption struct {
	Key   string
	Value string
}

// VarNode represents {{ var('name') }} or {{ var('name', default) }}.
type VarNode struct {
	nodeBase
	Name       string
	Default    string
	HasDefault bool
}

// NameNode represents a bare {{ name }} directive. Inside a macro body
// it resolves to the bound parameter value; anywhere else it is a
// render error.
type NameNode struct {
	nodeBase
	Name string
}

// ArgKind classifies a directive call argument.
type ArgKind int

// Argument kinds.
const (
	ArgString ArgKind = iota // quoted string literal
	ArgNumber                // numeric literal
	ArgBool                  // true / false
	ArgName                  // bare identifier
)

// Arg is one argument of a macro or builtin call. Name is empty for
// positional arguments. Text holds the literal value with string
// quotes removed.
type Arg struct {
	Name string
	Kind ArgKind
	Text string
}

// MacroCallNode represents a call to a project macro:
// {{ macro_name(args...) }}.
type MacroCallNode struct {
	nodeBase
	Name string
	Args []Arg
}

// Param is one declared parameter of a macro definition.
type Param struct {
	Name       string
	Default    string
	HasDefault bool
}

// Macro is a loaded macro definition: a parsed body plus its
// parameter list. The macro loader produces these from macros/*.sql.
// Source holds the canonical definition text and feeds the macro-set
// hash, so an edit to any macro body changes the hash.
type Macro struct {
	Name   string
	File   string
	Params []Param
	Body   *Template
	Source string
}

// Template represents a complete parsed template.
type Template struct {
	Nodes []Node
	File  string // Source file path
}
