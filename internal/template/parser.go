package template

import "strings"

// ParseString tokenizes and parses a template.
func ParseString(input, file string) (*Template, error) {
	tokens, err := NewLexer(input, file).Tokenize()
	if err != nil {
		return nil, err
	}
	return Parse(tokens, file)
}

// Parse assembles lexed tokens into a Template. Comment tokens and
// text emptied by trim markers are dropped. Statement tokens are
// rejected here: {% %} blocks belong to macro definition files, whose
// loader splits them off before handing the bodies to Parse.
func Parse(tokens []Token, file string) (*Template, error) {
	tmpl := &Template{File: file}

	for _, tok := range tokens {
		switch tok.Type {
		case TokenText:
			if tok.Value == "" {
				continue
			}
			tmpl.Nodes = append(tmpl.Nodes, &TextNode{nodeBase: nodeBase{pos: tok.Pos}, Text: tok.Value})
		case TokenExpr:
			node, err := parseDirective(tok)
			if err != nil {
				return nil, err
			}
			tmpl.Nodes = append(tmpl.Nodes, node)
		case TokenStmt:
			word, _, _ := strings.Cut(tok.Value, " ")
			return nil, NewParseErrorf(tok.Pos, "statement directive %q is not allowed in model SQL", word)
		case TokenComment, TokenEOF:
		}
	}

	return tmpl, nil
}

// parseDirective parses one {{ ... }} expression into its node form.
func parseDirective(tok Token) (Node, error) {
	p := &directiveParser{src: tok.Value, at: tok.Pos}

	p.skipSpace()
	name := p.ident()
	if name == "" {
		return nil, NewParseError(tok.Pos, "empty or malformed expression directive")
	}

	p.skipSpace()
	base := nodeBase{pos: tok.Pos}

	if !p.consume('(') {
		if !p.atEnd() {
			return nil, NewParseErrorf(tok.Pos, "unsupported expression %q", tok.Value)
		}
		return &NameNode{nodeBase: base, Name: name}, nil
	}

	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.atEnd() {
		return nil, NewParseErrorf(tok.Pos, "unexpected content after %s(...)", name)
	}

	switch name {
	case "ref":
		if len(args) != 1 || args[0].Name != "" || args[0].Kind != ArgString {
			return nil, NewParseError(tok.Pos, "ref() takes exactly one quoted model name")
		}
		return &RefNode{nodeBase: base, Target: args[0].Text}, nil

	case "source":
		if len(args) != 2 || args[0].Name != "" || args[1].Name != "" ||
			args[0].Kind != ArgString || args[1].Kind != ArgString {
			return nil, NewParseError(tok.Pos, "source() takes exactly two quoted names")
		}
		return &SourceNode{nodeBase: base, Source: args[0].Text, Table: args[1].Text}, nil

	case "config":
		opts := make([]ConfigOption, 0, len(args))
		for _, a := range args {
			if a.Name == "" {
				return nil, NewParseError(tok.Pos, "config() takes keyword arguments only")
			}
			opts = append(opts, ConfigOption{Key: a.Name, Value: a.Text})
		}
		return &ConfigNode{nodeBase: base, Options: opts}, nil

	case "var":
		if len(args) < 1 || len(args) > 2 || args[0].Name != "" || args[0].Kind != ArgString {
			return nil, NewParseError(tok.Pos, "var() takes a quoted name and an optional default")
		}
		node := &VarNode{nodeBase: base, Name: args[0].Text}
		if len(args) == 2 {
			if args[1].Name != "" || args[1].Kind == ArgName {
				return nil, NewParseError(tok.Pos, "var() default must be a literal")
			}
			node.Default = args[1].Text
			node.HasDefault = true
		}
		return node, nil

	default:
		return &MacroCallNode{nodeBase: base, Name: name, Args: args}, nil
	}
}

// directiveParser is a small scanner over one directive's content.
type directiveParser struct {
	src string
	pos int
	at  Position // directive position, used for all error reports
}

func (p *directiveParser) atEnd() bool {
	return p.pos >= len(p.src)
}

func (p *directiveParser) peekByte() byte {
	if p.atEnd() {
		return 0
	}
	return p.src[p.pos]
}

func (p *directiveParser) consume(b byte) bool {
	if p.peekByte() == b {
		p.pos++
		return true
	}
	return false
}

func (p *directiveParser) skipSpace() {
	for !p.atEnd() {
		switch p.src[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

// ident scans an identifier, returning "" when none starts here.
func (p *directiveParser) ident() string {
	start := p.pos
	for !p.atEnd() {
		c := p.src[p.pos]
		isLetter := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
		isDigit := c >= '0' && c <= '9'
		if !isLetter && !(isDigit && p.pos > start) {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

// parseArgs parses the argument list after an opening parenthesis,
// consuming the closing one. Keyword arguments must follow all
// positional arguments.
func (p *directiveParser) parseArgs() ([]Arg, error) {
	var args []Arg
	seenKeyword := false

	p.skipSpace()
	if p.consume(')') {
		return args, nil
	}

	for {
		arg, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		if arg.Name == "" && seenKeyword {
			return nil, NewParseError(p.at, "positional argument follows keyword argument")
		}
		if arg.Name != "" {
			seenKeyword = true
		}
		args = append(args, arg)

		p.skipSpace()
		if p.consume(')') {
			return args, nil
		}
		if !p.consume(',') {
			return nil, NewParseError(p.at, "expected ',' or ')' in argument list")
		}
		p.skipSpace()
	}
}

// parseArg parses one argument: a literal, a bare name, or name=value.
func (p *directiveParser) parseArg() (Arg, error) {
	save := p.pos
	if name := p.ident(); name != "" {
		p.skipSpace()
		if p.consume('=') {
			p.skipSpace()
			arg, err := p.parseValue()
			if err != nil {
				return Arg{}, err
			}
			arg.Name = name
			return arg, nil
		}
		p.pos = save
	}
	return p.parseValue()
}

// ParseMacroHeader parses the contents of a {% macro ... %} statement
// into the macro name and its parameter list. src excludes the
// delimiters, e.g. `macro money(col, digits=2)`. A parameter given as
// name=value declares a literal default.
func ParseMacroHeader(src string, pos Position) (string, []Param, error) {
	p := &directiveParser{src: src, at: pos}

	p.skipSpace()
	if word := p.ident(); word != "macro" {
		return "", nil, NewParseErrorf(pos, "expected a macro declaration, got %q", src)
	}

	p.skipSpace()
	name := p.ident()
	if name == "" {
		return "", nil, NewParseError(pos, "macro declaration is missing a name")
	}

	p.skipSpace()
	if !p.consume('(') {
		return "", nil, NewParseErrorf(pos, "macro %q is missing its parameter list", name)
	}
	args, err := p.parseArgs()
	if err != nil {
		return "", nil, err
	}
	p.skipSpace()
	if !p.atEnd() {
		return "", nil, NewParseErrorf(pos, "unexpected content after macro %q declaration", name)
	}

	params := make([]Param, 0, len(args))
	seen := make(map[string]bool)
	for _, arg := range args {
		var param Param
		switch {
		case arg.Name == "" && arg.Kind == ArgName:
			param = Param{Name: arg.Text}
		case arg.Name == "":
			return "", nil, NewParseErrorf(pos, "macro %q parameter must be a name, got %q", name, arg.Text)
		case arg.Kind == ArgName:
			return "", nil, NewParseErrorf(pos, "macro %q parameter %q default must be a literal", name, arg.Name)
		default:
			param = Param{Name: arg.Name, Default: arg.Text, HasDefault: true}
		}
		if seen[param.Name] {
			return "", nil, NewParseErrorf(pos, "macro %q declares parameter %q twice", name, param.Name)
		}
		seen[param.Name] = true
		params = append(params, param)
	}

	return name, params, nil
}

// parseValue parses a string, number, or bool literal, or a bare name.
func (p *directiveParser) parseValue() (Arg, error) {
	c := p.peekByte()

	switch {
	case c == '\'' || c == '"':
		quote := c
		p.pos++
		start := p.pos
		for !p.atEnd() && p.src[p.pos] != quote {
			p.pos++
		}
		if p.atEnd() {
			return Arg{}, NewParseError(p.at, "unterminated string literal")
		}
		text := p.src[start:p.pos]
		p.pos++
		return Arg{Kind: ArgString, Text: text}, nil

	case c >= '0' && c <= '9' || c == '-':
		start := p.pos
		p.pos++
		for !p.atEnd() {
			c := p.src[p.pos]
			if c >= '0' && c <= '9' || c == '.' {
				p.pos++
				continue
			}
			break
		}
		return Arg{Kind: ArgNumber, Text: p.src[start:p.pos]}, nil

	default:
		if name := p.ident(); name != "" {
			switch name {
			case "true", "True":
				return Arg{Kind: ArgBool, Text: "true"}, nil
			case "false", "False":
				return Arg{Kind: ArgBool, Text: "false"}, nil
			}
			return Arg{Kind: ArgName, Text: name}, nil
		}
		return Arg{}, NewParseError(p.at, "expected a literal or name in argument list")
	}
}
