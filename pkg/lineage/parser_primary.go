package lineage

// Primary expression parsing: literals, column references, function calls.

// typedLiteralNames are identifiers that introduce a typed string literal,
// as in DATE '2024-01-01'.
var typedLiteralNames = map[string]bool{
	"date":      true,
	"time":      true,
	"timestamp": true,
	"datetime":  true,
}

// intervalUnits are the trailing unit identifiers accepted after an
// INTERVAL value, as in INTERVAL 7 day.
var intervalUnits = map[string]bool{
	"year": true, "years": true,
	"quarter": true, "quarters": true,
	"month": true, "months": true,
	"week": true, "weeks": true,
	"day": true, "days": true,
	"hour": true, "hours": true,
	"minute": true, "minutes": true,
	"second": true, "seconds": true,
	"millisecond": true, "milliseconds": true,
	"microsecond": true, "microseconds": true,
}

// parsePrimaryExpr parses a primary expression.
func (p *Parser) parsePrimaryExpr() Expr {
	switch p.token.Type {
	case TOKEN_NUMBER:
		lit := &Literal{Type: LiteralNumber, Value: p.token.Literal}
		p.nextToken()
		return lit

	case TOKEN_STRING:
		lit := &Literal{Type: LiteralString, Value: p.token.Literal}
		p.nextToken()
		return lit

	case TOKEN_TRUE:
		p.nextToken()
		return &Literal{Type: LiteralBool, Value: "true"}

	case TOKEN_FALSE:
		p.nextToken()
		return &Literal{Type: LiteralBool, Value: "false"}

	case TOKEN_NULL:
		p.nextToken()
		return &Literal{Type: LiteralNull, Value: "null"}

	case TOKEN_CASE:
		return p.parseCaseExpr()

	case TOKEN_CAST:
		return p.parseCastExpr()

	case TOKEN_EXISTS:
		return p.parseExistsExpr(false)

	case TOKEN_INTERVAL:
		return p.parseIntervalLiteral()

	case TOKEN_LPAREN:
		return p.parseParenOrSubquery()

	case TOKEN_STAR:
		// Bare star as an expression only appears in contexts like COUNT(*),
		// which parseFuncCall handles. Reaching here means misplaced input.
		p.nextToken()
		return &StarExpr{}

	case TOKEN_IDENT:
		return p.parseIdentExpr()

	case TOKEN_LEFT, TOKEN_RIGHT, TOKEN_FILTER:
		// LEFT, RIGHT and FILTER double as ordinary function names.
		if p.checkPeek(TOKEN_LPAREN) {
			name := lowerASCII(p.token.Literal)
			p.nextToken()
			return p.parseFuncCall(name)
		}
		p.addError("unexpected token %s in expression", tokenNames[p.token.Type])
		p.nextToken()
		return &Literal{Type: LiteralNull, Value: "null"}

	default:
		p.addError("unexpected token %s in expression", tokenNames[p.token.Type])
		p.nextToken()
		return &Literal{Type: LiteralNull, Value: "null"}
	}
}

// parseIdentExpr parses an identifier-led expression: a column reference,
// a qualified column reference, a function call, or a typed literal.
func (p *Parser) parseIdentExpr() Expr {
	name := p.token.Literal
	p.nextToken()

	// Typed literal: DATE '2024-01-01'
	if typedLiteralNames[lowerASCII(name)] && p.check(TOKEN_STRING) {
		lit := &Literal{Type: LiteralString, Value: p.token.Literal}
		p.nextToken()
		return lit
	}

	// Function call
	if p.check(TOKEN_LPAREN) {
		lowered := lowerASCII(name)
		// try_cast and safe_cast share CAST's  "expr AS type" argument shape.
		if lowered == "try_cast" || lowered == "safe_cast" {
			return p.parseCastArgs()
		}
		return p.parseFuncCall(lowered)
	}

	// Qualified column reference: table.column or schema.table.column
	if p.check(TOKEN_DOT) {
		qualifier := name
		for p.match(TOKEN_DOT) {
			if !p.check(TOKEN_IDENT) {
				p.addError("expected identifier after '.'")
				return &ColumnRef{Table: qualifier, Column: ""}
			}
			part := p.token.Literal
			p.nextToken()

			if p.check(TOKEN_DOT) {
				qualifier = qualifier + "." + part
				continue
			}
			return &ColumnRef{Table: qualifier, Column: part}
		}
	}

	return &ColumnRef{Column: name}
}

// parseFuncCall parses a function call. The name has already been consumed
// and the current token is the opening paren.
func (p *Parser) parseFuncCall(name string) Expr {
	p.expect(TOKEN_LPAREN)
	fc := &FuncCall{Name: name}

	switch {
	case p.check(TOKEN_RPAREN):
		// No arguments

	case p.check(TOKEN_STAR) && p.checkPeek(TOKEN_RPAREN):
		fc.Star = true
		p.nextToken()

	default:
		if p.match(TOKEN_DISTINCT) {
			fc.Distinct = true
		}
		for {
			fc.Args = append(fc.Args, p.parseExpression())

			if p.match(TOKEN_COMMA) {
				continue
			}
			// EXTRACT(part FROM expr) and SUBSTRING(s FROM 1 FOR 2) use
			// keywords as argument separators.
			if p.match(TOKEN_FROM) {
				continue
			}
			if p.check(TOKEN_IDENT) && lowerASCII(p.token.Literal) == "for" {
				p.nextToken()
				continue
			}
			break
		}
	}

	p.expect(TOKEN_RPAREN)
	p.parseFuncTail(fc)
	return fc
}

// parseFuncTail parses the optional clauses that may follow a function
// call: IGNORE/RESPECT NULLS, WITHIN GROUP, FILTER, and OVER.
func (p *Parser) parseFuncTail(fc *FuncCall) {
	// lag(x) IGNORE NULLS OVER (...)
	if p.check(TOKEN_IDENT) && p.checkPeek(TOKEN_NULLS) {
		switch lowerASCII(p.token.Literal) {
		case "ignore", "respect":
			p.nextToken()
			p.nextToken()
		}
	}

	// listagg(x, ',') WITHIN GROUP (ORDER BY y). The ordering expressions
	// are folded into the argument list so they count as inputs.
	if p.match(TOKEN_WITHIN) {
		p.expect(TOKEN_GROUP)
		p.expect(TOKEN_LPAREN)
		p.expect(TOKEN_ORDER)
		p.expect(TOKEN_BY)
		for _, item := range p.parseOrderByList() {
			fc.Args = append(fc.Args, item.Expr)
		}
		p.expect(TOKEN_RPAREN)
	}

	// count(*) FILTER (WHERE cond)
	if p.match(TOKEN_FILTER) {
		p.expect(TOKEN_LPAREN)
		p.expect(TOKEN_WHERE)
		fc.Filter = p.parseExpression()
		p.expect(TOKEN_RPAREN)
	}

	// row_number() OVER (PARTITION BY x ORDER BY y)
	if p.match(TOKEN_OVER) {
		fc.Window = p.parseWindowSpec()
	}
}

// parseParenOrSubquery parses a parenthesized expression, a scalar
// subquery, or a row constructor.
func (p *Parser) parseParenOrSubquery() Expr {
	p.expect(TOKEN_LPAREN)

	if p.check(TOKEN_SELECT) || p.check(TOKEN_WITH) {
		sel := p.parseStatement()
		p.expect(TOKEN_RPAREN)
		return &SubqueryExpr{Select: sel}
	}

	expr := p.parseExpression()

	// (a, b) is a row constructor, represented as ROW(a, b).
	if p.check(TOKEN_COMMA) {
		row := &FuncCall{Name: "row", Args: []Expr{expr}}
		for p.match(TOKEN_COMMA) {
			row.Args = append(row.Args, p.parseExpression())
		}
		p.expect(TOKEN_RPAREN)
		return row
	}

	p.expect(TOKEN_RPAREN)
	return &ParenExpr{Expr: expr}
}

// parseIntervalLiteral parses INTERVAL '1 day' and INTERVAL 7 day forms.
func (p *Parser) parseIntervalLiteral() Expr {
	p.expect(TOKEN_INTERVAL)

	value := ""
	switch p.token.Type {
	case TOKEN_STRING, TOKEN_NUMBER:
		value = p.token.Literal
		p.nextToken()
	default:
		p.addError("expected interval value, got %s", tokenNames[p.token.Type])
		return &Literal{Type: LiteralInterval}
	}

	// Optional trailing unit: INTERVAL 7 day
	if p.check(TOKEN_IDENT) && intervalUnits[lowerASCII(p.token.Literal)] {
		value = value + " " + lowerASCII(p.token.Literal)
		p.nextToken()
	}

	return &Literal{Type: LiteralInterval, Value: value}
}
