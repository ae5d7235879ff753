package lineage

// Special-form parsing: CASE, CAST, EXISTS, type names.

// twoWordTypePrefixes are type names that continue with a second word,
// as in DOUBLE PRECISION or CHARACTER VARYING.
var twoWordTypePrefixes = map[string]bool{
	"double":    true,
	"character": true,
}

// parseCaseExpr parses a CASE expression, both the searched form
// (CASE WHEN cond THEN r ...) and the simple form (CASE operand WHEN v THEN r ...).
func (p *Parser) parseCaseExpr() Expr {
	p.expect(TOKEN_CASE)
	caseExpr := &CaseExpr{}

	if !p.check(TOKEN_WHEN) {
		caseExpr.Operand = p.parseExpression()
	}

	for p.match(TOKEN_WHEN) {
		when := WhenClause{}
		when.Condition = p.parseExpression()
		p.expect(TOKEN_THEN)
		when.Result = p.parseExpression()
		caseExpr.Whens = append(caseExpr.Whens, when)
	}

	if len(caseExpr.Whens) == 0 {
		p.addError("CASE expression requires at least one WHEN clause")
	}

	if p.match(TOKEN_ELSE) {
		caseExpr.Else = p.parseExpression()
	}

	p.expect(TOKEN_END)
	return caseExpr
}

// parseCastExpr parses CAST(expr AS type).
func (p *Parser) parseCastExpr() Expr {
	p.expect(TOKEN_CAST)
	return p.parseCastArgs()
}

// parseCastArgs parses the (expr AS type) tail shared by CAST, TRY_CAST
// and SAFE_CAST. The current token is the opening paren.
func (p *Parser) parseCastArgs() Expr {
	p.expect(TOKEN_LPAREN)
	expr := p.parseExpression()
	p.expect(TOKEN_AS)
	typeName := p.parseTypeName()
	p.expect(TOKEN_RPAREN)
	return &CastExpr{Expr: expr, TypeName: typeName}
}

// parseExistsExpr parses EXISTS (SELECT ...).
func (p *Parser) parseExistsExpr(not bool) Expr {
	p.expect(TOKEN_EXISTS)
	p.expect(TOKEN_LPAREN)
	sel := p.parseStatement()
	p.expect(TOKEN_RPAREN)
	return &ExistsExpr{Not: not, Select: sel}
}

// parseTypeName parses a type name: a base name, an optional second word
// for two-word types, optional (precision[, scale]) arguments, and an
// optional [] array suffix.
func (p *Parser) parseTypeName() string {
	if !p.check(TOKEN_IDENT) {
		p.addError("expected type name, got %s", tokenNames[p.token.Type])
		return ""
	}

	name := lowerASCII(p.token.Literal)
	p.nextToken()

	if twoWordTypePrefixes[name] && p.check(TOKEN_IDENT) {
		name = name + " " + lowerASCII(p.token.Literal)
		p.nextToken()
	}

	// decimal(10, 2), varchar(255)
	if p.match(TOKEN_LPAREN) {
		name += "("
		first := true
		for p.check(TOKEN_NUMBER) {
			if !first {
				name += ","
			}
			name += p.token.Literal
			first = false
			p.nextToken()
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
		p.expect(TOKEN_RPAREN)
		name += ")"
	}

	// int[]
	if p.check(TOKEN_LBRACKET) && p.checkPeek(TOKEN_RBRACKET) {
		p.nextToken()
		p.nextToken()
		name += "[]"
	}

	return name
}
