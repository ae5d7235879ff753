package lineage

// Expression parsing via precedence climbing.

// Operator precedence levels, lowest binds loosest.
const (
	precNone = iota
	precOr
	precAnd
	precNot
	precComparison // = != < <= > >= IS IN BETWEEN LIKE
	precAdditive   // + - ||
	precMultiplicative
	precUnary
	precPostfix // :: cast
)

// parseExpression parses a full expression.
func (p *Parser) parseExpression() Expr {
	return p.parseBinaryExpr(precNone)
}

// parseBinaryExpr parses expressions at or above the given precedence.
func (p *Parser) parseBinaryExpr(minPrec int) Expr {
	left := p.parseUnaryExpr()

	for {
		prec, ok := p.infixPrecedence()
		if !ok || prec <= minPrec {
			return left
		}
		left = p.parseInfix(left, prec)
	}
}

// infixPrecedence returns the binding precedence of the current token
// when it can act as an infix operator.
func (p *Parser) infixPrecedence() (int, bool) {
	switch p.token.Type {
	case TOKEN_OR:
		return precOr, true
	case TOKEN_AND:
		return precAnd, true
	case TOKEN_NOT:
		// NOT IN, NOT BETWEEN, NOT LIKE / ILIKE
		if p.checkPeek(TOKEN_IN) || p.checkPeek(TOKEN_BETWEEN) || p.checkPeek(TOKEN_LIKE) || p.checkPeek(TOKEN_ILIKE) {
			return precComparison, true
		}
		return 0, false
	case TOKEN_EQ, TOKEN_NE, TOKEN_LT, TOKEN_LE, TOKEN_GT, TOKEN_GE,
		TOKEN_IS, TOKEN_IN, TOKEN_BETWEEN, TOKEN_LIKE, TOKEN_ILIKE:
		return precComparison, true
	case TOKEN_PLUS, TOKEN_MINUS, TOKEN_DPIPE:
		return precAdditive, true
	case TOKEN_STAR, TOKEN_SLASH, TOKEN_PERCENT:
		return precMultiplicative, true
	case TOKEN_DCOLON:
		return precPostfix, true
	default:
		return 0, false
	}
}

// parseInfix parses an infix construct whose operator is the current token.
func (p *Parser) parseInfix(left Expr, prec int) Expr {
	switch p.token.Type {
	case TOKEN_IS:
		return p.parseIsExpr(left)

	case TOKEN_IN:
		p.nextToken()
		return p.parseInExpr(left, false)

	case TOKEN_BETWEEN:
		p.nextToken()
		return p.parseBetweenExpr(left, false)

	case TOKEN_LIKE, TOKEN_ILIKE:
		op := p.token.Type
		p.nextToken()
		return p.parseLikeExpr(left, false, op)

	case TOKEN_NOT:
		p.nextToken()
		switch p.token.Type {
		case TOKEN_IN:
			p.nextToken()
			return p.parseInExpr(left, true)
		case TOKEN_BETWEEN:
			p.nextToken()
			return p.parseBetweenExpr(left, true)
		case TOKEN_LIKE, TOKEN_ILIKE:
			op := p.token.Type
			p.nextToken()
			return p.parseLikeExpr(left, true, op)
		default:
			p.addError("expected IN, BETWEEN or LIKE after NOT")
			return left
		}

	case TOKEN_DCOLON:
		// Postfix cast: expr::type
		p.nextToken()
		typeName := p.parseTypeName()
		return &CastExpr{Expr: left, TypeName: typeName}

	default:
		op := p.token.Type
		p.nextToken()
		right := p.parseBinaryExpr(prec)
		return &BinaryExpr{Left: left, Op: op, Right: right}
	}
}

// parseUnaryExpr parses prefix operators and delegates to primary parsing.
func (p *Parser) parseUnaryExpr() Expr {
	switch p.token.Type {
	case TOKEN_NOT:
		p.nextToken()
		operand := p.parseBinaryExpr(precNot)
		return &UnaryExpr{Op: TOKEN_NOT, Expr: operand}
	case TOKEN_MINUS:
		p.nextToken()
		operand := p.parseBinaryExpr(precUnary)
		return &UnaryExpr{Op: TOKEN_MINUS, Expr: operand}
	case TOKEN_PLUS:
		p.nextToken()
		return p.parseBinaryExpr(precUnary)
	default:
		return p.parsePrimaryExpr()
	}
}

// parseIsExpr parses IS [NOT] NULL and IS [NOT] TRUE/FALSE.
func (p *Parser) parseIsExpr(left Expr) Expr {
	p.expect(TOKEN_IS)

	not := p.match(TOKEN_NOT)

	switch p.token.Type {
	case TOKEN_NULL:
		p.nextToken()
		return &IsNullExpr{Expr: left, Not: not}
	case TOKEN_TRUE:
		p.nextToken()
		return &IsBoolExpr{Expr: left, Not: not, Value: true}
	case TOKEN_FALSE:
		p.nextToken()
		return &IsBoolExpr{Expr: left, Not: not, Value: false}
	case TOKEN_DISTINCT:
		// IS [NOT] DISTINCT FROM behaves like a null-safe comparison.
		p.nextToken()
		p.expect(TOKEN_FROM)
		right := p.parseBinaryExpr(precComparison)
		op := TOKEN_NE
		if not {
			op = TOKEN_EQ
		}
		return &BinaryExpr{Left: left, Op: op, Right: right}
	default:
		p.addError("expected NULL, TRUE, FALSE or DISTINCT after IS")
		return left
	}
}

// parseInExpr parses the tail of expr [NOT] IN (...).
func (p *Parser) parseInExpr(left Expr, not bool) Expr {
	in := &InExpr{Expr: left, Not: not}

	p.expect(TOKEN_LPAREN)

	// Subquery or value list
	if p.check(TOKEN_SELECT) || p.check(TOKEN_WITH) {
		in.Query = p.parseStatement()
	} else {
		for {
			in.Values = append(in.Values, p.parseExpression())
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
	}

	p.expect(TOKEN_RPAREN)
	return in
}

// parseBetweenExpr parses the tail of expr [NOT] BETWEEN low AND high.
// AND is the range separator here, so bounds are parsed above precAnd.
func (p *Parser) parseBetweenExpr(left Expr, not bool) Expr {
	low := p.parseBinaryExpr(precNot)
	p.expect(TOKEN_AND)
	high := p.parseBinaryExpr(precNot)
	return &BetweenExpr{Expr: left, Not: not, Low: low, High: high}
}

// parseLikeExpr parses the tail of expr [NOT] LIKE pattern [ESCAPE char].
func (p *Parser) parseLikeExpr(left Expr, not bool, op TokenType) Expr {
	pattern := p.parseBinaryExpr(precComparison)
	like := &LikeExpr{Expr: left, Not: not, Pattern: pattern, Op: op}

	// The escape character carries no lineage, so it is parsed and dropped.
	if p.check(TOKEN_IDENT) && lowerASCII(p.token.Literal) == "escape" {
		p.nextToken()
		p.parseBinaryExpr(precComparison)
	}

	return like
}

// lowerASCII lowercases ASCII letters without allocating for the common
// already-lowercase case.
func lowerASCII(s string) string {
	hasUpper := false
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return s
	}
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
