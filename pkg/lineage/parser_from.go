package lineage

// FROM clause parsing: table references, derived tables, joins.
//
// Grammar:
//
//	from_clause → table_ref (join)*
//	table_ref   → table_name [alias]
//	            | "(" statement ")" [AS] alias
//	            | LATERAL "(" statement ")" [AS] alias
//	table_name  → identifier ["." identifier ["." identifier]]
//	join        → "," table_ref
//	            | [NATURAL] [join_type] JOIN table_ref [ON expr | USING "(" ident_list ")"]
//	join_type   → INNER | LEFT [OUTER] | RIGHT [OUTER] | FULL [OUTER] | CROSS

// parseFromClause parses the FROM clause with joins.
func (p *Parser) parseFromClause() *FromClause {
	from := &FromClause{}
	from.Source = p.parseTableRef()

	for p.isJoinToken() || p.check(TOKEN_COMMA) {
		join := p.parseJoin()
		from.Joins = append(from.Joins, &join)
	}

	return from
}

// isJoinToken reports whether the current token starts a join.
func (p *Parser) isJoinToken() bool {
	switch p.token.Type {
	case TOKEN_JOIN, TOKEN_INNER, TOKEN_LEFT, TOKEN_RIGHT, TOKEN_FULL, TOKEN_CROSS, TOKEN_NATURAL:
		return true
	default:
		return false
	}
}

// parseTableRef parses a single table reference.
func (p *Parser) parseTableRef() TableRef {
	// Derived table: ( SELECT ... ) alias
	if p.check(TOKEN_LPAREN) {
		p.nextToken()
		sel := p.parseStatement()
		p.expect(TOKEN_RPAREN)

		derived := &DerivedTable{Select: sel}
		derived.Alias = p.parseTableAlias()
		if derived.Alias == "" {
			p.addError("derived table requires an alias")
		}
		return derived
	}

	// LATERAL ( SELECT ... ) alias
	if p.match(TOKEN_LATERAL) {
		p.expect(TOKEN_LPAREN)
		sel := p.parseStatement()
		p.expect(TOKEN_RPAREN)

		lateral := &LateralTable{Select: sel}
		lateral.Alias = p.parseTableAlias()
		if lateral.Alias == "" {
			p.addError("lateral subquery requires an alias")
		}
		return lateral
	}

	// Plain table name, possibly qualified.
	if !p.check(TOKEN_IDENT) {
		p.addError("expected table name, got %s", tokenNames[p.token.Type])
		p.nextToken()
		return &TableName{}
	}

	table := &TableName{Name: p.token.Literal}
	p.nextToken()

	// schema.name
	if p.match(TOKEN_DOT) {
		if !p.check(TOKEN_IDENT) {
			p.addError("expected identifier after '.'")
			return table
		}
		table.Schema = table.Name
		table.Name = p.token.Literal
		p.nextToken()

		// catalog.schema.name
		if p.match(TOKEN_DOT) {
			if !p.check(TOKEN_IDENT) {
				p.addError("expected identifier after '.'")
				return table
			}
			table.Catalog = table.Schema
			table.Schema = table.Name
			table.Name = p.token.Literal
			p.nextToken()
		}
	}

	table.Alias = p.parseTableAlias()

	return table
}

// parseTableAlias parses an optional [AS] alias after a table reference.
// Returns "" when no alias is present.
func (p *Parser) parseTableAlias() string {
	if p.match(TOKEN_AS) {
		if p.check(TOKEN_IDENT) {
			alias := p.token.Literal
			p.nextToken()
			return alias
		}
		p.addError("expected alias after AS")
		return ""
	}

	if p.check(TOKEN_IDENT) && !p.isKeyword(p.token) {
		alias := p.token.Literal
		p.nextToken()
		return alias
	}

	return ""
}

// parseJoin parses a single join.
func (p *Parser) parseJoin() Join {
	join := Join{}

	// Comma join: FROM a, b
	if p.match(TOKEN_COMMA) {
		join.Type = JoinComma
		join.Right = p.parseTableRef()
		return join
	}

	if p.match(TOKEN_NATURAL) {
		join.Natural = true
	}

	switch p.token.Type {
	case TOKEN_INNER:
		p.nextToken()
		join.Type = JoinInner
		p.expect(TOKEN_JOIN)
	case TOKEN_LEFT:
		p.nextToken()
		join.Type = JoinLeft
		p.match(TOKEN_OUTER)
		p.expect(TOKEN_JOIN)
	case TOKEN_RIGHT:
		p.nextToken()
		join.Type = JoinRight
		p.match(TOKEN_OUTER)
		p.expect(TOKEN_JOIN)
	case TOKEN_FULL:
		p.nextToken()
		join.Type = JoinFull
		p.match(TOKEN_OUTER)
		p.expect(TOKEN_JOIN)
	case TOKEN_CROSS:
		p.nextToken()
		join.Type = JoinCross
		p.expect(TOKEN_JOIN)
	case TOKEN_JOIN:
		p.nextToken()
		join.Type = JoinInner
	default:
		p.addError("expected join, got %s", tokenNames[p.token.Type])
		p.nextToken()
		return join
	}

	join.Right = p.parseTableRef()

	// ON condition or USING column list. A NATURAL join defines its own
	// condition and takes neither.
	if join.Natural && (p.check(TOKEN_ON) || p.check(TOKEN_USING)) {
		p.addError("NATURAL JOIN cannot have %s", tokenNames[p.token.Type])
	}

	if p.match(TOKEN_ON) {
		join.Condition = p.parseExpression()
	} else if p.match(TOKEN_USING) {
		p.expect(TOKEN_LPAREN)
		for {
			if !p.check(TOKEN_IDENT) {
				p.addError("expected column name in USING clause")
				break
			}
			join.Using = append(join.Using, p.token.Literal)
			p.nextToken()
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
		p.expect(TOKEN_RPAREN)
	}

	return join
}
