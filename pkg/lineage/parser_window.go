package lineage

// Window specification parsing for OVER clauses.

// parseWindowSpec parses the window specification after OVER: either a
// named window reference or a parenthesized inline specification.
func (p *Parser) parseWindowSpec() *WindowSpec {
	if p.check(TOKEN_IDENT) {
		spec := &WindowSpec{Name: p.token.Literal}
		p.nextToken()
		return spec
	}

	p.expect(TOKEN_LPAREN)
	spec := &WindowSpec{}

	if p.match(TOKEN_PARTITION) {
		p.expect(TOKEN_BY)
		spec.PartitionBy = p.parseExpressionList()
	}

	if p.match(TOKEN_ORDER) {
		p.expect(TOKEN_BY)
		spec.OrderBy = p.parseOrderByList()
	}

	if p.check(TOKEN_ROWS) || p.check(TOKEN_RANGE) || p.check(TOKEN_GROUPS) {
		spec.Frame = p.parseFrameSpec()
	}

	p.expect(TOKEN_RPAREN)
	return spec
}

// parseFrameSpec parses a window frame: ROWS/RANGE/GROUPS with bounds.
func (p *Parser) parseFrameSpec() *FrameSpec {
	frame := &FrameSpec{}

	switch p.token.Type {
	case TOKEN_ROWS:
		frame.Type = FrameRows
	case TOKEN_RANGE:
		frame.Type = FrameRange
	case TOKEN_GROUPS:
		frame.Type = FrameGroups
	}
	p.nextToken()

	if p.match(TOKEN_BETWEEN) {
		frame.Start = p.parseFrameBound()
		p.expect(TOKEN_AND)
		frame.End = p.parseFrameBound()
	} else {
		frame.Start = p.parseFrameBound()
	}

	return frame
}

// parseFrameBound parses a single frame bound.
func (p *Parser) parseFrameBound() *FrameBound {
	bound := &FrameBound{}

	switch {
	case p.match(TOKEN_UNBOUNDED):
		switch {
		case p.match(TOKEN_PRECEDING):
			bound.Type = FrameUnboundedPreceding
		case p.match(TOKEN_FOLLOWING):
			bound.Type = FrameUnboundedFollowing
		default:
			p.addError("expected PRECEDING or FOLLOWING after UNBOUNDED")
		}

	case p.match(TOKEN_CURRENT):
		p.expect(TOKEN_ROW)
		bound.Type = FrameCurrentRow

	default:
		bound.Offset = p.parseExpression()
		switch {
		case p.match(TOKEN_PRECEDING):
			bound.Type = FrameExprPreceding
		case p.match(TOKEN_FOLLOWING):
			bound.Type = FrameExprFollowing
		default:
			p.addError("expected PRECEDING or FOLLOWING in frame bound")
		}
	}

	return bound
}
