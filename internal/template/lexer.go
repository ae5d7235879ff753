package template

import (
	"strings"
	"unicode/utf8"
)

// TokenType identifies the type of token.
type TokenType int

// TokenType constants for template token types.
const (
	TokenText    TokenType = iota // Literal text (SQL)
	TokenExpr                     // Expression content (between {{ and }})
	TokenStmt                     // Statement content (between {% and %})
	TokenComment                  // Comment content (between {# and #})
	TokenEOF                      // End of input
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "TEXT"
	case TokenExpr:
		return "EXPR"
	case TokenStmt:
		return "STMT"
	case TokenComment:
		return "COMMENT"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token. TrimLeft and TrimRight record the
// {{- and -}} whitespace markers on the token's delimiters; Tokenize
// applies them to the neighboring text tokens.
type Token struct {
	Type      TokenType
	Value     string
	Pos       Position
	TrimLeft  bool
	TrimRight bool
}

// Lexer tokenizes a template string.
type Lexer struct {
	input    string
	file     string
	pos      int // current position in input
	line     int // current line number (1-based)
	col      int // current column number (1-based)
	lastLine int // line at start of current token
	lastCol  int // column at start of current token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input, file string) *Lexer {
	return &Lexer{
		input: input,
		file:  file,
		pos:   0,
		line:  1,
		col:   1,
	}
}

// Tokenize converts the input into a slice of tokens with trim markers
// already applied to the surrounding text.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token

	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}

	applyTrims(tokens)
	return tokens, nil
}

// applyTrims strips whitespace from text tokens adjacent to {{- and
// -}} style markers.
func applyTrims(tokens []Token) {
	for i := range tokens {
		if tokens[i].TrimLeft && i > 0 && tokens[i-1].Type == TokenText {
			tokens[i-1].Value = strings.TrimRight(tokens[i-1].Value, " \t\r\n")
		}
		if tokens[i].TrimRight && i+1 < len(tokens) && tokens[i+1].Type == TokenText {
			tokens[i+1].Value = strings.TrimLeft(tokens[i+1].Value, " \t\r\n")
		}
	}
}

// nextToken returns the next token from the input.
func (l *Lexer) nextToken() (Token, error) {
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.position()}, nil
	}

	switch {
	case l.matchString("{{"):
		return l.scanExpression()
	case l.matchString("{%"):
		return l.scanStatement()
	case l.matchString("{#"):
		return l.scanComment()
	}

	return l.scanText(), nil
}

// scanText scans literal text until a delimiter or EOF.
func (l *Lexer) scanText() Token {
	l.markStart()
	start := l.pos

	for l.pos < len(l.input) {
		if l.matchString("{{") || l.matchString("{%") || l.matchString("{#") {
			break
		}
		l.advance()
	}

	return Token{
		Type:  TokenText,
		Value: l.input[start:l.pos],
		Pos:   l.startPosition(),
	}
}

// scanExpression scans a {{ expr }} directive.
func (l *Lexer) scanExpression() (Token, error) {
	return l.scanDirective(TokenExpr, "}}", true)
}

// scanStatement scans a {% stmt %} directive.
func (l *Lexer) scanStatement() (Token, error) {
	return l.scanDirective(TokenStmt, "%}", true)
}

// scanComment scans a {# comment #} directive.
func (l *Lexer) scanComment() (Token, error) {
	return l.scanDirective(TokenComment, "#}", false)
}

// scanDirective scans a delimited directive. The two-character opener
// has already been matched. When quoted is set, closing delimiters
// inside string literals are ignored.
func (l *Lexer) scanDirective(typ TokenType, close string, quoted bool) (Token, error) {
	l.markStart()
	l.skip(2)

	trimLeft := false
	if l.peek() == '-' {
		trimLeft = true
		l.skip(1)
	}
	l.skipWhitespace()

	closeTrim := "-" + close
	start := l.pos
	for l.pos < len(l.input) {
		if quoted {
			if r := l.peek(); r == '\'' || r == '"' {
				l.skipQuoted(r)
				continue
			}
		}

		if l.matchString(closeTrim) {
			value := strings.TrimSpace(l.input[start:l.pos])
			l.skip(3)
			return Token{Type: typ, Value: value, Pos: l.startPosition(), TrimLeft: trimLeft, TrimRight: true}, nil
		}
		if l.matchString(close) {
			value := strings.TrimSpace(l.input[start:l.pos])
			l.skip(2)
			return Token{Type: typ, Value: value, Pos: l.startPosition(), TrimLeft: trimLeft}, nil
		}
		l.advance()
	}

	return Token{}, NewLexError(l.startPosition(), "unclosed directive: missing '"+close+"'")
}

// Helper methods

// peek returns the current rune without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

// advance moves to the next rune, updating position tracking.
func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}

	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size

	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

// skip advances past n bytes known to contain no newlines.
func (l *Lexer) skip(n int) {
	l.pos += n
	l.col += n
}

// skipQuoted advances past a string literal, including its quotes.
// An unterminated literal runs to EOF, which the caller reports as an
// unclosed directive.
func (l *Lexer) skipQuoted(quote rune) {
	l.advance()
	for l.pos < len(l.input) {
		r := l.peek()
		l.advance()
		if r == quote {
			return
		}
	}
}

// matchString checks if the input at current position matches s.
func (l *Lexer) matchString(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

// skipWhitespace skips whitespace characters.
func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r := l.peek()
		if r != ' ' && r != '\t' {
			break
		}
		l.advance()
	}
}

// markStart records the start position for the current token.
func (l *Lexer) markStart() {
	l.lastLine = l.line
	l.lastCol = l.col
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{File: l.file, Line: l.line, Column: l.col}
}

// startPosition returns the position where the current token started.
func (l *Lexer) startPosition() Position {
	return Position{File: l.file, Line: l.lastLine, Column: l.lastCol}
}
