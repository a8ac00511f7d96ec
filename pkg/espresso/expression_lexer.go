package espresso

import (
	"strconv"
	"unicode"
)

// TokenType identifies the lexical class of an expression token.
type TokenType int

const (
	TOKEN_EOF TokenType = iota
	TOKEN_NUMBER
	TOKEN_IDENTIFIER
	TOKEN_PLUS
	TOKEN_MINUS
	TOKEN_MULTIPLY
	TOKEN_DIVIDE
	TOKEN_LPAREN
	TOKEN_RPAREN
	TOKEN_EQ
	TOKEN_LT
	TOKEN_LE
	TOKEN_GT
	TOKEN_GE
)

// ExprToken is one token of an infix or postfix expression.
type ExprToken struct {
	Type   TokenType
	Value  string
	NumVal int
	Ident  rune
}

func (t ExprToken) String() string {
	return t.Value
}

func (t ExprToken) isOperator() bool {
	_, ok := precedence[t.Type]
	return ok
}

func (t ExprToken) isComparison() bool {
	switch t.Type {
	case TOKEN_EQ, TOKEN_LT, TOKEN_LE, TOKEN_GT, TOKEN_GE:
		return true
	}
	return false
}

// ExpressionLexer splits an infix expression into tokens.
type ExpressionLexer struct {
	input []rune
	pos   int
	char  rune
	// last is the type of the previously produced token; it decides whether a
	// '-' starts a negative literal.
	last TokenType
}

// NewExpressionLexer creates a lexer over input.
func NewExpressionLexer(input string) *ExpressionLexer {
	l := &ExpressionLexer{input: []rune(input), last: TOKEN_EOF}
	l.readChar()
	return l
}

// atEOF reports whether the input is exhausted. A NUL rune inside the input
// is not the end.
func (l *ExpressionLexer) atEOF() bool {
	return l.pos > len(l.input)
}

func (l *ExpressionLexer) readChar() {
	if l.pos >= len(l.input) {
		l.char = 0
	} else {
		l.char = l.input[l.pos]
	}
	l.pos++
}

func (l *ExpressionLexer) peekChar() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *ExpressionLexer) skipWhitespace() {
	for l.char == ' ' || l.char == '\t' {
		l.readChar()
	}
}

// operandExpected reports whether the next token must be an operand.
func (l *ExpressionLexer) operandExpected() bool {
	switch l.last {
	case TOKEN_NUMBER, TOKEN_IDENTIFIER, TOKEN_RPAREN:
		return false
	}
	return true
}

func (l *ExpressionLexer) readNumber(negative bool) (ExprToken, error) {
	start := l.pos - 1
	if negative {
		start--
	}
	for isDigit(l.char) {
		l.readChar()
	}
	text := string(l.input[start : l.pos-1])
	n, err := strconv.Atoi(text)
	if err != nil {
		return ExprToken{}, syntaxError("integer literal %s out of range", text)
	}
	return ExprToken{Type: TOKEN_NUMBER, Value: text, NumVal: n}, nil
}

func (l *ExpressionLexer) readIdentifier() (ExprToken, error) {
	start := l.pos - 1
	for unicode.IsLetter(l.char) || unicode.IsDigit(l.char) || l.char == '_' {
		l.readChar()
	}
	name := l.input[start : l.pos-1]
	if len(name) != 1 {
		return ExprToken{}, syntaxError("invalid variable name %q: variables are single letters", string(name))
	}
	return ExprToken{Type: TOKEN_IDENTIFIER, Value: string(name), Ident: name[0]}, nil
}

func (l *ExpressionLexer) single(t TokenType, value string) ExprToken {
	l.readChar()
	return ExprToken{Type: t, Value: value}
}

func (l *ExpressionLexer) withEquals(plain, withEq TokenType, value string) ExprToken {
	if l.peekChar() == '=' {
		l.readChar()
		l.readChar()
		return ExprToken{Type: withEq, Value: value + "="}
	}
	return l.single(plain, value)
}

// NextToken returns the next token or TOKEN_EOF at the end of input.
func (l *ExpressionLexer) NextToken() (ExprToken, error) {
	tok, err := l.scan()
	if err == nil {
		l.last = tok.Type
	}
	return tok, err
}

func (l *ExpressionLexer) scan() (ExprToken, error) {
	l.skipWhitespace()
	if l.atEOF() {
		return ExprToken{Type: TOKEN_EOF}, nil
	}

	switch l.char {
	case '+':
		return l.single(TOKEN_PLUS, "+"), nil
	case '-':
		if l.operandExpected() && isDigit(l.peekChar()) {
			l.readChar()
			return l.readNumber(true)
		}
		return l.single(TOKEN_MINUS, "-"), nil
	case '*':
		return l.single(TOKEN_MULTIPLY, "*"), nil
	case '/':
		return l.single(TOKEN_DIVIDE, "/"), nil
	case '(':
		return l.single(TOKEN_LPAREN, "("), nil
	case ')':
		return l.single(TOKEN_RPAREN, ")"), nil
	case '<':
		return l.withEquals(TOKEN_LT, TOKEN_LE, "<"), nil
	case '>':
		return l.withEquals(TOKEN_GT, TOKEN_GE, ">"), nil
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return ExprToken{Type: TOKEN_EQ, Value: "=="}, nil
		}
		return ExprToken{}, syntaxError("unexpected '=' in expression (use == to compare)")
	}

	if isDigit(l.char) {
		return l.readNumber(false)
	}
	if unicode.IsLetter(l.char) {
		return l.readIdentifier()
	}
	return ExprToken{}, syntaxError("unexpected character %q in expression", l.char)
}

// Tokenize returns all tokens of expr, without the trailing EOF.
func Tokenize(expr string) ([]ExprToken, error) {
	l := NewExpressionLexer(expr)
	var tokens []ExprToken
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		if tok.Type == TOKEN_EOF {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}
