package query

import "strings"

// Lexer is a two-state tokenizer for the query language.
//
// In normal mode it recognizes the operators AND/&&, OR/||, NOT/!,
// the structural characters : ( ), double-quoted strings, and maximal
// runs of plain text. Immediately after emitting a Colon it switches
// to value mode for a single token: there the only shapes are a quoted
// string or a maximal run terminated by whitespace, a quote or a
// closing paren, so a field value such as `AND` or `!*.py` is never
// misread as an operator while a grouped term like `(mtime:>7d)` still
// closes its paren. If the colon is followed by whitespace or end of
// input, value mode emits nothing and normal mode resumes.
type Lexer struct {
	src       string
	pos       int
	valueMode bool
}

// NewLexer creates a lexer over src. Spans in produced tokens are
// byte offsets into src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src}
}

// structural characters that terminate a plain-text run in normal mode.
const textTerminators = " \t\n\f:\"()!&|"

// Next returns the next token. It reports ok=false at end of input.
// A malformed token is returned as a *LexError with its span; the
// lexer skips past it so the stream can continue.
func (l *Lexer) Next() (Token, *LexError, bool) {
	if l.valueMode {
		l.valueMode = false
		if tok, ok := l.nextValue(); ok {
			return tok, nil, true
		}
		// Empty value: fall through to normal mode.
	}

	l.skipWhitespace()
	if l.pos >= len(l.src) {
		return Token{}, nil, false
	}

	start := l.pos
	switch c := l.src[l.pos]; c {
	case ':':
		l.pos++
		l.valueMode = true
		return l.token(TokColon, start), nil, true
	case '(':
		l.pos++
		return l.token(TokLParen, start), nil, true
	case ')':
		l.pos++
		return l.token(TokRParen, start), nil, true
	case '!':
		l.pos++
		return l.token(TokNot, start), nil, true
	case '&':
		if strings.HasPrefix(l.src[l.pos:], "&&") {
			l.pos += 2
			return l.token(TokAnd, start), nil, true
		}
		l.pos++
		return Token{}, &LexError{Span: Span{start, l.pos}, Msg: "unexpected character '&'"}, true
	case '|':
		if strings.HasPrefix(l.src[l.pos:], "||") {
			l.pos += 2
			return l.token(TokOr, start), nil, true
		}
		l.pos++
		return Token{}, &LexError{Span: Span{start, l.pos}, Msg: "unexpected character '|'"}, true
	case '"':
		return l.scanQuoted(start)
	}

	// Maximal run of plain text, then keyword promotion.
	for l.pos < len(l.src) && !strings.ContainsRune(textTerminators, rune(l.src[l.pos])) {
		l.pos++
	}
	tok := l.token(TokText, start)
	switch tok.Text {
	case "AND":
		tok.Kind = TokAnd
	case "OR":
		tok.Kind = TokOr
	case "NOT":
		tok.Kind = TokNot
	}
	return tok, nil, true
}

// nextValue lexes the single value-mode token following a colon.
// It reports ok=false when the colon is trailed by whitespace or EOF.
func (l *Lexer) nextValue() (Token, bool) {
	if l.pos >= len(l.src) {
		return Token{}, false
	}
	start := l.pos
	if c := l.src[l.pos]; c == ' ' || c == '\t' || c == '\n' || c == '\f' {
		return Token{}, false
	}
	if l.src[l.pos] == '"' {
		tok, lexErr, _ := l.scanQuoted(start)
		if lexErr != nil {
			// Treat an unterminated quoted value as raw text to the end;
			// the validator will reject it if it is meaningless.
			return Token{Kind: TokText, Text: l.src[start:], Span: Span{start, len(l.src)}}, true
		}
		return tok, true
	}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\f' || c == '"' || c == ')' {
			break
		}
		l.pos++
	}
	return l.token(TokText, start), true
}

func (l *Lexer) scanQuoted(start int) (Token, *LexError, bool) {
	l.pos++ // opening quote
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case '\\':
			l.pos++ // skip the escaped character
			if l.pos < len(l.src) {
				l.pos++
			}
		case '"':
			l.pos++
			return l.token(TokQuoted, start), nil, true
		default:
			l.pos++
		}
	}
	return Token{}, &LexError{Span: Span{start, len(l.src)}, Msg: "unterminated string"}, true
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\n', '\f':
			l.pos++
		default:
			return
		}
	}
}

func (l *Lexer) token(kind TokenKind, start int) Token {
	return Token{Kind: kind, Text: l.src[start:l.pos], Span: Span{start, l.pos}}
}

// Tokenize lexes the whole input. It fails on the first malformed
// token; callers that tolerate errors drive the Lexer directly.
func Tokenize(src string) ([]Token, *LexError) {
	l := NewLexer(src)
	var tokens []Token
	for {
		tok, lexErr, ok := l.Next()
		if !ok {
			return tokens, nil
		}
		if lexErr != nil {
			return nil, lexErr
		}
		tokens = append(tokens, tok)
	}
}
