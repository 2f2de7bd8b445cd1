package query

import "fmt"

// Span is a half-open byte range into the original query string.
// Tokens and AST nodes carry spans so errors can point at the exact
// source text that produced them.
type Span struct {
	Start int
	End   int
}

func (s Span) String() string {
	return fmt.Sprintf("%d..%d", s.Start, s.End)
}

// Union returns the smallest span covering both s and other.
func (s Span) Union(other Span) Span {
	out := s
	if other.Start < out.Start {
		out.Start = other.Start
	}
	if other.End > out.End {
		out.End = other.End
	}
	return out
}

// TokenKind is the type of a lexical token.
type TokenKind int

const (
	TokAnd TokenKind = iota
	TokOr
	TokNot
	TokColon
	TokLParen
	TokRParen
	TokQuoted
	TokText
)

func (k TokenKind) String() string {
	switch k {
	case TokAnd:
		return "AND"
	case TokOr:
		return "OR"
	case TokNot:
		return "NOT"
	case TokColon:
		return ":"
	case TokLParen:
		return "("
	case TokRParen:
		return ")"
	case TokQuoted:
		return "quoted string"
	case TokText:
		return "text"
	default:
		return "unknown"
	}
}

// Token is a single lexical token. Text holds the raw source slice;
// for TokQuoted that includes the surrounding quotes.
type Token struct {
	Kind TokenKind
	Text string
	Span Span
}

// Value returns the token's textual value. For quoted tokens the
// surrounding quotes are stripped and escaped quotes unescaped.
func (t Token) Value() string {
	if t.Kind == TokQuoted {
		return unquote(t.Text)
	}
	return t.Text
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	// Only \" is an escape sequence in the query language.
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == '"' {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

// LexError reports a malformed token. The lexer keeps producing
// tokens after an error; consumers decide whether to tolerate it.
type LexError struct {
	Span Span
	Msg  string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s (at %s)", e.Msg, e.Span)
}
