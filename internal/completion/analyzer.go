package completion

import (
	"strings"

	"github.com/kestrelsearch/kestrel/internal/query"
)

// ContextKind classifies the cursor position within a query.
type ContextKind int

const (
	// Empty means there is nothing before the cursor.
	Empty ContextKind = iota
	// PartialFieldOrTerm is an unfinished word such as "roo|" that
	// could become a field name or a plain term.
	PartialFieldOrTerm
	// FieldValue is the value position after "field:", possibly with
	// a partial value already typed.
	FieldValue
	// AfterTerm follows a complete term, expecting an operator or a
	// new term.
	AfterTerm
	// AfterOperator follows AND/OR/NOT, expecting a term.
	AfterOperator
	// InGroup is right after an opening parenthesis.
	InGroup
	// InQuotedString is inside an unterminated quoted string; no
	// completion applies there.
	InQuotedString
)

// Context is the completion context at a cursor position. Only the
// fields relevant to the Kind are populated.
type Context struct {
	Kind ContextKind

	// PartialFieldOrTerm
	Text  string
	Start int

	// FieldValue
	Field      string
	Value      string
	ValueStart int

	// InGroup
	Depth int
}

// Analyze classifies the cursor position in query. Only the text up to
// the cursor matters; everything after it is ignored. The analysis is
// purely lexical and tolerates malformed tokens, so it works on
// half-typed queries the parser would reject.
func Analyze(q string, cursor int) Context {
	if cursor > len(q) {
		cursor = len(q)
	}
	q = q[:cursor]

	if strings.TrimSpace(q) == "" {
		return Context{Kind: Empty}
	}
	if hasUnclosedQuote(q) {
		return Context{Kind: InQuotedString}
	}

	lexer := query.NewLexer(q)
	var tokens []query.Token
	for {
		tok, lexErr, ok := lexer.Next()
		if !ok {
			break
		}
		if lexErr != nil {
			continue
		}
		tokens = append(tokens, tok)
	}
	return analyzeTokens(q, tokens)
}

// hasUnclosedQuote reports whether s ends inside a quoted string,
// counting unescaped quote characters.
func hasUnclosedQuote(s string) bool {
	inQuote := false
	prev := byte(' ')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' && prev != '\\' {
			inQuote = !inQuote
		}
		prev = s[i]
	}
	return inQuote
}

func analyzeTokens(q string, tokens []query.Token) Context {
	if len(tokens) == 0 {
		text := strings.TrimSpace(q)
		return Context{Kind: PartialFieldOrTerm, Text: text, Start: len(q) - len(text)}
	}

	last := tokens[len(tokens)-1]
	endsWithSpace := strings.HasSuffix(q, " ")

	switch last.Kind {
	case query.TokColon:
		if len(tokens) >= 2 && tokens[len(tokens)-2].Kind == query.TokText {
			return Context{
				Kind:       FieldValue,
				Field:      tokens[len(tokens)-2].Text,
				ValueStart: last.Span.End,
			}
		}
		return Context{Kind: AfterTerm}

	case query.TokText:
		// field:value pattern puts the cursor in value position even
		// with a trailing space.
		if len(tokens) >= 3 &&
			tokens[len(tokens)-2].Kind == query.TokColon &&
			tokens[len(tokens)-3].Kind == query.TokText {
			return Context{
				Kind:       FieldValue,
				Field:      tokens[len(tokens)-3].Text,
				Value:      last.Text,
				ValueStart: last.Span.Start,
			}
		}
		if endsWithSpace {
			return Context{Kind: AfterTerm}
		}
		return Context{Kind: PartialFieldOrTerm, Text: last.Text, Start: last.Span.Start}

	case query.TokQuoted:
		if endsWithSpace {
			return Context{Kind: AfterTerm}
		}
		return Context{Kind: InQuotedString}

	case query.TokAnd, query.TokOr, query.TokNot:
		return Context{Kind: AfterOperator}

	case query.TokLParen:
		depth := 0
		for _, tok := range tokens {
			switch tok.Kind {
			case query.TokLParen:
				depth++
			case query.TokRParen:
				depth--
			}
		}
		return Context{Kind: InGroup, Depth: depth}

	default: // TokRParen
		return Context{Kind: AfterTerm}
	}
}
