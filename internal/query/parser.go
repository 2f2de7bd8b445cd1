package query

import "fmt"

// Node is a node of the syntactic AST. Every node knows the byte span
// of the source text it was parsed from.
type Node interface {
	Span() Span
}

// TermNode is a single search term: `field:value` or a bare value.
type TermNode struct {
	// Field is nil for a bare term.
	Field *FieldRef
	Value TermValue
	span  Span
}

func (n *TermNode) Span() Span { return n.span }

// FieldRef is the field-name half of a fielded term.
type FieldRef struct {
	Name string
	Span Span
}

// TermValue is the value half of a term.
type TermValue struct {
	Raw    string // raw source slice; includes quotes when Quoted
	Quoted bool
	Span   Span
}

// Text returns the value with quotes stripped and `\"` unescaped.
func (v TermValue) Text() string {
	if v.Quoted {
		return unquote(v.Raw)
	}
	return v.Raw
}

// AndNode is a conjunction. Repeated (possibly implicit) AND operands
// accumulate into one flat child list rather than nesting pairwise.
type AndNode struct {
	Children []Node
	span     Span
}

func (n *AndNode) Span() Span { return n.span }

// OrNode is a disjunction, flat like AndNode.
type OrNode struct {
	Children []Node
	span     Span
}

func (n *OrNode) Span() Span { return n.span }

// NotNode negates a single atom. Its span starts at the NOT token.
type NotNode struct {
	Child Node
	span  Span
}

func (n *NotNode) Span() Span { return n.span }

// SyntaxError is a grammar violation with the span that caused it.
type SyntaxError struct {
	Span Span
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s (at %s)", e.Msg, e.Span)
}

// Parse tokenizes and parses a query string.
//
// Grammar, low to high precedence:
//
//	query    := or_expr
//	or_expr  := and_expr (OR and_expr)*
//	and_expr := not_expr ((AND)? not_expr)*
//	not_expr := NOT* atom
//	atom     := term | '(' query ')'
//	term     := (Text ':')? (Text | QuotedText) | QuotedText
func Parse(src string) (Node, []*SyntaxError) {
	tokens, lexErr := Tokenize(src)
	if lexErr != nil {
		return nil, []*SyntaxError{{Span: lexErr.Span, Msg: lexErr.Msg}}
	}
	if len(tokens) == 0 {
		return nil, []*SyntaxError{{Span: Span{0, len(src)}, Msg: "empty query"}}
	}

	p := &parser{tokens: tokens, eofSpan: Span{len(src), len(src)}}
	node, err := p.parseOr()
	if err != nil {
		return nil, []*SyntaxError{err}
	}
	if p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		return nil, []*SyntaxError{{Span: tok.Span, Msg: fmt.Sprintf("unexpected %s", tok.Kind)}}
	}
	return node, nil
}

type parser struct {
	tokens  []Token
	pos     int
	eofSpan Span
}

func (p *parser) parseOr() (Node, *SyntaxError) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(TokOr) {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = foldOr(left, right)
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, *SyntaxError) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		explicit := p.match(TokAnd)
		if explicit {
			p.pos++
		} else if !p.startsNot() {
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = foldAnd(left, right)
	}
}

// startsNot reports whether the current token can begin a not_expr,
// which is what makes adjacent terms an implicit conjunction.
func (p *parser) startsNot() bool {
	switch p.current().Kind {
	case TokNot, TokLParen, TokText, TokQuoted:
		return p.pos < len(p.tokens)
	}
	return false
}

func (p *parser) parseNot() (Node, *SyntaxError) {
	if p.match(TokNot) {
		notSpan := p.current().Span
		p.pos++
		child, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &NotNode{Child: child, span: notSpan.Union(child.Span())}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (Node, *SyntaxError) {
	if p.match(TokLParen) {
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.match(TokRParen) {
			return nil, p.unexpected("expected ')'")
		}
		p.pos++
		return inner, nil
	}
	return p.parseTerm()
}

func (p *parser) parseTerm() (Node, *SyntaxError) {
	switch tok := p.current(); tok.Kind {
	case TokQuoted:
		p.pos++
		return &TermNode{
			Value: TermValue{Raw: tok.Text, Quoted: true, Span: tok.Span},
			span:  tok.Span,
		}, nil

	case TokText:
		p.pos++
		if !p.match(TokColon) {
			return &TermNode{
				Value: TermValue{Raw: tok.Text, Span: tok.Span},
				span:  tok.Span,
			}, nil
		}
		p.pos++ // colon
		val := p.current()
		if val.Kind != TokText && val.Kind != TokQuoted {
			return nil, p.unexpected(fmt.Sprintf("expected value after %q:", tok.Text))
		}
		p.pos++
		return &TermNode{
			Field: &FieldRef{Name: tok.Text, Span: tok.Span},
			Value: TermValue{Raw: val.Text, Quoted: val.Kind == TokQuoted, Span: val.Span},
			span:  tok.Span.Union(val.Span),
		}, nil

	default:
		return nil, p.unexpected("expected term")
	}
}

func (p *parser) current() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return Token{Kind: TokenKind(-1), Span: p.eofSpan}
}

func (p *parser) match(kind TokenKind) bool {
	return p.pos < len(p.tokens) && p.tokens[p.pos].Kind == kind
}

func (p *parser) unexpected(want string) *SyntaxError {
	if p.pos >= len(p.tokens) {
		return &SyntaxError{Span: p.eofSpan, Msg: want + ", got end of query"}
	}
	tok := p.tokens[p.pos]
	return &SyntaxError{Span: tok.Span, Msg: fmt.Sprintf("%s, got %s", want, tok.Kind)}
}

func foldAnd(left, right Node) Node {
	span := left.Span().Union(right.Span())
	if and, ok := left.(*AndNode); ok {
		and.Children = append(and.Children, right)
		and.span = span
		return and
	}
	return &AndNode{Children: []Node{left, right}, span: span}
}

func foldOr(left, right Node) Node {
	span := left.Span().Union(right.Span())
	if or, ok := left.(*OrNode); ok {
		or.Children = append(or.Children, right)
		or.span = span
		return or
	}
	return &OrNode{Children: []Node{left, right}, span: span}
}
