package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Query is a semantically validated query tree. Unlike the syntactic
// AST, field aliases are resolved, regexes are compiled and time/size
// values are parsed into ranges.
type Query interface {
	isQuery()
}

// And matches when every child matches.
type And struct{ Children []Query }

// Or matches when any child matches.
type Or struct{ Children []Query }

// Not matches when the child does not.
type Not struct{ Child Query }

// Root restricts results to paths under a directory.
type Root struct{ Path string }

// KeyWord is a full-text term matched against indexed content.
type KeyWord struct{ Word string }

// Regex matches file content against a compiled pattern.
type Regex struct{ Pattern *regexp.Regexp }

// Glob matches the file name or full path against a glob pattern.
type Glob struct{ Pattern string }

// AccessTime restricts by access time (unix seconds).
type AccessTime struct{ Range TimeRange }

// ModifiedTime restricts by modification time (unix seconds).
type ModifiedTime struct{ Range TimeRange }

// CreatedTime restricts by creation time (unix seconds).
type CreatedTime struct{ Range TimeRange }

// Size restricts by file size in bytes.
type Size struct{ Range SizeRange }

func (And) isQuery()          {}
func (Or) isQuery()           {}
func (Not) isQuery()          {}
func (Root) isQuery()         {}
func (KeyWord) isQuery()      {}
func (Regex) isQuery()        {}
func (Glob) isQuery()         {}
func (AccessTime) isQuery()   {}
func (ModifiedTime) isQuery() {}
func (CreatedTime) isQuery()  {}
func (Size) isQuery()         {}

// ValidationErrorKind classifies a semantic error.
type ValidationErrorKind int

const (
	UnknownField ValidationErrorKind = iota
	InvalidRegex
	InvalidGlob
	InvalidTimeSpec
	InvalidSizeSpec
	EmptyValue
	InvalidRange
)

// ValidationError is a semantic error with the span of the offending
// field name or value.
type ValidationError struct {
	Span Span
	Kind ValidationErrorKind
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (at position %s)", e.Msg, e.Span)
}

func unknownFieldErr(span Span, field string) *ValidationError {
	return &ValidationError{span, UnknownField, fmt.Sprintf("unknown field '%s'", field)}
}

func invalidRegexErr(span Span, pattern string, err error) *ValidationError {
	return &ValidationError{span, InvalidRegex, fmt.Sprintf("invalid regex '%s': %v", pattern, err)}
}

func invalidGlobErr(span Span, pattern string, err error) *ValidationError {
	return &ValidationError{span, InvalidGlob, fmt.Sprintf("invalid glob '%s': %v", pattern, err)}
}

func invalidTimeErr(span Span, value, reason string) *ValidationError {
	return &ValidationError{span, InvalidTimeSpec, fmt.Sprintf("invalid time '%s': %s", value, reason)}
}

func invalidSizeErr(span Span, value, reason string) *ValidationError {
	return &ValidationError{span, InvalidSizeSpec, fmt.Sprintf("invalid size '%s': %s", value, reason)}
}

func emptyValueErr(span Span) *ValidationError {
	return &ValidationError{span, EmptyValue, "empty value"}
}

func invalidRangeErr(span Span, reason string) *ValidationError {
	return &ValidationError{span, InvalidRange, "invalid range: " + reason}
}

// FieldKind is the semantic type of a fielded term.
type FieldKind int

const (
	FieldRoot FieldKind = iota
	FieldKeyWord
	FieldRegex
	FieldGlob
	FieldAccessTime
	FieldModifiedTime
	FieldCreatedTime
	FieldSize
)

// FieldDef describes one searchable field and its aliases.
type FieldDef struct {
	Kind        FieldKind
	Aliases     []string
	Description string
}

// Fields is the static field catalog. Every kind is reachable through
// at least one alias; lookups are case-insensitive.
var Fields = []FieldDef{
	{FieldRoot, []string{"root", "path"}, "Search root directory"},
	{FieldKeyWord, []string{"key", "keyword"}, "Keyword match"},
	{FieldRegex, []string{"r", "re", "regex", "regexp"}, "Regular expression pattern"},
	{FieldGlob, []string{"glob", "name", "filename", "file"}, "Glob/filename pattern"},
	{FieldAccessTime, []string{"atime", "access", "accessed"}, "Access time range"},
	{FieldModifiedTime, []string{"mtime", "mod", "modified"}, "Modified time range"},
	{FieldCreatedTime, []string{"ctime", "create", "created"}, "Creation time range"},
	{FieldSize, []string{"s", "size", "bytes"}, "File size range"},
}

// FindField resolves a field name to its definition through any alias.
func FindField(name string) *FieldDef {
	lower := strings.ToLower(name)
	for i := range Fields {
		for _, a := range Fields[i].Aliases {
			if a == lower {
				return &Fields[i]
			}
		}
	}
	return nil
}

// Validate converts a syntactic AST into a semantic Query. It stops at
// the first error; the returned error carries the span to report.
func Validate(node Node) (Query, *ValidationError) {
	switch n := node.(type) {
	case *AndNode:
		children, err := validateChildren(n.Children)
		if err != nil {
			return nil, err
		}
		return And{Children: children}, nil
	case *OrNode:
		children, err := validateChildren(n.Children)
		if err != nil {
			return nil, err
		}
		return Or{Children: children}, nil
	case *NotNode:
		child, err := Validate(n.Child)
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	case *TermNode:
		return validateTerm(n)
	default:
		return nil, &ValidationError{node.Span(), EmptyValue, "empty query"}
	}
}

func validateChildren(nodes []Node) ([]Query, *ValidationError) {
	out := make([]Query, 0, len(nodes))
	for _, n := range nodes {
		q, err := Validate(n)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func validateTerm(term *TermNode) (Query, *ValidationError) {
	value := term.Value.Text()
	if value == "" {
		return nil, emptyValueErr(term.Value.Span)
	}

	if term.Field == nil {
		return KeyWord{Word: value}, nil
	}

	def := FindField(term.Field.Name)
	if def == nil {
		return nil, unknownFieldErr(term.Field.Span, term.Field.Name)
	}
	return parseFieldValue(def.Kind, value, term.Value.Span)
}

func parseFieldValue(kind FieldKind, value string, span Span) (Query, *ValidationError) {
	switch kind {
	case FieldRoot:
		return Root{Path: value}, nil
	case FieldKeyWord:
		return KeyWord{Word: value}, nil
	case FieldRegex:
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, invalidRegexErr(span, value, err)
		}
		return Regex{Pattern: re}, nil
	case FieldGlob:
		if !doublestar.ValidatePattern(value) {
			return nil, invalidGlobErr(span, value, doublestar.ErrBadPattern)
		}
		return Glob{Pattern: value}, nil
	case FieldAccessTime:
		r, err := ParseTimeRange(value, span)
		if err != nil {
			return nil, err
		}
		return AccessTime{Range: r}, nil
	case FieldModifiedTime:
		r, err := ParseTimeRange(value, span)
		if err != nil {
			return nil, err
		}
		return ModifiedTime{Range: r}, nil
	case FieldCreatedTime:
		r, err := ParseTimeRange(value, span)
		if err != nil {
			return nil, err
		}
		return CreatedTime{Range: r}, nil
	case FieldSize:
		r, err := ParseSizeRange(value, span)
		if err != nil {
			return nil, err
		}
		return Size{Range: r}, nil
	default:
		return nil, unknownFieldErr(span, fmt.Sprintf("kind %d", kind))
	}
}

// Compile parses and validates a query string in one step.
func Compile(src string) (Query, error) {
	node, syntaxErrs := Parse(src)
	if len(syntaxErrs) > 0 {
		return nil, syntaxErrs[0]
	}
	q, valErr := Validate(node)
	if valErr != nil {
		return nil, valErr
	}
	return q, nil
}
