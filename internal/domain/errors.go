package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotExists signals an unknown or expired search session.
	ErrSessionNotExists = errors.New("session does not exist")
	// ErrSessionAlreadyCancelled signals an operation on a cancelled session.
	ErrSessionAlreadyCancelled = errors.New("session already cancelled")
	// ErrSearchFailed signals an operation on a session whose search
	// already failed; the wrapped message carries the failure cause.
	ErrSearchFailed = errors.New("search failed")
	// ErrInvalidMode signals an unknown search mode.
	ErrInvalidMode = errors.New("invalid search mode")
	// ErrIndexUnavailable signals that the index backend cannot be reached.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrExtractorUnavailable signals that keyword extraction cannot be served.
	ErrExtractorUnavailable = errors.New("keyword extractor unavailable")
)

// InvalidQueryError wraps a query compilation failure with the byte
// span of the offending input.
type InvalidQueryError struct {
	Start int
	End   int
	Code  string
	Inner error
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %v", e.Inner)
}

func (e *InvalidQueryError) Unwrap() error { return e.Inner }

// NewInvalidQuery creates an invalid query error for the given span.
func NewInvalidQuery(code string, start, end int, inner error) error {
	return &InvalidQueryError{Start: start, End: end, Code: code, Inner: inner}
}
