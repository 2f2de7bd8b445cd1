package index

import (
	"context"

	"github.com/kestrelsearch/kestrel/internal/domain"
)

// Index is the full-text index collaborator. The executor only
// depends on this interface; concrete drivers live in subpackages.
type Index interface {
	// Search returns up to limit hits matching any of the keywords,
	// best first.
	Search(ctx context.Context, keywords []string, limit int) ([]domain.Hit, error)
	// MatchAll returns up to limit hits with no text predicate, for
	// queries that are purely structural.
	MatchAll(ctx context.Context, limit int) ([]domain.Hit, error)
	// Upsert adds or replaces documents keyed by path.
	Upsert(ctx context.Context, docs []Document) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Document is one indexable file.
type Document struct {
	Path  string
	Title string
	Body  string
	Size  uint64
	MTime uint64
	CTime uint64
	ATime uint64
}
