package search

import (
	"context"

	"github.com/kestrelsearch/kestrel/internal/domain"
)

// Extractor converts free-form text into search keywords for natural
// mode. The OpenAI-backed implementation lives in the transport layer.
type Extractor interface {
	ExtractKeywords(ctx context.Context, text string) ([]string, error)
}

// Sink receives published result batches during execution. Batches
// arrive in score order and each batch is complete when delivered.
type Sink func(batch []domain.Hit)

// Request is one search execution.
type Request struct {
	Query string
	Mode  domain.SearchMode
	Limit int
}
