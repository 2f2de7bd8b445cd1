package search

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/kestrelsearch/kestrel/internal/domain"
	"github.com/kestrelsearch/kestrel/internal/index"
	"github.com/kestrelsearch/kestrel/internal/query"
)

const (
	defaultFetchMultiplier = 10
	defaultBatchSize       = 50
)

// Service executes compiled queries against the index.
//
// Strategy: collect full-text keywords from the query, retrieve a
// candidate set from the index (or all documents when there are no
// keywords), then apply the structural predicates on the candidates
// and truncate to the requested limit.
type Service struct {
	index     index.Index
	extractor Extractor
	log       *zap.Logger

	// fetchMultiplier widens the candidate fetch beyond the result
	// limit so post-filtering still fills a page.
	fetchMultiplier int
	batchSize       int

	// statFile reads metadata from the filesystem when the index has
	// none. Swappable in tests.
	statFile func(path string) (fileMeta, bool)
}

// Option configures a Service.
type Option func(*Service)

// WithFetchMultiplier overrides the candidate fetch multiplier.
func WithFetchMultiplier(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fetchMultiplier = n
		}
	}
}

// WithBatchSize overrides the publish batch size.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithExtractor sets the natural-mode keyword extractor.
func WithExtractor(e Extractor) Option {
	return func(s *Service) { s.extractor = e }
}

// New creates a search service.
func New(ix index.Index, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		index:           ix,
		log:             log,
		fetchMultiplier: defaultFetchMultiplier,
		batchSize:       defaultBatchSize,
		statFile:        statFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs a search and publishes result batches to the sink.
// It returns the total number of published hits.
func (s *Service) Execute(ctx context.Context, req Request, publish Sink) (int, error) {
	switch req.Mode {
	case domain.ModeNatural:
		return s.executeNatural(ctx, req, publish)
	case domain.ModeRule, "":
		return s.executeRule(ctx, req, publish)
	default:
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidMode, req.Mode)
	}
}

func (s *Service) executeRule(ctx context.Context, req Request, publish Sink) (int, error) {
	q, err := CompileQuery(req.Query)
	if err != nil {
		return 0, err
	}

	keywords := collectKeywords(q)
	s.log.Debug("executing rule query",
		zap.String("query", req.Query),
		zap.Strings("keywords", keywords),
	)

	candidates, err := s.fetchCandidates(ctx, keywords, req.Limit)
	if err != nil {
		return 0, err
	}

	matched := make([]domain.Hit, 0, len(candidates))
	for _, hit := range candidates {
		if s.matches(hit, q) {
			matched = append(matched, hit)
			if len(matched) == req.Limit {
				break
			}
		}
	}

	s.log.Debug("rule query done",
		zap.Int("candidates", len(candidates)),
		zap.Int("matched", len(matched)),
	)
	s.publishBatches(matched, publish)
	return len(matched), nil
}

func (s *Service) executeNatural(ctx context.Context, req Request, publish Sink) (int, error) {
	keywords, err := s.naturalKeywords(ctx, req.Query)
	if err != nil {
		return 0, err
	}
	s.log.Debug("executing natural query", zap.Strings("keywords", keywords))

	hits, err := s.index.Search(ctx, keywords, req.Limit)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	s.publishBatches(hits, publish)
	return len(hits), nil
}

// naturalKeywords runs the extractor, falling back to whitespace
// splitting when none is configured.
func (s *Service) naturalKeywords(ctx context.Context, text string) ([]string, error) {
	if s.extractor == nil {
		return strings.Fields(text), nil
	}
	keywords, err := s.extractor.ExtractKeywords(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtractorUnavailable, err)
	}
	if len(keywords) == 0 {
		return strings.Fields(text), nil
	}
	return keywords, nil
}

func (s *Service) fetchCandidates(ctx context.Context, keywords []string, limit int) ([]domain.Hit, error) {
	budget := limit * s.fetchMultiplier
	var (
		hits []domain.Hit
		err  error
	)
	if len(keywords) == 0 {
		hits, err = s.index.MatchAll(ctx, budget)
	} else {
		hits, err = s.index.Search(ctx, keywords, budget)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	return hits, nil
}

func (s *Service) publishBatches(hits []domain.Hit, publish Sink) {
	if publish == nil {
		return
	}
	for len(hits) > 0 {
		n := s.batchSize
		if n > len(hits) {
			n = len(hits)
		}
		publish(hits[:n])
		hits = hits[n:]
	}
}

// CompileQuery wraps query errors with their spans for the transport layer.
func CompileQuery(src string) (query.Query, error) {
	node, syntaxErrs := query.Parse(src)
	if len(syntaxErrs) > 0 {
		e := syntaxErrs[0]
		return nil, domain.NewInvalidQuery("syntax_error", e.Span.Start, e.Span.End, e)
	}
	q, valErr := query.Validate(node)
	if valErr != nil {
		return nil, domain.NewInvalidQuery("validation_error", valErr.Span.Start, valErr.Span.End, valErr)
	}
	return q, nil
}

// collectKeywords gathers the full-text terms used for candidate
// retrieval. Regex patterns double as keywords; negated subtrees are
// skipped so their terms never steer retrieval.
func collectKeywords(q query.Query) []string {
	var keywords []string
	var walk func(query.Query)
	walk = func(q query.Query) {
		switch t := q.(type) {
		case query.KeyWord:
			keywords = append(keywords, t.Word)
		case query.Regex:
			if p := t.Pattern.String(); p != "" {
				keywords = append(keywords, p)
			}
		case query.And:
			for _, c := range t.Children {
				walk(c)
			}
		case query.Or:
			for _, c := range t.Children {
				walk(c)
			}
		case query.Not:
			// Excluded from retrieval; the filter handles negation.
		}
	}
	walk(q)
	return keywords
}

// matches applies the structural predicates to one candidate.
func (s *Service) matches(hit domain.Hit, q query.Query) bool {
	switch t := q.(type) {
	case query.And:
		for _, c := range t.Children {
			if !s.matches(hit, c) {
				return false
			}
		}
		return true
	case query.Or:
		for _, c := range t.Children {
			if s.matches(hit, c) {
				return true
			}
		}
		return false
	case query.Not:
		return !s.matches(hit, t.Child)
	case query.KeyWord, query.Regex:
		// Already satisfied by retrieval.
		return true
	case query.Root:
		return underRoot(hit.Path, t.Path)
	case query.Glob:
		return matchGlob(t.Pattern, hit.Path)
	case query.AccessTime:
		ts, ok := s.fileTime(hit, metaATime)
		return !ok || t.Range.Contains(ts)
	case query.ModifiedTime:
		ts, ok := s.fileTime(hit, metaMTime)
		return !ok || t.Range.Contains(ts)
	case query.CreatedTime:
		ts, ok := s.fileTime(hit, metaCTime)
		return !ok || t.Range.Contains(ts)
	case query.Size:
		size, ok := s.fileSize(hit)
		return !ok || t.Range.Contains(size)
	default:
		return false
	}
}

func underRoot(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// matchGlob matches the pattern against the file name or the full
// path; either is enough.
func matchGlob(pattern, path string) bool {
	nameOK, err := doublestar.Match(pattern, filepath.Base(path))
	if err != nil {
		return false
	}
	pathOK, err := doublestar.Match(pattern, path)
	if err != nil {
		return false
	}
	return nameOK || pathOK
}

type metaField int

const (
	metaATime metaField = iota
	metaMTime
	metaCTime
)

// fileTime resolves a timestamp from the hit, falling back to stat.
// ok=false means the value is unknowable and the predicate passes.
func (s *Service) fileTime(hit domain.Hit, field metaField) (uint64, bool) {
	var indexed uint64
	switch field {
	case metaATime:
		indexed = hit.ATime
	case metaMTime:
		indexed = hit.MTime
	case metaCTime:
		indexed = hit.CTime
	}
	if indexed != 0 {
		return indexed, true
	}
	meta, ok := s.statFile(hit.Path)
	if !ok {
		return 0, false
	}
	switch field {
	case metaATime:
		return meta.atime, meta.atime != 0
	case metaMTime:
		return meta.mtime, meta.mtime != 0
	default:
		return meta.ctime, meta.ctime != 0
	}
}

func (s *Service) fileSize(hit domain.Hit) (uint64, bool) {
	if hit.Size != 0 {
		return hit.Size, true
	}
	meta, ok := s.statFile(hit.Path)
	if !ok {
		return 0, false
	}
	return meta.size, true
}
