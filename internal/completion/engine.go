package completion

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kestrelsearch/kestrel/internal/query"
)

const defaultBatchSize = 20

// Batch is one completion response. Cancelled is set when the
// addressed session is no longer the active one.
type Batch struct {
	SessionID  uint64 `json:"session_id"`
	Items      []Item `json:"items"`
	HasMore    bool   `json:"has_more"`
	TotalSoFar int    `json:"total_so_far"`
	Cancelled  bool   `json:"cancelled,omitempty"`
}

type engineSession struct {
	id        uint64
	src       Source
	collected int
	exhausted bool
}

// Engine serves completion sessions. It holds at most one active
// session; Start supersedes whatever was running, dropping its
// stream. Session ids are chosen by the client.
type Engine struct {
	paths     *PathCompleter
	log       *zap.Logger
	batchSize int

	mu      sync.Mutex
	current *engineSession
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBatchSize overrides how many items one batch pulls.
func WithBatchSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// NewEngine creates a completion engine rooted at cwd for path
// completion.
func NewEngine(cwd string, log *zap.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		paths:     NewPathCompleter(cwd),
		log:       log,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start opens a new session for the query and cursor position and
// returns its first batch. Any previous session is dropped.
func (e *Engine) Start(sessionID uint64, q string, cursor int) Batch {
	ctx := Analyze(q, cursor)
	src := e.createSource(ctx, cursor)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.log.Debug("completion session superseded",
			zap.Uint64("old", e.current.id), zap.Uint64("new", sessionID))
		e.current.src.Close()
	}
	e.current = &engineSession{id: sessionID, src: src}
	return e.nextBatchLocked()
}

// Continue pulls the next batch from the active session. A stale
// session id gets a Cancelled response.
func (e *Engine) Continue(sessionID uint64) Batch {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.current.id != sessionID {
		return Batch{SessionID: sessionID, Cancelled: true}
	}
	return e.nextBatchLocked()
}

// Cancel drops the active session if it matches sessionID.
func (e *Engine) Cancel(sessionID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil && e.current.id == sessionID {
		e.current.src.Close()
		e.current = nil
	}
}

func (e *Engine) nextBatchLocked() Batch {
	s := e.current
	batch := Batch{SessionID: s.id, TotalSoFar: s.collected}
	if s.exhausted {
		return batch
	}
	for i := 0; i < e.batchSize; i++ {
		item, ok := s.src.Next()
		if !ok {
			s.exhausted = true
			break
		}
		batch.Items = append(batch.Items, item)
	}
	s.collected += len(batch.Items)
	batch.HasMore = !s.exhausted
	batch.TotalSoFar = s.collected
	return batch
}

func (e *Engine) createSource(ctx Context, cursor int) Source {
	switch ctx.Kind {
	case PartialFieldOrTerm:
		fields := fromSlice(fieldNameItems(ctx.Text, ctx.Start, cursor))
		if looksLikePath(ctx.Text) {
			return chain(fields, e.paths.Complete(ctx.Text, ctx.Start, cursor))
		}
		return fields

	case FieldValue:
		if def := query.FindField(ctx.Field); def != nil && def.Kind == query.FieldRoot {
			return e.paths.Complete(ctx.Value, ctx.ValueStart, cursor)
		}
		return emptySource{}

	case AfterTerm, AfterOperator, InGroup:
		return fromSlice(fieldNameItems("", cursor, cursor))

	default: // Empty, InQuotedString
		return emptySource{}
	}
}
