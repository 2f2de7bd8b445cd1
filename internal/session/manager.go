package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelsearch/kestrel/internal/domain"
	"github.com/kestrelsearch/kestrel/internal/metrics"
	"github.com/kestrelsearch/kestrel/internal/usecase/search"
)

const (
	defaultIdleTimeout = 5 * time.Minute
	defaultWorkers     = 4
)

// Runner executes a search and publishes result batches.
type Runner interface {
	Execute(ctx context.Context, req search.Request, publish search.Sink) (int, error)
}

// Page is one FetchResults response.
type Page struct {
	Hits    []domain.Hit        `json:"hits"`
	Offset  int                 `json:"offset"`
	Status  domain.SearchStatus `json:"status"`
	HasMore bool                `json:"has_more"`
}

type session struct {
	id           uuid.UUID
	results      []domain.Hit
	status       domain.SearchStatus
	cancel       context.CancelFunc
	lastAccessed time.Time
}

// Manager owns the search session table. Sessions run in a bounded
// worker pool and publish results progressively; idle sessions are
// swept lazily whenever the table mutates, never on a timer.
type Manager struct {
	runner Runner
	log    *zap.Logger

	idleTimeout time.Duration
	group       *errgroup.Group

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session

	// now is swappable in tests to drive the idle sweep.
	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithIdleTimeout overrides how long an untouched session survives.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

// WithWorkers overrides the concurrent search limit.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.group.SetLimit(n)
		}
	}
}

// NewManager creates a session manager.
func NewManager(runner Runner, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		runner:      runner,
		log:         log,
		idleTimeout: defaultIdleTimeout,
		group:       &errgroup.Group{},
		sessions:    make(map[uuid.UUID]*session),
		now:         time.Now,
	}
	m.group.SetLimit(defaultWorkers)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartSearch registers a session and launches the search in the
// background. It returns immediately; the session is visible and in
// progress even while the worker pool is saturated.
func (m *Manager) StartSearch(req search.Request) (uuid.UUID, error) {
	if req.Mode != "" && !req.Mode.Valid() {
		return uuid.Nil, domain.ErrInvalidMode
	}

	id := uuid.New()
	runCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.sessions[id] = &session{
		id:           id,
		status:       domain.SearchStatus{State: domain.SearchInProgress},
		cancel:       cancel,
		lastAccessed: m.now(),
	}
	m.sweepLocked()
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	// group.Go blocks at the worker limit; a wrapper goroutine keeps
	// StartSearch non-blocking while the session queues.
	go m.group.Go(func() error {
		m.run(runCtx, id, req)
		return nil
	})

	return id, nil
}

func (m *Manager) run(ctx context.Context, id uuid.UUID, req search.Request) {
	total, err := m.runner.Execute(ctx, req, func(batch []domain.Hit) {
		m.appendResults(id, batch)
	})
	switch {
	case ctx.Err() != nil:
		// Cancelled; the table entry already reflects it.
		m.log.Debug("search cancelled", zap.String("session_id", id.String()))
	case err != nil:
		m.log.Warn("search failed", zap.String("session_id", id.String()), zap.Error(err))
		m.markFailed(id, err)
	default:
		m.markCompleted(id, total)
	}
}

// appendResults makes a published batch visible atomically.
func (m *Manager) appendResults(id uuid.UUID, batch []domain.Hit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.status.State != domain.SearchInProgress {
		return
	}
	s.results = append(s.results, batch...)
	s.status.FoundSoFar = len(s.results)
	m.sweepLocked()
}

func (m *Manager) markCompleted(id uuid.UUID, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.status.State != domain.SearchInProgress {
		return
	}
	s.status = domain.SearchStatus{State: domain.SearchCompleted, TotalCount: total}
	metrics.SearchesFinishedTotal.WithLabelValues(string(domain.SearchCompleted)).Inc()
}

func (m *Manager) markFailed(id uuid.UUID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.status.State != domain.SearchInProgress {
		return
	}
	s.status = domain.SearchStatus{State: domain.SearchFailed, Error: err.Error()}
	metrics.SearchesFinishedTotal.WithLabelValues(string(domain.SearchFailed)).Inc()
}

// Status returns the session's current status snapshot. Polling
// status counts as access and keeps the session out of the idle sweep.
func (m *Manager) Status(id uuid.UUID) (domain.SearchStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.SearchStatus{}, domain.ErrSessionNotExists
	}
	if s.status.State == domain.SearchCancelled {
		return domain.SearchStatus{}, domain.ErrSessionAlreadyCancelled
	}
	s.lastAccessed = m.now()
	return s.status, nil
}

// FetchResults returns the [offset, offset+limit) slice of published
// hits. A cancelled session is indistinguishable from a missing one.
func (m *Manager) FetchResults(id uuid.UUID, offset, limit int) (Page, error) {
	if offset < 0 || limit < 0 {
		return Page{}, errors.New("offset and limit must be non-negative")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.status.State == domain.SearchCancelled {
		return Page{}, domain.ErrSessionNotExists
	}
	if s.status.State == domain.SearchFailed {
		return Page{}, fmt.Errorf("%w: %s", domain.ErrSearchFailed, s.status.Error)
	}
	s.lastAccessed = m.now()

	var hits []domain.Hit
	if offset < len(s.results) {
		end := offset + limit
		if end > len(s.results) {
			end = len(s.results)
		}
		hits = append(hits, s.results[offset:end]...)
	}

	var hasMore bool
	switch s.status.State {
	case domain.SearchInProgress:
		hasMore = true
	case domain.SearchCompleted:
		hasMore = offset+len(hits) < s.status.TotalCount
	}

	return Page{Hits: hits, Offset: offset, Status: s.status, HasMore: hasMore}, nil
}

// Cancel aborts a running session and releases its results. It
// reports whether a live session was cancelled.
func (m *Manager) Cancel(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.status.State == domain.SearchCancelled {
		return false
	}
	s.cancel()
	s.status = domain.SearchStatus{State: domain.SearchCancelled}
	s.results = nil
	s.lastAccessed = m.now()
	m.sweepLocked()
	metrics.SearchesFinishedTotal.WithLabelValues(string(domain.SearchCancelled)).Inc()
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	return true
}

// ActiveCount reports the number of sessions in the table.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close cancels every session. In-flight workers observe their
// contexts and stop.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.cancel()
		delete(m.sessions, id)
	}
}

// sweepLocked drops sessions idle past the timeout. Callers hold mu.
func (m *Manager) sweepLocked() {
	now := m.now()
	for id, s := range m.sessions {
		if now.Sub(s.lastAccessed) >= m.idleTimeout {
			s.cancel()
			delete(m.sessions, id)
		}
	}
}
