package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrelsearch/kestrel/internal/completion"
	"github.com/kestrelsearch/kestrel/internal/domain"
	"github.com/kestrelsearch/kestrel/internal/session"
	"github.com/kestrelsearch/kestrel/internal/usecase/search"
)

type mockManager struct {
	startID     uuid.UUID
	startErr    error
	startedWith *search.Request

	status    domain.SearchStatus
	statusErr error

	page    session.Page
	pageErr error

	cancelled   bool
	cancelledID uuid.UUID
}

func (m *mockManager) StartSearch(req search.Request) (uuid.UUID, error) {
	m.startedWith = &req
	return m.startID, m.startErr
}

func (m *mockManager) Status(id uuid.UUID) (domain.SearchStatus, error) {
	return m.status, m.statusErr
}

func (m *mockManager) FetchResults(id uuid.UUID, offset, limit int) (session.Page, error) {
	return m.page, m.pageErr
}

func (m *mockManager) Cancel(id uuid.UUID) bool {
	m.cancelledID = id
	return m.cancelled
}

type mockCompleter struct {
	batch       completion.Batch
	startedWith *uint64
	continued   uint64
	cancelledID uint64
}

func (m *mockCompleter) Start(sessionID uint64, query string, cursor int) completion.Batch {
	m.startedWith = &sessionID
	return m.batch
}

func (m *mockCompleter) Continue(sessionID uint64) completion.Batch {
	m.continued = sessionID
	return m.batch
}

func (m *mockCompleter) Cancel(sessionID uint64) {
	m.cancelledID = sessionID
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

func newTestServer(mgr *mockManager, comp *mockCompleter, idx *mockPinger) *Server {
	if mgr == nil {
		mgr = &mockManager{}
	}
	if comp == nil {
		comp = &mockCompleter{}
	}
	if idx == nil {
		idx = &mockPinger{}
	}
	return NewServer(mgr, comp, idx, 20, 100, zap.NewNop())
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return errResp
}

func TestPing(t *testing.T) {
	rr := doRequest(newTestServer(nil, nil, nil), "GET", "/ping", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("ping: got %d, want %d", rr.Code, http.StatusOK)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["version"] == "" {
		t.Error("ping: missing version field")
	}
}

func TestListFields(t *testing.T) {
	rr := doRequest(newTestServer(nil, nil, nil), "GET", "/v1/fields", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("fields: got %d, want %d", rr.Code, http.StatusOK)
	}
	var fields []FieldInfo
	if err := json.NewDecoder(rr.Body).Decode(&fields); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fields) == 0 {
		t.Fatal("fields: empty catalog")
	}
	if fields[0].Name != "root" {
		t.Errorf("first field: got %s, want root", fields[0].Name)
	}
	if len(fields[0].Aliases) < 2 {
		t.Errorf("root aliases: got %v, want root and path", fields[0].Aliases)
	}
}

func TestStartSearch_Accepted(t *testing.T) {
	id := uuid.New()
	mgr := &mockManager{startID: id}
	s := newTestServer(mgr, nil, nil)

	rr := doRequest(s, "POST", "/v1/search", `{"query":"report mtime:>2024-01-01"}`)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("start: got %d, want %d: %s", rr.Code, http.StatusAccepted, rr.Body.String())
	}
	var resp startSearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != id.String() {
		t.Errorf("session id: got %s, want %s", resp.SessionID, id.String())
	}
	if mgr.startedWith == nil {
		t.Fatal("StartSearch not called")
	}
	if mgr.startedWith.Limit != 20 {
		t.Errorf("default limit: got %d, want 20", mgr.startedWith.Limit)
	}
}

func TestStartSearch_LimitCapped(t *testing.T) {
	mgr := &mockManager{startID: uuid.New()}
	s := newTestServer(mgr, nil, nil)

	rr := doRequest(s, "POST", "/v1/search", `{"query":"report","limit":5000}`)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("start: got %d, want %d", rr.Code, http.StatusAccepted)
	}
	if mgr.startedWith.Limit != 100 {
		t.Errorf("capped limit: got %d, want 100", mgr.startedWith.Limit)
	}
}

func TestStartSearch_EmptyQuery_400(t *testing.T) {
	rr := doRequest(newTestServer(nil, nil, nil), "POST", "/v1/search", `{"query":""}`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty query: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestStartSearch_InvalidMode_400(t *testing.T) {
	rr := doRequest(newTestServer(nil, nil, nil), "POST", "/v1/search", `{"query":"x","mode":"fuzzy"}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid mode: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if errResp := decodeError(t, rr); errResp.Code != "invalid_mode" {
		t.Errorf("error code: got %s, want invalid_mode", errResp.Code)
	}
}

func TestStartSearch_MalformedQuery_400WithSpan(t *testing.T) {
	// Unbalanced parenthesis fails rule-mode compilation before a
	// session is ever created.
	mgr := &mockManager{startID: uuid.New()}
	s := newTestServer(mgr, nil, nil)

	rr := doRequest(s, "POST", "/v1/search", `{"query":"(report AND"}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed query: got %d, want %d: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
	errResp := decodeError(t, rr)
	if errResp.Span == nil {
		t.Fatal("malformed query: missing span")
	}
	if mgr.startedWith != nil {
		t.Error("malformed query reached the session manager")
	}
}

func TestStartSearch_NaturalMode_SkipsCompilation(t *testing.T) {
	// Natural-language text is not a rule query; it goes to the
	// extractor as-is.
	mgr := &mockManager{startID: uuid.New()}
	s := newTestServer(mgr, nil, nil)

	rr := doRequest(s, "POST", "/v1/search", `{"query":"photos from (last summer","mode":"natural"}`)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("natural mode: got %d, want %d: %s", rr.Code, http.StatusAccepted, rr.Body.String())
	}
}

func TestSearchStatus(t *testing.T) {
	mgr := &mockManager{status: domain.SearchStatus{State: domain.SearchCompleted, TotalCount: 7}}
	s := newTestServer(mgr, nil, nil)

	rr := doRequest(s, "GET", "/v1/search/"+uuid.NewString(), "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var status domain.SearchStatus
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.State != domain.SearchCompleted || status.TotalCount != 7 {
		t.Errorf("status: got %+v", status)
	}
}

func TestSearchStatus_NotFound_404(t *testing.T) {
	mgr := &mockManager{statusErr: domain.ErrSessionNotExists}
	s := newTestServer(mgr, nil, nil)

	rr := doRequest(s, "GET", "/v1/search/"+uuid.NewString(), "")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing session: got %d, want %d", rr.Code, http.StatusNotFound)
	}
	if errResp := decodeError(t, rr); errResp.Code != "session_not_found" {
		t.Errorf("error code: got %s, want session_not_found", errResp.Code)
	}
}

func TestSearchStatus_Cancelled_409(t *testing.T) {
	mgr := &mockManager{statusErr: domain.ErrSessionAlreadyCancelled}
	s := newTestServer(mgr, nil, nil)

	rr := doRequest(s, "GET", "/v1/search/"+uuid.NewString(), "")

	if rr.Code != http.StatusConflict {
		t.Errorf("cancelled session: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestSearchStatus_BadID_400(t *testing.T) {
	rr := doRequest(newTestServer(nil, nil, nil), "GET", "/v1/search/not-a-uuid", "")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestFetchSearchResults(t *testing.T) {
	mgr := &mockManager{page: session.Page{
		Hits:   []domain.Hit{{Path: "/tmp/a.txt"}, {Path: "/tmp/b.txt"}},
		Offset: 0,
		Status: domain.SearchStatus{State: domain.SearchInProgress, FoundSoFar: 2},
	}}
	s := newTestServer(mgr, nil, nil)

	rr := doRequest(s, "GET", "/v1/search/"+uuid.NewString()+"/results?offset=0&limit=10", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("results: got %d, want %d", rr.Code, http.StatusOK)
	}
	var page session.Page
	if err := json.NewDecoder(rr.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Hits) != 2 {
		t.Errorf("hits: got %d, want 2", len(page.Hits))
	}
}

func TestFetchSearchResults_FailedSearch_409(t *testing.T) {
	mgr := &mockManager{pageErr: fmt.Errorf("%w: index exploded", domain.ErrSearchFailed)}
	s := newTestServer(mgr, nil, nil)

	rr := doRequest(s, "GET", "/v1/search/"+uuid.NewString()+"/results", "")

	if rr.Code != http.StatusConflict {
		t.Fatalf("failed search: got %d, want %d", rr.Code, http.StatusConflict)
	}
	if errResp := decodeError(t, rr); errResp.Code != "search_failed" {
		t.Errorf("error code: got %s, want search_failed", errResp.Code)
	}
}

func TestFetchSearchResults_BadOffset_400(t *testing.T) {
	rr := doRequest(newTestServer(nil, nil, nil),
		"GET", "/v1/search/"+uuid.NewString()+"/results?offset=abc", "")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad offset: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestFetchSearchResults_NegativeOffset_400(t *testing.T) {
	rr := doRequest(newTestServer(nil, nil, nil),
		"GET", "/v1/search/"+uuid.NewString()+"/results?offset=-1", "")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("negative offset: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCancelSearch(t *testing.T) {
	id := uuid.New()
	mgr := &mockManager{cancelled: true}
	s := newTestServer(mgr, nil, nil)

	rr := doRequest(s, "DELETE", "/v1/search/"+id.String(), "")

	if rr.Code != http.StatusNoContent {
		t.Fatalf("cancel: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if mgr.cancelledID != id {
		t.Errorf("cancelled id: got %s, want %s", mgr.cancelledID, id)
	}
}

func TestCancelSearch_Missing_404(t *testing.T) {
	mgr := &mockManager{cancelled: false}
	s := newTestServer(mgr, nil, nil)

	rr := doRequest(s, "DELETE", "/v1/search/"+uuid.NewString(), "")

	if rr.Code != http.StatusNotFound {
		t.Errorf("cancel missing: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestStartCompletion(t *testing.T) {
	comp := &mockCompleter{batch: completion.Batch{
		SessionID:  42,
		Items:      []completion.Item{{Label: "root:"}},
		HasMore:    false,
		TotalSoFar: 1,
	}}
	s := newTestServer(nil, comp, nil)

	rr := doRequest(s, "POST", "/v1/complete", `{"session_id":42,"query":"ro","cursor":2}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("complete: got %d, want %d", rr.Code, http.StatusOK)
	}
	var batch completion.Batch
	if err := json.NewDecoder(rr.Body).Decode(&batch); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if batch.SessionID != 42 || len(batch.Items) != 1 {
		t.Errorf("batch: got %+v", batch)
	}
	if comp.startedWith == nil || *comp.startedWith != 42 {
		t.Error("Start not called with session 42")
	}
}

func TestStartCompletion_NegativeCursor_400(t *testing.T) {
	rr := doRequest(newTestServer(nil, nil, nil), "POST", "/v1/complete", `{"query":"x","cursor":-1}`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("negative cursor: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestContinueCompletion(t *testing.T) {
	comp := &mockCompleter{batch: completion.Batch{SessionID: 7, TotalSoFar: 40, HasMore: true}}
	s := newTestServer(nil, comp, nil)

	rr := doRequest(s, "POST", "/v1/complete/7/next", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("continue: got %d, want %d", rr.Code, http.StatusOK)
	}
	if comp.continued != 7 {
		t.Errorf("continued id: got %d, want 7", comp.continued)
	}
}

func TestContinueCompletion_BadID_400(t *testing.T) {
	rr := doRequest(newTestServer(nil, nil, nil), "POST", "/v1/complete/abc/next", "")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCancelCompletion(t *testing.T) {
	comp := &mockCompleter{}
	s := newTestServer(nil, comp, nil)

	rr := doRequest(s, "DELETE", "/v1/complete/9", "")

	if rr.Code != http.StatusNoContent {
		t.Fatalf("cancel completion: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if comp.cancelledID != 9 {
		t.Errorf("cancelled id: got %d, want 9", comp.cancelledID)
	}
}

func TestHealthCheck_Healthy(t *testing.T) {
	rr := doRequest(newTestServer(nil, nil, &mockPinger{}), "GET", "/health", "")

	if rr.Code != http.StatusOK {
		t.Errorf("healthy: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestHealthCheck_IndexDown_503(t *testing.T) {
	idx := &mockPinger{err: errors.New("connection refused")}
	rr := doRequest(newTestServer(nil, nil, idx), "GET", "/health", "")

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("status: got %s, want unhealthy", resp.Status)
	}
	if resp.Checks["index"] != "connection refused" {
		t.Errorf("index check: got %s", resp.Checks["index"])
	}
}

func TestUnknownDomainError_500(t *testing.T) {
	mgr := &mockManager{statusErr: errors.New("disk exploded")}
	s := newTestServer(mgr, nil, nil)

	rr := doRequest(s, "GET", "/v1/search/"+uuid.NewString(), "")

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("unknown error: got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if errResp := decodeError(t, rr); errResp.Code != "internal_error" {
		t.Errorf("error code: got %s, want internal_error", errResp.Code)
	}
}
