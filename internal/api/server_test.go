package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tutorhub/internal/session"
	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

type stubStore struct {
	sessions  map[string]*types.Session
	history   map[string][]*types.ChatMessage
	elements  map[string]types.WhiteboardElement
	version   uint64
	healthErr error
}

func newStubStore() *stubStore {
	return &stubStore{
		sessions: make(map[string]*types.Session),
		history:  make(map[string][]*types.ChatMessage),
	}
}

func (s *stubStore) SaveSession(ctx context.Context, sess *types.Session) error {
	s.sessions[sess.ID] = sess
	return nil
}

func (s *stubStore) MarkSessionEnded(ctx context.Context, sessionID string) error { return nil }
func (s *stubStore) QueueChatMessage(message *types.ChatMessage)                  {}
func (s *stubStore) QueueExchange(sessionID string, entry *types.QAEntry)         {}
func (s *stubStore) QueueWhiteboardSnapshot(sessionID string, elements map[string]types.WhiteboardElement, version uint64) {
}

func (s *stubStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	return sess, nil
}

func (s *stubStore) ListSessions(ctx context.Context) ([]*types.Session, error) { return nil, nil }

func (s *stubStore) GetChatHistory(ctx context.Context, sessionID string) ([]*types.ChatMessage, error) {
	return s.history[sessionID], nil
}

func (s *stubStore) GetWhiteboardSnapshot(ctx context.Context, sessionID string) (map[string]types.WhiteboardElement, uint64, error) {
	if s.elements == nil {
		return map[string]types.WhiteboardElement{}, 0, nil
	}
	return s.elements, s.version, nil
}

func (s *stubStore) HealthCheck(ctx context.Context) error { return s.healthErr }
func (s *stubStore) Close() error                          { return nil }

type stubConns struct {
	sizes map[string]int
}

func (c *stubConns) SessionSize(sessionID string) int { return c.sizes[sessionID] }
func (c *stubConns) GetStats() map[string]int {
	total := 0
	for _, n := range c.sizes {
		total += n
	}
	return map[string]int{"total_connections": total, "active_rooms": len(c.sizes)}
}

func newTestServer(t *testing.T, store *stubStore, conns *stubConns) (*Server, *session.Registry) {
	t.Helper()

	registry := session.NewRegistry(session.Config{
		CleanupGrace:   time.Minute,
		MemoryCapacity: 5,
		PresenceTTL:    5 * time.Second,
	})
	t.Cleanup(registry.Close)

	return NewServer(registry, store, conns), registry
}

func TestServer_ListSessions(t *testing.T) {
	conns := &stubConns{sizes: map[string]int{"algebra": 2, "geometry": 1}}
	server, registry := newTestServer(t, newStubStore(), conns)

	if _, _, err := registry.GetOrCreate("algebra", "alice"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, _, err := registry.GetOrCreate("geometry", "bob"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp ListSessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(resp.Sessions))
	}
	counts := map[string]int{}
	for _, s := range resp.Sessions {
		counts[s.ID] = s.ConnectionCount
	}
	if counts["algebra"] != 2 || counts["geometry"] != 1 {
		t.Errorf("connection counts = %v", counts)
	}
}

func TestServer_GetLiveSessionDetail(t *testing.T) {
	store := newStubStore()
	store.history["algebra"] = []*types.ChatMessage{
		{ID: "m1", SessionID: "algebra", UserID: "alice", Content: "hi", Kind: types.ChatKindUser},
	}
	store.elements = map[string]types.WhiteboardElement{"e1": {ID: "e1", Version: 4}}
	store.version = 4

	conns := &stubConns{sizes: map[string]int{"algebra": 3}}
	server, registry := newTestServer(t, store, conns)
	if _, _, err := registry.GetOrCreate("algebra", "alice"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/algebra", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp SessionDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session == nil || resp.Session.ID != "algebra" || resp.Session.OwnerID != "alice" {
		t.Errorf("session = %+v", resp.Session)
	}
	if resp.ConnectionCount != 3 {
		t.Errorf("connection count = %d, want 3", resp.ConnectionCount)
	}
	if len(resp.ChatHistory) != 1 || resp.ChatHistory[0].Content != "hi" {
		t.Errorf("chat history = %+v", resp.ChatHistory)
	}
	if resp.Whiteboard.Version != 4 || len(resp.Whiteboard.Elements) != 1 {
		t.Errorf("whiteboard = %+v", resp.Whiteboard)
	}
}

func TestServer_GetEndedSessionFromStore(t *testing.T) {
	store := newStubStore()
	ended := time.Now()
	store.sessions["old-lesson"] = &types.Session{
		ID: "old-lesson", OwnerID: "carol", CreatedAt: ended.Add(-time.Hour), EndedAt: &ended,
	}

	server, _ := newTestServer(t, store, &stubConns{sizes: map[string]int{}})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/old-lesson", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp SessionDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.OwnerID != "carol" || resp.Session.EndedAt == nil {
		t.Errorf("session = %+v, want ended session from store", resp.Session)
	}
	if resp.ConnectionCount != 0 {
		t.Errorf("connection count = %d, want 0", resp.ConnectionCount)
	}
}

func TestServer_GetUnknownSession(t *testing.T) {
	server, _ := newTestServer(t, newStubStore(), &stubConns{sizes: map[string]int{}})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/no-such", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServer_WriteMethodsRejected(t *testing.T) {
	server, _ := newTestServer(t, newStubStore(), &stubConns{sizes: map[string]int{}})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/api/sessions", nil),
		httptest.NewRequest(http.MethodDelete, "/api/sessions/algebra", nil),
	} {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: status = %d, want 405", req.Method, req.URL.Path, rec.Code)
		}
	}
}

func TestServer_Health(t *testing.T) {
	store := newStubStore()
	server, registry := newTestServer(t, store, &stubConns{sizes: map[string]int{"algebra": 2}})
	if _, _, err := registry.GetOrCreate("algebra", "alice"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" || resp.ActiveSessions != 1 {
		t.Errorf("health = %+v", resp)
	}

	store.healthErr = errors.New("disk gone")
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", rec.Code)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	server, _ := newTestServer(t, newStubStore(), &stubConns{sizes: map[string]int{}})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS headers on preflight response")
	}
}
