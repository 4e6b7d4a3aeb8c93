package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tutorhub/internal/session"
	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

// ConnectionStats is the read surface the API needs from the connection
// registry.
type ConnectionStats interface {
	SessionSize(sessionID string) int
	GetStats() map[string]int
}

// Server is the read-only HTTP surface: session listings, per-session
// history and health. Sessions are created by joining over WebSocket, not
// through this API, so there are no write endpoints.
type Server struct {
	sessions *session.Registry
	store    interfaces.Store
	conns    ConnectionStats
	router   *http.ServeMux
}

// NewServer wires the API routes.
func NewServer(sessions *session.Registry, store interfaces.Store, conns ConnectionStats) *Server {
	s := &Server{
		sessions: sessions,
		store:    store,
		conns:    conns,
		router:   http.NewServeMux(),
	}

	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type SessionWithConnections struct {
	*types.Session
	ConnectionCount int `json:"connection_count"`
}

type ListSessionsResponse struct {
	Sessions []SessionWithConnections `json:"sessions"`
}

type SessionDetailResponse struct {
	Session         *types.Session                  `json:"session"`
	ConnectionCount int                             `json:"connection_count"`
	ChatHistory     []*types.ChatMessage            `json:"chat_history"`
	Whiteboard      types.WhiteboardSnapshotPayload `json:"whiteboard"`
}

type HealthResponse struct {
	Status         string         `json:"status"`
	Timestamp      time.Time      `json:"timestamp"`
	Database       string         `json:"database"`
	ActiveSessions int            `json:"active_sessions"`
	Connections    map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listSessions(w, r)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")[0]
	if sessionID == "" {
		s.sendError(w, "Session ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getSession(w, r, sessionID)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// listSessions returns the currently live sessions with connection counts.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	live := s.sessions.ActiveSessions()

	sessions := make([]SessionWithConnections, len(live))
	for i, descriptor := range live {
		sessions[i] = SessionWithConnections{
			Session:         descriptor,
			ConnectionCount: s.conns.SessionSize(descriptor.ID),
		}
	}

	_ = json.NewEncoder(w).Encode(ListSessionsResponse{Sessions: sessions})
}

// getSession returns one session with its persisted chat history and last
// whiteboard snapshot. Live sessions resolve from the registry; ended ones
// from the store.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	var descriptor *types.Session
	if live, exists := s.sessions.Get(sessionID); exists {
		descriptor = live.Descriptor()
	} else {
		stored, err := s.store.GetSession(r.Context(), sessionID)
		if err != nil {
			if err == interfaces.ErrSessionNotFound {
				s.sendError(w, "Session not found", http.StatusNotFound)
			} else {
				s.sendError(w, "Failed to get session", http.StatusInternalServerError)
			}
			return
		}
		descriptor = stored
	}

	history, err := s.store.GetChatHistory(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Failed to load chat history", http.StatusInternalServerError)
		return
	}

	elements, version, err := s.store.GetWhiteboardSnapshot(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Failed to load whiteboard snapshot", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(SessionDetailResponse{
		Session:         descriptor,
		ConnectionCount: s.conns.SessionSize(sessionID),
		ChatHistory:     history,
		Whiteboard: types.WhiteboardSnapshotPayload{
			Elements: elements,
			Version:  version,
		},
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:         status,
		Timestamp:      time.Now(),
		Database:       dbStatus,
		ActiveSessions: s.sessions.Count(),
		Connections:    s.conns.GetStats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
