package websocket

import (
	"sync"
)

// Registry tracks live connections: a global user lookup plus per-session
// room maps. Pure connection management with no business logic; the hub and
// broadcaster are its only consumers.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*Connection            // userID -> Connection
	rooms map[string]map[string]*Connection // sessionID -> userID -> Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*Connection),
		rooms: make(map[string]map[string]*Connection),
	}
}

// Register adds a connection to a session room. An existing connection for
// the same user is replaced and closed asynchronously (rapid reconnects
// must not deadlock registration). Re-registering the same connection under
// a new session moves it out of its previous room, so a user is never a
// member of two rooms at once.
func (r *Registry) Register(sessionID string, conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if conn.GetUserID() == "" {
		return ErrNoIdentity
	}

	userID := conn.GetUserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.users[userID]; exists {
		if existing != conn {
			go func() { _ = existing.Close() }()
		}
		r.removeFromRoomLocked(existing)
	}

	conn.SetSessionID(sessionID)
	r.users[userID] = conn
	if r.rooms[sessionID] == nil {
		r.rooms[sessionID] = make(map[string]*Connection)
	}
	r.rooms[sessionID][userID] = conn

	return nil
}

// Unregister removes a connection. Idempotent; only removes the exact
// instance currently registered, so a stale connection's cleanup cannot
// evict its replacement.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	userID := conn.GetUserID()
	registered, exists := r.users[userID]
	if !exists || registered != conn {
		return
	}

	delete(r.users, userID)
	r.removeFromRoomLocked(conn)
}

func (r *Registry) removeFromRoomLocked(conn *Connection) {
	sessionID := conn.GetSessionID()
	if room, exists := r.rooms[sessionID]; exists {
		delete(room, conn.GetUserID())
		if len(room) == 0 {
			delete(r.rooms, sessionID)
		}
	}
}

// GetUserConnection returns the current connection for a user.
func (r *Registry) GetUserConnection(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.users[userID]
	return conn, exists
}

// GetSessionConnections returns every connection in a session room.
func (r *Registry) GetSessionConnections(sessionID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[sessionID]
	if !exists {
		return nil
	}
	connections := make([]*Connection, 0, len(room))
	for _, conn := range room {
		connections = append(connections, conn)
	}
	return connections
}

// SessionSize reports how many connections a room currently holds.
func (r *Registry) SessionSize(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[sessionID])
}

// GetStats returns registry counters for the health endpoint.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.users),
		"active_rooms":      len(r.rooms),
	}
}
