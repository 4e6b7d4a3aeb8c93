package session

import (
	"log"
	"sync"
	"time"

	"tutorhub/pkg/types"
)

// Config holds per-session parameters the registry hands to the sessions it
// creates.
type Config struct {
	// CleanupGrace is how long an empty session survives before it is torn
	// down, so a rapid rejoin lands in the same session.
	CleanupGrace time.Duration
	// MemoryCapacity is the conversation memory window size.
	MemoryCapacity int
	// PresenceTTL is the cursor relevance window.
	PresenceTTL time.Duration
}

// Registry is the process-wide table of live sessions, and the only
// structure shared across sessions. It owns the session lifecycle:
// creation on first join, grace-period cleanup when emptied, teardown.
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	timers   map[string]*time.Timer
	config   Config
	closed   bool

	// onEnd, when set, is invoked (outside the lock) after a session is
	// removed; the orchestration layer uses it to mark the session
	// ended in the store. Set before any traffic arrives.
	onEnd func(session *Session)
}

// NewRegistry creates a session registry.
func NewRegistry(config Config) *Registry {
	if config.CleanupGrace <= 0 {
		config.CleanupGrace = time.Minute
	}
	return &Registry{
		sessions: make(map[string]*Session),
		timers:   make(map[string]*time.Timer),
		config:   config,
	}
}

// SetOnEnd installs the session-teardown hook.
func (r *Registry) SetOnEnd(hook func(session *Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEnd = hook
}

// GetOrCreate returns the live session, creating it when absent; the first
// joiner's identity becomes the session owner. Any pending cleanup for the
// session is cancelled: a rejoin within the grace period keeps the session.
func (r *Registry) GetOrCreate(sessionID, ownerID string) (*Session, bool, error) {
	if !types.IsValidSessionID(sessionID) {
		return nil, false, ErrInvalidSessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false, ErrRegistryClosed
	}

	if timer, pending := r.timers[sessionID]; pending {
		timer.Stop()
		delete(r.timers, sessionID)
	}

	if existing, exists := r.sessions[sessionID]; exists {
		return existing, false, nil
	}

	created := newSession(sessionID, ownerID, r.config.MemoryCapacity, r.config.PresenceTTL)
	r.sessions[sessionID] = created
	log.Printf("Created session: id=%s owner=%s", sessionID, ownerID)
	return created, true, nil
}

// Get returns a live session.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[sessionID]
	return s, exists
}

// ScheduleCleanup arms the grace-period timer for a session that has just
// emptied. When the timer fires the session is torn down only if it is
// still empty. The check runs on the session's own executor, so it cannot
// race a concurrent join.
func (r *Registry) ScheduleCleanup(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if _, exists := r.sessions[sessionID]; !exists {
		return
	}
	if timer, pending := r.timers[sessionID]; pending {
		timer.Stop()
	}

	r.timers[sessionID] = time.AfterFunc(r.config.CleanupGrace, func() {
		r.cleanupIfEmpty(sessionID)
	})
}

func (r *Registry) cleanupIfEmpty(sessionID string) {
	s, exists := r.Get(sessionID)
	if !exists {
		return
	}

	empty := make(chan bool, 1)
	if err := s.Do(func() { empty <- s.ParticipantCount() == 0 }); err != nil {
		return
	}
	if !<-empty {
		return
	}

	r.Remove(sessionID)
}

// Remove tears a session down: the registry entry and any pending timer go
// away, the worker drains and stops, and the onEnd hook fires.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	s, exists := r.sessions[sessionID]
	if exists {
		delete(r.sessions, sessionID)
	}
	if timer, pending := r.timers[sessionID]; pending {
		timer.Stop()
		delete(r.timers, sessionID)
	}
	hook := r.onEnd
	r.mu.Unlock()

	if !exists {
		return
	}

	s.Close()
	log.Printf("Ended session: id=%s", sessionID)
	if hook != nil {
		hook(s)
	}
}

// ActiveSessions returns descriptors for every live session.
func (r *Registry) ActiveSessions() []*types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Descriptor())
	}
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close tears down every session. The registry accepts no new sessions
// afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Remove(id)
	}
}
