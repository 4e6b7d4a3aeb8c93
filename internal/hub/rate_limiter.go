package hub

import (
	"sync"
	"time"
)

// RateLimiter applies a per-user sliding-window limit to inbound events so
// one misbehaving client cannot saturate a session's event queue.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimit
	limit   int
}

type clientLimit struct {
	eventCount  int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing limit events per minute per user.
func NewRateLimiter(limit int) *RateLimiter {
	if limit <= 0 {
		limit = 120
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimit),
		limit:   limit,
	}
}

// Allow reports whether the user may send another event in the current
// minute window.
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.clients[userID]
	if !exists {
		rl.clients[userID] = &clientLimit{eventCount: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= time.Minute {
		limit.eventCount = 1
		limit.windowStart = now
		return true
	}

	if limit.eventCount >= rl.limit {
		return false
	}

	limit.eventCount++
	return true
}

// Cleanup removes stale per-user state. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for userID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.clients, userID)
		}
	}
}
