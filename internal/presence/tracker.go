package presence

import (
	"time"

	"tutorhub/pkg/types"
)

// DefaultTTL is how long a cursor entry stays relevant without an update.
const DefaultTTL = 5 * time.Second

// Tracker holds ephemeral per-user cursor positions for one session.
// Expiry is lazy: entries are filtered and pruned at snapshot time rather
// than by a background sweep, so the tracker carries no state beyond the
// map itself. Presence is never persisted.
//
// Tracker is not safe for concurrent use. All mutation must pass through
// the owning session's serial executor.
type Tracker struct {
	ttl     time.Duration
	cursors map[string]types.CursorEntry
}

// NewTracker creates a tracker. Non-positive TTLs fall back to DefaultTTL.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		ttl:     ttl,
		cursors: make(map[string]types.CursorEntry),
	}
}

// Update upserts a user's cursor with the given timestamp and returns the
// stored entry.
func (t *Tracker) Update(userID string, position types.Position, now time.Time) types.CursorEntry {
	entry := types.CursorEntry{
		UserID:    userID,
		Position:  position,
		Timestamp: now,
	}
	t.cursors[userID] = entry
	return entry
}

// Snapshot returns every entry still inside the TTL at the given instant,
// pruning expired ones as it goes. A TTL'd entry is never delivered.
func (t *Tracker) Snapshot(now time.Time) []types.CursorEntry {
	entries := make([]types.CursorEntry, 0, len(t.cursors))
	for userID, entry := range t.cursors {
		if now.Sub(entry.Timestamp) >= t.ttl {
			delete(t.cursors, userID)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// Remove drops a user's cursor, called on leave and disconnect.
func (t *Tracker) Remove(userID string) {
	delete(t.cursors, userID)
}
