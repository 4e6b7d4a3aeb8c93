package memory

import (
	"time"

	"github.com/google/uuid"
	"tutorhub/pkg/types"
)

// DefaultCapacity is the number of exchanges kept per session. Older turns
// are discarded, not summarized: the window is the bounded context handed to
// the answer generator.
const DefaultCapacity = 5

// Window is a fixed-capacity FIFO of recent question/answer exchanges.
// Eviction follows order of arrival, never order of access.
//
// Window is not safe for concurrent use. All mutation must pass through the
// owning session's serial executor.
type Window struct {
	capacity int
	entries  []types.QAEntry
}

// NewWindow creates a window with the given capacity. Non-positive values
// fall back to DefaultCapacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		capacity: capacity,
		entries:  make([]types.QAEntry, 0, capacity),
	}
}

// Append stores an exchange at the tail, assigning its ID and timestamp if
// unset, and evicts the oldest entry once the window is full. The stored
// entry is returned.
func (w *Window) Append(entry types.QAEntry) types.QAEntry {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	w.entries = append(w.entries, entry)
	if len(w.entries) > w.capacity {
		// Shift rather than re-slice so evicted entries are released.
		copy(w.entries, w.entries[1:])
		w.entries = w.entries[:w.capacity]
	}
	return entry
}

// Recent returns up to the last n entries in insertion order. n is clamped
// to the window size.
func (w *Window) Recent(n int) []types.QAEntry {
	if n <= 0 || len(w.entries) == 0 {
		return nil
	}
	if n > len(w.entries) {
		n = len(w.entries)
	}
	out := make([]types.QAEntry, n)
	copy(out, w.entries[len(w.entries)-n:])
	return out
}

// All returns every retained entry in insertion order.
func (w *Window) All() []types.QAEntry {
	return w.Recent(w.capacity)
}

// Len reports the number of retained entries.
func (w *Window) Len() int {
	return len(w.entries)
}

// Capacity reports the window's fixed capacity.
func (w *Window) Capacity() int {
	return w.capacity
}
