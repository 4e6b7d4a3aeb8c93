package session

import (
	"sort"
	"sync"
	"time"

	"tutorhub/internal/conversation"
	"tutorhub/internal/memory"
	"tutorhub/internal/presence"
	"tutorhub/internal/whiteboard"
	"tutorhub/pkg/types"
)

// taskQueueSize bounds the per-session event backlog. One session is a
// handful of participants; a full queue means something upstream is broken.
const taskQueueSize = 256

// Session is one live tutoring session. It exclusively owns its
// conversation state, memory window, whiteboard log, presence tracker,
// participant set and chat log.
//
// All mutation runs on a single worker goroutine fed through Do, so
// operations for a session execute strictly one at a time in arrival order
// while separate sessions proceed in parallel. The owned structures need no
// locking of their own.
type Session struct {
	ID        string
	OwnerID   string
	CreatedAt time.Time

	State    *conversation.State
	Memory   *memory.Window
	Board    *whiteboard.Log
	Presence *presence.Tracker

	participants map[string]types.Participant // userID -> participant
	chat         []types.ChatMessage

	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id, ownerID string, memoryCapacity int, presenceTTL time.Duration) *Session {
	s := &Session{
		ID:           id,
		OwnerID:      ownerID,
		CreatedAt:    time.Now(),
		State:        conversation.NewState(),
		Memory:       memory.NewWindow(memoryCapacity),
		Board:        whiteboard.NewLog(),
		Presence:     presence.NewTracker(presenceTTL),
		participants: make(map[string]types.Participant),
		tasks:        make(chan func(), taskQueueSize),
		done:         make(chan struct{}),
	}

	go s.run()

	return s
}

// run is the session's single worker. It drains remaining tasks on close so
// an in-flight generation result still lands in memory and persistence even
// when everyone has disconnected.
func (s *Session) run() {
	for {
		select {
		case task := <-s.tasks:
			task()
		case <-s.done:
			for {
				select {
				case task := <-s.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// Do enqueues a task on the session's serial executor. Tasks run in arrival
// order, one at a time.
func (s *Session) Do(task func()) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.tasks <- task:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrQueueFull
	}
}

// Barrier blocks until every task enqueued before it has run. Test hook.
func (s *Session) Barrier() {
	executed := make(chan struct{})
	if err := s.Do(func() { close(executed) }); err != nil {
		return
	}
	<-executed
}

// Close stops the worker after draining queued tasks. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Descriptor returns the persistable session record.
func (s *Session) Descriptor() *types.Session {
	return &types.Session{
		ID:        s.ID,
		OwnerID:   s.OwnerID,
		CreatedAt: s.CreatedAt,
		Active:    true,
	}
}

// The methods below touch session-owned state and must only be called from
// inside a Do task.

// AddParticipant registers a participant, replacing any previous record for
// the same user.
func (s *Session) AddParticipant(p types.Participant) {
	s.participants[p.UserID] = p
}

// RemoveParticipant deregisters a user and drops their presence. Idempotent.
func (s *Session) RemoveParticipant(userID string) {
	delete(s.participants, userID)
	s.Presence.Remove(userID)
}

// HasParticipant reports membership.
func (s *Session) HasParticipant(userID string) bool {
	_, exists := s.participants[userID]
	return exists
}

// ParticipantCount returns the current number of participants.
func (s *Session) ParticipantCount() int {
	return len(s.participants)
}

// Participants returns the participant list ordered by user ID for stable
// payloads.
func (s *Session) Participants() []types.Participant {
	out := make([]types.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// AppendChat appends to the session's ordered chat log.
func (s *Session) AppendChat(message types.ChatMessage) {
	s.chat = append(s.chat, message)
}

// ChatLog returns a copy of the chat log in order.
func (s *Session) ChatLog() []types.ChatMessage {
	out := make([]types.ChatMessage, len(s.chat))
	copy(out, s.chat)
	return out
}
