package types

import (
	"time"
)

// Participant roles. The AI tutor joins a session as a participant like any
// other connection; observers receive events but never drive the conversation.
const (
	RoleLearner  = "learner"
	RoleAI       = "ai"
	RoleObserver = "observer"
)

// Chat message kinds.
const (
	ChatKindUser   = "user"
	ChatKindAI     = "ai"
	ChatKindSystem = "system"
)

// Whiteboard operation actions.
const (
	WhiteboardActionAdd    = "add"
	WhiteboardActionUpdate = "update"
	WhiteboardActionDelete = "delete"
	WhiteboardActionClear  = "clear"
)

// Session is the live session descriptor. The per-session state a session
// owns (conversation state, memory, whiteboard, presence) lives with the
// registry's session object, not here.
type Session struct {
	ID        string     `json:"id" db:"id"`
	OwnerID   string     `json:"owner_id" db:"owner_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	Active    bool       `json:"active" db:"active"`
}

// Participant is one connection joined to a session.
type Participant struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	Role         string    `json:"role"`
	LastSeen     time.Time `json:"lastSeen"`
}

// ChatMessage is an ordered, append-only session chat entry.
type ChatMessage struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Content     string    `json:"content"`
	Kind        string    `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
}

// QAEntry is one question/answer exchange held in conversation memory.
type QAEntry struct {
	ID                string             `json:"id"`
	Question          string             `json:"question"`
	Answer            string             `json:"answer"`
	Subtopic          string             `json:"subtopic,omitempty"`
	Level             string             `json:"level,omitempty"`
	ResponseTime      time.Duration      `json:"responseTime"`
	WhiteboardActions []WhiteboardAction `json:"whiteboardActions,omitempty"`
	FollowUpQuestions []string           `json:"followUpQuestions,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
}

// Position is a 2D whiteboard coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WhiteboardElement is one drawable unit with stable identity. Version is
// the log version assigned at the element's last mutation.
type WhiteboardElement struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Position Position          `json:"position"`
	Content  string            `json:"content"`
	Style    map[string]string `json:"style,omitempty"`
	Version  uint64            `json:"version"`
	Author   string            `json:"author"`
}

// WhiteboardAction is one structured drawing step produced by the answer
// generator and applied to the replication log in order.
type WhiteboardAction struct {
	Action  string             `json:"action"`
	Element *WhiteboardElement `json:"element,omitempty"`
}

// CursorEntry is an ephemeral per-user cursor position. Entries older than
// the presence TTL are never delivered in a fresh snapshot.
type CursorEntry struct {
	UserID    string    `json:"userId"`
	Position  Position  `json:"position"`
	Timestamp time.Time `json:"timestamp"`
}

// AIAnswer is the structured result of one answer-generation call.
type AIAnswer struct {
	Response          string             `json:"response"`
	WhiteboardActions []WhiteboardAction `json:"whiteboardActions,omitempty"`
	FollowUpQuestions []string           `json:"followUpQuestions,omitempty"`
	Confidence        float64            `json:"confidence"`
}

// VoiceReply is the result of one voice-synthesis call.
type VoiceReply struct {
	AudioURL string        `json:"audioUrl"`
	Text     string        `json:"text"`
	Duration time.Duration `json:"duration"`
	Voice    string        `json:"voice"`
}

// Identity is the verified result of credential verification.
type Identity struct {
	UserID      string
	DisplayName string
	Role        string
}
