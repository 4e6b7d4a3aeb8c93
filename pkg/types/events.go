package types

import (
	"encoding/json"
	"time"
)

// Inbound event types (client → server).
const (
	EventJoinSession      = "join-session"
	EventLeaveSession     = "leave-session"
	EventChatMessage      = "chat-message"
	EventAIQuestion       = "ai-question"
	EventWhiteboardUpdate = "whiteboard-update"
	EventWhiteboardCursor = "whiteboard-cursor"
	EventAITypingStart    = "ai-typing-start"
	EventAITypingStop     = "ai-typing-stop"
	EventVoiceRequest     = "voice-request"
)

// Outbound event types (server → client).
const (
	EventSessionJoined    = "session-joined"
	EventUserJoined       = "user-joined-session"
	EventUserLeft         = "user-left-session"
	EventUserDisconnected = "user-disconnected"
	EventAIThinking       = "ai-thinking"
	EventAITyping         = "ai-typing"
	EventAIAnswer         = "aiAnswer"
	EventWhiteboardSync   = "whiteboardUpdate"
	EventCursorUpdate     = "cursor-update"
	EventChatBroadcast    = "chat-message"
	EventVoiceReply       = "voiceReply"
	EventError            = "error"
)

// Error codes carried by EventError payloads.
const (
	ErrorCodeBusy             = "generation_in_progress"
	ErrorCodeGenerationFailed = "generation_failed"
	ErrorCodeSessionNotFound  = "session_not_found"
	ErrorCodeMalformedEvent   = "malformed_event"
	ErrorCodeRateLimited      = "rate_limited"
)

// Envelope is the wire format for every inbound client event. Payload stays
// raw until the hub knows which event type it is decoding.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ServerEvent is the wire format for every outbound event.
type ServerEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewServerEvent stamps an outbound event with the current time.
func NewServerEvent(eventType, sessionID string, payload interface{}) ServerEvent {
	return ServerEvent{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Inbound payloads.

type ChatMessagePayload struct {
	Message string `json:"message"`
}

type AIQuestionPayload struct {
	Question string `json:"question"`
	Subtopic string `json:"subtopic,omitempty"`
	Level    string `json:"level,omitempty"`
}

type WhiteboardUpdatePayload struct {
	Action  string             `json:"action"`
	Element *WhiteboardElement `json:"element,omitempty"`
}

type CursorPayload struct {
	Position Position `json:"position"`
}

type VoiceRequestPayload struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Outbound payloads.

// SessionJoinedPayload is the full sync a new joiner receives: who is here,
// the reconstructable whiteboard state, and the conversation memory tail.
type SessionJoinedPayload struct {
	SessionID    string                       `json:"sessionId"`
	Participants []Participant                `json:"participants"`
	Whiteboard   WhiteboardSnapshotPayload    `json:"whiteboardSnapshot"`
	RecentMemory []QAEntry                    `json:"recentMemory"`
	Cursors      []CursorEntry                `json:"cursors"`
}

type WhiteboardSnapshotPayload struct {
	Elements map[string]WhiteboardElement `json:"elements"`
	Version  uint64                       `json:"version"`
}

type PresencePayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role,omitempty"`
}

type AIThinkingPayload struct {
	IsThinking bool `json:"isThinking"`
}

type AITypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

type AIAnswerPayload struct {
	Response          string             `json:"response"`
	WhiteboardActions []WhiteboardAction `json:"whiteboardActions,omitempty"`
	FollowUpQuestions []string           `json:"followUpQuestions,omitempty"`
	Confidence        float64            `json:"confidence"`
}

// WhiteboardEventPayload carries one applied operation. Version gives
// receivers a total order for whiteboard state per session.
type WhiteboardEventPayload struct {
	Action  string             `json:"action"`
	Element *WhiteboardElement `json:"element,omitempty"`
	Version uint64             `json:"version"`
	Author  string             `json:"author"`
}

type CursorUpdatePayload struct {
	UserID   string   `json:"userId"`
	Position Position `json:"position"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
