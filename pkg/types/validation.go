package types

import (
	"regexp"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks the user ID format shared by every component.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return idRegex.MatchString(userID)
}

// IsValidSessionID checks the session ID format. Server-generated IDs are
// UUIDs but clients may supply their own stable identifiers.
func IsValidSessionID(sessionID string) bool {
	if len(sessionID) < 1 || len(sessionID) > 64 {
		return false
	}
	return idRegex.MatchString(sessionID)
}

// IsValidRole checks a participant role.
func IsValidRole(role string) bool {
	switch role {
	case RoleLearner, RoleAI, RoleObserver:
		return true
	default:
		return false
	}
}

// IsValidInboundEvent checks an inbound envelope type.
func IsValidInboundEvent(eventType string) bool {
	switch eventType {
	case EventJoinSession, EventLeaveSession, EventChatMessage,
		EventAIQuestion, EventWhiteboardUpdate, EventWhiteboardCursor,
		EventAITypingStart, EventAITypingStop, EventVoiceRequest:
		return true
	default:
		return false
	}
}

// Validate checks a whiteboard update payload before it reaches the log.
// Clear needs no element; every other action does.
func (p *WhiteboardUpdatePayload) Validate() error {
	switch p.Action {
	case WhiteboardActionAdd, WhiteboardActionUpdate, WhiteboardActionDelete:
		if p.Element == nil || p.Element.ID == "" {
			return ErrInvalidElement
		}
		return nil
	case WhiteboardActionClear:
		return nil
	default:
		return ErrInvalidAction
	}
}

// Validate checks a chat payload. The 16KB bound keeps a single message from
// dominating broadcast bandwidth.
func (p *ChatMessagePayload) Validate() error {
	if p.Message == "" {
		return ErrEmptyMessage
	}
	if len(p.Message) > 16*1024 {
		return ErrMessageTooLarge
	}
	return nil
}

// Validate checks an AI question payload.
func (p *AIQuestionPayload) Validate() error {
	if p.Question == "" {
		return ErrEmptyMessage
	}
	if len(p.Question) > 16*1024 {
		return ErrMessageTooLarge
	}
	return nil
}
