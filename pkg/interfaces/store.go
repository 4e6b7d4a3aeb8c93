package interfaces

import (
	"context"

	"tutorhub/pkg/types"
)

// Store is the durable side of a session. Live state is authoritative; the
// store trails it. Queue* methods are fire-and-forget: they never block the
// session's event-processing path and are eventually consistent with it.
type Store interface {
	// Synchronous session lifecycle writes.
	SaveSession(ctx context.Context, session *types.Session) error
	MarkSessionEnded(ctx context.Context, sessionID string) error

	// Asynchronous, eventually consistent saves from the live path.
	QueueChatMessage(message *types.ChatMessage)
	QueueExchange(sessionID string, entry *types.QAEntry)
	QueueWhiteboardSnapshot(sessionID string, elements map[string]types.WhiteboardElement, version uint64)

	// Read surface for the HTTP API.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	ListSessions(ctx context.Context) ([]*types.Session, error)
	GetChatHistory(ctx context.Context, sessionID string) ([]*types.ChatMessage, error)
	GetWhiteboardSnapshot(ctx context.Context, sessionID string) (map[string]types.WhiteboardElement, uint64, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
