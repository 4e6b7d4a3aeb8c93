package broadcast

import (
	"log"

	"tutorhub/internal/websocket"
	"tutorhub/pkg/types"
)

// Broadcaster fans state-change events out to the connections of a session
// room. Delivery is at-least-once to currently connected participants only;
// there is no offline queue. A per-connection write failure is logged and
// never blocks delivery to the rest of the room.
type Broadcaster struct {
	registry *websocket.Registry
}

// New creates a broadcaster over the given connection registry.
func New(registry *websocket.Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// FanOut delivers an event to every participant of the session. If
// excludeUserID is non-empty that participant is skipped, which avoids
// echoing whiteboard and cursor events back to their originator. Fan-out to
// an empty room is a no-op.
func (b *Broadcaster) FanOut(sessionID string, event types.ServerEvent, excludeUserID string) {
	for _, conn := range b.registry.GetSessionConnections(sessionID) {
		if excludeUserID != "" && conn.GetUserID() == excludeUserID {
			continue
		}
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("Failed to deliver %s to user %s in session %s: %v",
				event.Type, conn.GetUserID(), sessionID, err)
		}
	}
}

// SendTo delivers an event to a single user, if still connected. Used for
// direct replies: session-joined snapshots, busy rejections, voice replies.
func (b *Broadcaster) SendTo(userID string, event types.ServerEvent) {
	conn, exists := b.registry.GetUserConnection(userID)
	if !exists {
		return
	}
	b.SendDirect(conn, event)
}

// SendDirect delivers an event over a specific connection. Rejections can
// target connections that are not registered in any room yet, so delivery
// skips the user lookup.
func (b *Broadcaster) SendDirect(conn *websocket.Connection, event types.ServerEvent) {
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(event); err != nil {
		log.Printf("Failed to deliver %s to user %s: %v", event.Type, conn.GetUserID(), err)
	}
}
