package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tutorhub/pkg/interfaces"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is delegated to the deployment's edge proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// EventSink consumes inbound events and transport-level disconnects. The
// hub implements it; the indirection keeps this package free of business
// logic.
type EventSink interface {
	HandleEvent(conn *Connection, data []byte)
	HandleDisconnect(conn *Connection)
}

// Handler authenticates and manages WebSocket connections. The credential
// is verified before the upgrade: a bad token is rejected with 401 and no
// session state is touched.
type Handler struct {
	verifier     interfaces.TokenVerifier
	sink         EventSink
	pingInterval time.Duration
	readTimeout  time.Duration
}

// NewHandler creates a WebSocket handler.
func NewHandler(verifier interfaces.TokenVerifier, sink EventSink, pingInterval, readTimeout time.Duration) *Handler {
	return &Handler{
		verifier:     verifier,
		sink:         sink,
		pingInterval: pingInterval,
		readTimeout:  readTimeout,
	}
}

// HandleWebSocket verifies the credential, upgrades the connection and
// starts its read loop. Joining a session happens via a join-session event
// on the established connection, not at upgrade time.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); len(header) > 7 && header[:7] == "Bearer " {
			token = header[7:]
		}
	}
	if token == "" {
		http.Error(w, "Missing credential", http.StatusUnauthorized)
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		log.Printf("Connection rejected: credential verification failed: %v", err)
		http.Error(w, "Invalid credential", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, *identity)
	log.Printf("Connection established: user=%s role=%s conn=%s",
		identity.UserID, identity.Role, wsConn.GetConnectionID())

	go h.handleConnection(wsConn)
}

// handleConnection runs the read loop with ping/pong heartbeat monitoring.
// On exit, clean or abrupt, the sink is told about the disconnect so the
// session can broadcast user-disconnected within a bounded delay.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.sink.HandleDisconnect(conn)
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error for user %s: %v", conn.GetUserID(), err)
			}
			return
		}

		if messageType == websocket.TextMessage {
			h.sink.HandleEvent(conn, data)
		}
	}
}
