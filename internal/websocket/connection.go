package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tutorhub/pkg/types"
)

const writeTimeout = 5 * time.Second

// Connection wraps one WebSocket client. Writes are serialized through a
// single writer goroutine; identity is fixed at construction because the
// credential is verified before the upgrade. The session ID is set on join
// and cleared on leave.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	connectionID string
	identity     types.Identity

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.RWMutex // guards sessionID
	sessionID string
}

// NewConnection creates a connection wrapper for a verified identity and
// starts its writer goroutine.
func NewConnection(conn *websocket.Conn, identity types.Identity) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, 100),
		connectionID: uuid.New().String(),
		identity:     identity,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the single writer for the underlying socket. On exit it
// cancels the connection context so concurrent senders fail with
// ErrConnectionClosed; writeCh is never closed, which keeps a late
// WriteJSON from sending on a closed channel.
func (c *Connection) writeLoop() {
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues a JSON message for delivery. Safe for concurrent use.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts down the writer goroutine and the underlying socket.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// SetSessionID records the session this connection is joined to.
func (c *Connection) SetSessionID(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
}

// GetSessionID returns the joined session, or "" when not joined.
func (c *Connection) GetSessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Connection) GetConnectionID() string {
	return c.connectionID
}

func (c *Connection) GetUserID() string {
	return c.identity.UserID
}

func (c *Connection) GetDisplayName() string {
	return c.identity.DisplayName
}

func (c *Connection) GetRole() string {
	return c.identity.Role
}

// Participant builds the participant record this connection represents.
func (c *Connection) Participant() types.Participant {
	return types.Participant{
		ConnectionID: c.connectionID,
		UserID:       c.identity.UserID,
		DisplayName:  c.identity.DisplayName,
		Role:         c.identity.Role,
		LastSeen:     time.Now(),
	}
}
