package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

const writeQueueSize = 256

// Store is the SQLite-backed persistence layer. All writes flow through a
// single writer goroutine, which is how SQLite wants to be written to; reads
// run concurrently against the connection pool.
//
// Queue* methods enqueue without waiting and drop (with a logged warning)
// when the queue is full: the live event path must never block on disk.
type Store struct {
	db       *sql.DB
	writes   chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type writeOperation struct {
	apply func(db *sql.DB) error
	// result is nil for fire-and-forget writes.
	result chan error
}

// NewStore opens (creating if needed) the database at path, applies the
// schema and starts the writer goroutine.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:       db,
		writes:   make(chan writeOperation, writeQueueSize),
		shutdown: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop processes all writes in a single goroutine. On shutdown it
// drains the queue so already-accepted fire-and-forget writes still land.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writes:
			s.runWrite(op)
		case <-s.shutdown:
			for {
				select {
				case op := <-s.writes:
					s.runWrite(op)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) runWrite(op writeOperation) {
	err := op.apply(s.db)
	if err != nil {
		log.Printf("Database write failed: %v", err)
	}
	if op.result != nil {
		op.result <- err
	}
}

// executeWrite queues a write and waits for it to complete.
func (s *Store) executeWrite(ctx context.Context, apply func(db *sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case s.writes <- writeOperation{apply: apply, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return ErrStoreClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// queueWrite enqueues a write without waiting. A full queue drops the write.
func (s *Store) queueWrite(description string, apply func(db *sql.DB) error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()

	select {
	case s.writes <- writeOperation{apply: apply}:
	default:
		log.Printf("Write queue full, dropping %s", description)
	}
}

// SaveSession inserts a session row, or reactivates it if the session was
// previously ended and its ID is being reused.
func (s *Store) SaveSession(ctx context.Context, session *types.Session) error {
	id, ownerID, createdAt := session.ID, session.OwnerID, session.CreatedAt
	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO sessions (id, owner_id, created_at, active)
			VALUES (?, ?, ?, 1)
			ON CONFLICT(id) DO UPDATE SET
				owner_id = excluded.owner_id,
				created_at = excluded.created_at,
				ended_at = NULL,
				active = 1`,
			id, ownerID, createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// MarkSessionEnded stamps the session's end time and deactivates it.
func (s *Store) MarkSessionEnded(ctx context.Context, sessionID string) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			`UPDATE sessions SET ended_at = ?, active = 0 WHERE id = ?`,
			time.Now(), sessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark session ended: %w", err)
		}
		return nil
	})
}

// QueueChatMessage persists a chat message off the live path.
func (s *Store) QueueChatMessage(message *types.ChatMessage) {
	m := *message
	s.queueWrite("chat message", func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO chat_messages (id, session_id, user_id, display_name, content, kind, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.SessionID, m.UserID, m.DisplayName, m.Content, m.Kind, m.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chat message: %w", err)
		}
		return nil
	})
}

// QueueExchange persists one question/answer exchange off the live path.
func (s *Store) QueueExchange(sessionID string, entry *types.QAEntry) {
	e := *entry
	s.queueWrite("exchange", func(db *sql.DB) error {
		actionsJSON, err := json.Marshal(e.WhiteboardActions)
		if err != nil {
			return fmt.Errorf("failed to marshal whiteboard actions: %w", err)
		}
		followUpsJSON, err := json.Marshal(e.FollowUpQuestions)
		if err != nil {
			return fmt.Errorf("failed to marshal follow-up questions: %w", err)
		}

		_, err = db.Exec(`
			INSERT INTO qa_exchanges
				(id, session_id, question, answer, subtopic, level, response_time_ms,
				 whiteboard_actions, follow_up_questions, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, sessionID, e.Question, e.Answer, e.Subtopic, e.Level,
			e.ResponseTime.Milliseconds(), string(actionsJSON), string(followUpsJSON), e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert exchange: %w", err)
		}
		return nil
	})
}

// QueueWhiteboardSnapshot persists the latest board state off the live path.
// Only the most recent snapshot per session is kept.
func (s *Store) QueueWhiteboardSnapshot(sessionID string, elements map[string]types.WhiteboardElement, version uint64) {
	s.queueWrite("whiteboard snapshot", func(db *sql.DB) error {
		elementsJSON, err := json.Marshal(elements)
		if err != nil {
			return fmt.Errorf("failed to marshal whiteboard elements: %w", err)
		}

		_, err = db.Exec(`
			INSERT INTO whiteboard_snapshots (session_id, elements, version, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				elements = excluded.elements,
				version = excluded.version,
				updated_at = excluded.updated_at
			WHERE excluded.version >= whiteboard_snapshots.version`,
			sessionID, string(elementsJSON), version, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert whiteboard snapshot: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session row by ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, created_at, ended_at, active
		FROM sessions WHERE id = ?`, sessionID)

	var session types.Session
	var endedAt sql.NullTime
	err := row.Scan(&session.ID, &session.OwnerID, &session.CreatedAt, &endedAt, &session.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	return &session, nil
}

// ListSessions returns all sessions, most recent first.
func (s *Store) ListSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, created_at, ended_at, active
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		var session types.Session
		var endedAt sql.NullTime
		if err := rows.Scan(&session.ID, &session.OwnerID, &session.CreatedAt, &endedAt, &session.Active); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		if endedAt.Valid {
			session.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

// GetChatHistory returns a session's chat log in chronological order.
func (s *Store) GetChatHistory(ctx context.Context, sessionID string) ([]*types.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, display_name, content, kind, timestamp
		FROM chat_messages WHERE session_id = ? ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.ChatMessage
	for rows.Next() {
		var m types.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.DisplayName, &m.Content, &m.Kind, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat rows: %w", err)
	}
	return messages, nil
}

// GetWhiteboardSnapshot returns the last persisted board state for a session.
func (s *Store) GetWhiteboardSnapshot(ctx context.Context, sessionID string) (map[string]types.WhiteboardElement, uint64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT elements, version FROM whiteboard_snapshots WHERE session_id = ?`, sessionID)

	var elementsJSON string
	var version uint64
	err := row.Scan(&elementsJSON, &version)
	if err != nil {
		if err == sql.ErrNoRows {
			return map[string]types.WhiteboardElement{}, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to query whiteboard snapshot: %w", err)
	}

	var elements map[string]types.WhiteboardElement
	if err := json.Unmarshal([]byte(elementsJSON), &elements); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal whiteboard elements: %w", err)
	}
	return elements, version, nil
}

// HealthCheck validates database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close drains pending writes and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
