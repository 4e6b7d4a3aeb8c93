package database

import (
	"database/sql"
	"fmt"
)

// schema is applied at startup. Statements are idempotent so a restart over
// an existing database is safe. Persistence trails the live session state,
// so chat and exchange rows carry their session ID without a foreign key:
// the live path must never be blocked on a session row landing first.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		owner_id   TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		ended_at   DATETIME,
		active     INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id           TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL,
		user_id      TEXT NOT NULL,
		display_name TEXT NOT NULL,
		content      TEXT NOT NULL,
		kind         TEXT NOT NULL CHECK (kind IN ('user', 'ai', 'system')),
		timestamp    DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS qa_exchanges (
		id                  TEXT PRIMARY KEY,
		session_id          TEXT NOT NULL,
		question            TEXT NOT NULL,
		answer              TEXT NOT NULL,
		subtopic            TEXT,
		level               TEXT,
		response_time_ms    INTEGER NOT NULL,
		whiteboard_actions  TEXT,
		follow_up_questions TEXT,
		timestamp           DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS whiteboard_snapshots (
		session_id TEXT PRIMARY KEY,
		elements   TEXT NOT NULL,
		version    INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(active)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_session_time ON chat_messages(session_id, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_exchanges_session_time ON qa_exchanges(session_id, timestamp)`,
}

func initSchema(db *sql.DB) error {
	for _, statement := range schema {
		if _, err := db.Exec(statement); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
