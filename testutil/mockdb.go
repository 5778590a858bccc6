package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// CreateHistoryFixture writes a version 1 history database at path holding
// one guild session with a user and an assistant entry.
func CreateHistoryFixture(t *testing.T, path, sessionID string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create fixture directory: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	stmts := []string{
		`CREATE TABLE sessions (
			id TEXT PRIMARY KEY,
			guild_id TEXT NOT NULL DEFAULT '',
			quest_id TEXT NOT NULL DEFAULT '',
			linked_quest_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			fingerprint TEXT NOT NULL DEFAULT '',
			entry_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE entries (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			tool_use_id TEXT NOT NULL DEFAULT '',
			tool_name TEXT NOT NULL DEFAULT '',
			tool_input TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (session_id, seq)
		)`,
		`PRAGMA user_version = 1`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to create schema: %v", err)
		}
	}

	InsertHistorySession(t, db, sessionID, "g-fixture", "Fixture chat")
	InsertHistoryEntry(t, db, sessionID, 0, "user", "", "hello")
	InsertHistoryEntry(t, db, sessionID, 1, "assistant", "text", "hi there")
}

// InsertHistorySession inserts a sessions row
func InsertHistorySession(t *testing.T, db *sql.DB, id, guildID, name string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO sessions (id, guild_id, source, name, created_at, updated_at)
		VALUES (?, ?, 'live', ?, '2025-01-01T00:00:00Z', '2025-01-01T00:00:00Z')`, id, guildID, name)
	if err != nil {
		t.Fatalf("Failed to insert session: %v", err)
	}
}

// InsertHistoryEntry inserts an entries row
func InsertHistoryEntry(t *testing.T, db *sql.DB, sessionID string, seq int, role, typ, content string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO entries (session_id, seq, role, type, content) VALUES (?, ?, ?, ?, ?)`,
		sessionID, seq, role, typ, content)
	if err != nil {
		t.Fatalf("Failed to insert entry: %v", err)
	}
	if _, err := db.Exec(`UPDATE sessions SET entry_count = entry_count + 1 WHERE id = ?`, sessionID); err != nil {
		t.Fatalf("Failed to update entry count: %v", err)
	}
}
