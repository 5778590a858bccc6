package internal

import (
	"database/sql"
	"errors"
	"fmt"
)

// SessionIndexEntry is one row of the history list
type SessionIndexEntry struct {
	ID            string `json:"id" yaml:"id"`
	Target        Target `json:"target" yaml:"target"`
	LinkedQuestID string `json:"linked_quest_id,omitempty" yaml:"linked_quest_id,omitempty"`
	Source        string `json:"source" yaml:"source"`
	Name          string `json:"name,omitempty" yaml:"name,omitempty"`
	CreatedAt     string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	EntryCount    int    `json:"entry_count" yaml:"entry_count"`
}

// Store keeps saved transcripts in SQLite
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database. Use OpenStore to open by path.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// OpenStore opens the history database at path
func OpenStore(path string) (*Store, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	return NewStore(db), nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession writes a session and its entries. It reports false without
// writing when the stored fingerprint already matches.
func (s *Store) SaveSession(session *Session) (bool, error) {
	if session == nil || session.ID == "" {
		return false, &StoreError{Op: "save", Err: errors.New("session has no id")}
	}
	fp := session.Metadata.Fingerprint
	if fp == "" {
		fp = Fingerprint(session)
	}

	var existing, createdAt string
	err := s.db.QueryRow("SELECT fingerprint, created_at FROM sessions WHERE id = ?", session.ID).Scan(&existing, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		createdAt = session.Metadata.CreatedAt
	case err != nil:
		return false, &StoreError{Op: "save", SessionID: session.ID, Err: err}
	case existing == fp:
		LogDebug("Session %s unchanged, skipping save", session.ID)
		return false, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, &StoreError{Op: "save", SessionID: session.ID, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT INTO sessions (id, guild_id, quest_id, linked_quest_id, source, name, fingerprint, entry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			guild_id = excluded.guild_id,
			quest_id = excluded.quest_id,
			linked_quest_id = excluded.linked_quest_id,
			source = excluded.source,
			name = excluded.name,
			fingerprint = excluded.fingerprint,
			entry_count = excluded.entry_count,
			updated_at = excluded.updated_at`,
		session.ID, session.Target.GuildID, session.Target.QuestID, session.Metadata.LinkedQuestID,
		session.Source, session.Metadata.Name, fp, len(session.Entries), createdAt, session.Metadata.UpdatedAt)
	if err != nil {
		return false, &StoreError{Op: "save", SessionID: session.ID, Err: fmt.Errorf("failed to upsert session: %w", err)}
	}

	if _, err := tx.Exec("DELETE FROM entries WHERE session_id = ?", session.ID); err != nil {
		return false, &StoreError{Op: "save", SessionID: session.ID, Err: fmt.Errorf("failed to clear entries: %w", err)}
	}

	stmt, err := tx.Prepare(`INSERT INTO entries (session_id, seq, role, type, content, tool_use_id, tool_name, tool_input, agent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return false, &StoreError{Op: "save", SessionID: session.ID, Err: err}
	}
	defer stmt.Close()

	for i, e := range session.Entries {
		if _, err := stmt.Exec(session.ID, i, string(e.Role), string(e.Type), e.Content, e.ToolUseID, e.ToolName, e.ToolInput, e.AgentID); err != nil {
			return false, &StoreError{Op: "save", SessionID: session.ID, Err: fmt.Errorf("failed to insert entry %d: %w", i, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, &StoreError{Op: "save", SessionID: session.ID, Err: err}
	}
	return true, nil
}

// LoadSession loads a session and its entries by id
func (s *Store) LoadSession(id string) (*Session, error) {
	session := &Session{ID: id}
	err := s.db.QueryRow(`SELECT guild_id, quest_id, linked_quest_id, source, name, fingerprint, entry_count, created_at, updated_at
		FROM sessions WHERE id = ?`, id).Scan(
		&session.Target.GuildID, &session.Target.QuestID, &session.Metadata.LinkedQuestID, &session.Source,
		&session.Metadata.Name, &session.Metadata.Fingerprint, &session.Metadata.EntryCount,
		&session.Metadata.CreatedAt, &session.Metadata.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &StoreError{Op: "load", SessionID: id, Err: fmt.Errorf("session not found")}
	}
	if err != nil {
		return nil, &StoreError{Op: "load", SessionID: id, Err: err}
	}

	rows, err := s.db.Query(`SELECT role, type, content, tool_use_id, tool_name, tool_input, agent_id
		FROM entries WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, &StoreError{Op: "load", SessionID: id, Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var e ChatEntry
		var role, typ string
		if err := rows.Scan(&role, &typ, &e.Content, &e.ToolUseID, &e.ToolName, &e.ToolInput, &e.AgentID); err != nil {
			return nil, &StoreError{Op: "load", SessionID: id, Err: fmt.Errorf("scan failed: %w", err)}
		}
		e.Role = Role(role)
		e.Type = EntryType(typ)
		session.Entries = append(session.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "load", SessionID: id, Err: fmt.Errorf("rows iteration error: %w", err)}
	}

	return session, nil
}

// ListSessions returns saved sessions, most recently updated first.
// limit <= 0 means no limit.
func (s *Store) ListSessions(limit int) ([]SessionIndexEntry, error) {
	query := `SELECT id, guild_id, quest_id, linked_quest_id, source, name, entry_count, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	defer rows.Close()

	var out []SessionIndexEntry
	for rows.Next() {
		var e SessionIndexEntry
		if err := rows.Scan(&e.ID, &e.Target.GuildID, &e.Target.QuestID, &e.LinkedQuestID, &e.Source,
			&e.Name, &e.EntryCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, &StoreError{Op: "list", Err: fmt.Errorf("scan failed: %w", err)}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	return out, nil
}

// LoadAllSessions loads every saved session with content duplicates removed
func (s *Store) LoadAllSessions() ([]*Session, error) {
	index, err := s.ListSessions(0)
	if err != nil {
		return nil, err
	}
	var sessions []*Session
	for _, entry := range index {
		session, err := s.LoadSession(entry.ID)
		if err != nil {
			LogWarn("Failed to load session %s: %v", entry.ID, err)
			continue
		}
		sessions = append(sessions, session)
	}
	return NewDeduplicator().Deduplicate(sessions), nil
}

// DeleteSession removes a session and its entries
func (s *Store) DeleteSession(id string) error {
	res, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return &StoreError{Op: "delete", SessionID: id, Err: err}
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return &StoreError{Op: "delete", SessionID: id, Err: fmt.Errorf("session not found")}
	}
	return nil
}
