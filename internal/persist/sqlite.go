package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chadiek/glass-bridge/internal/session"
)

// currentSchemaVersion is the latest schema version. Bump it when adding migrations.
const currentSchemaVersion = 1

type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

func openSQLite(path string, now func() time.Time) (*sqliteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteStore{db: db, now: now}, nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("failed to get user_version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS sessions (
		  id         TEXT PRIMARY KEY,
		  updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversation_entries (
		  id         TEXT PRIMARY KEY,
		  session_id TEXT NOT NULL,
		  created_at INTEGER NOT NULL,
		  query      TEXT NOT NULL,
		  response   TEXT NOT NULL,
		  pages_json TEXT NOT NULL,
		  persona    TEXT NOT NULL,
		  fallback   INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_entries_session_created
		ON conversation_entries(session_id, created_at);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", 1)); err != nil {
			return fmt.Errorf("failed to set user_version: %w", err)
		}
	}
	return nil
}

func (s *sqliteStore) SaveConversationEntry(ctx context.Context, sessionID string, e session.ConversationEntry) error {
	pages, err := json.Marshal(e.Pages)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO conversation_entries
		  (id, session_id, created_at, query, response, pages_json, persona, fallback)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, sessionID, e.Timestamp.UnixMilli(), e.Query, e.Response, string(pages), e.Persona, e.Fallback)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (s *sqliteStore) TouchSessionUpdatedAt(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, updated_at) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		sessionID, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// entries returns a session's stored turns, oldest first.
func (s *sqliteStore) entries(ctx context.Context, sessionID string) ([]session.ConversationEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, query, response, pages_json, persona, fallback
		FROM conversation_entries WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.ConversationEntry
	for rows.Next() {
		var (
			e        session.ConversationEntry
			created  int64
			pages    string
			fallback bool
		)
		if err := rows.Scan(&e.ID, &created, &e.Query, &e.Response, &pages, &e.Persona, &fallback); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(pages), &e.Pages); err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		e.Timestamp = time.UnixMilli(created).UTC()
		e.Fallback = fallback
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error { return s.db.Close() }
