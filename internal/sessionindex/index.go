// Package sessionindex persists observed resume tokens.
//
// index.go - SQLite-backed session metadata
//
// Event streams are never persisted; this index stores only session
// identity metadata: which token belongs to which working directory,
// and when it was last used. The facade records the tokens it observes
// here and the CLI lists recent sessions from it; kimi's work-dir lookup
// reads its own sessions file instead. Everything works with a nil index.

package sessionindex

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HyphaGroup/warden/internal/event"
)

// ErrNotFound is returned when no session matches a lookup.
var ErrNotFound = errors.New("session not found")

// Entry is one indexed session.
type Entry struct {
	Token    event.ResumeToken `json:"token"`
	Dir      string            `json:"dir,omitempty"`
	Title    string            `json:"title,omitempty"`
	LastUsed time.Time         `json:"last_used"`
}

// Index is the SQLite-backed session store.
type Index struct {
	db *sql.DB
}

// Open creates or opens the index database under dataDir.
func Open(dataDir string) (*Index, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "sessions.db")
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return idx, nil
}

func (i *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		engine TEXT NOT NULL,
		value TEXT NOT NULL,
		dir TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		last_used DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (engine, value)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_dir ON sessions(engine, dir);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_used ON sessions(last_used);
	`
	_, err := i.db.Exec(schema)
	return err
}

// Close closes the database.
func (i *Index) Close() error {
	if i == nil {
		return nil
	}
	return i.db.Close()
}

// Record upserts a session observation. Nil-safe.
func (i *Index) Record(token event.ResumeToken, dir, title string) error {
	if i == nil || token.IsZero() {
		return nil
	}
	_, err := i.db.Exec(`
		INSERT INTO sessions (engine, value, dir, title, last_used)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(engine, value) DO UPDATE SET
			dir = CASE WHEN excluded.dir != '' THEN excluded.dir ELSE sessions.dir END,
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE sessions.title END,
			last_used = excluded.last_used`,
		token.Engine, token.Value, dir, title, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// LookupByDir returns the most recently used session for a working
// directory.
func (i *Index) LookupByDir(engine, dir string) (Entry, error) {
	if i == nil {
		return Entry{}, ErrNotFound
	}
	row := i.db.QueryRow(`
		SELECT engine, value, dir, title, last_used FROM sessions
		WHERE engine = ? AND dir = ?
		ORDER BY last_used DESC LIMIT 1`, engine, dir)
	return scanEntry(row)
}

// Recent returns up to n sessions for an engine, newest first. An
// empty engine matches all engines.
func (i *Index) Recent(engine string, n int) ([]Entry, error) {
	if i == nil {
		return nil, nil
	}
	if n <= 0 {
		n = 20
	}
	query := `SELECT engine, value, dir, title, last_used FROM sessions`
	args := []any{}
	if engine != "" {
		query += ` WHERE engine = ?`
		args = append(args, engine)
	}
	query += ` ORDER BY last_used DESC LIMIT ?`
	args = append(args, n)

	rows, err := i.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Token.Engine, &e.Token.Value, &e.Dir, &e.Title, &e.LastUsed); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Forget deletes a session from the index. Nil-safe and idempotent.
func (i *Index) Forget(token event.ResumeToken) error {
	if i == nil {
		return nil
	}
	_, err := i.db.Exec(`DELETE FROM sessions WHERE engine = ? AND value = ?`,
		token.Engine, token.Value)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	err := row.Scan(&e.Token.Engine, &e.Token.Value, &e.Dir, &e.Title, &e.LastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}
