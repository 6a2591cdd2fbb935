package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	model      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	turns      TEXT NOT NULL,
	usage      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);
`

// SQLiteStore keeps sessions in <dir>/sessions.db. Turns and usage are stored
// as JSON columns; the listing never decodes them beyond a count.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", filepath.Join(dir, "sessions.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(sess *Session) error {
	turns, err := json.Marshal(sess.Turns)
	if err != nil {
		return fmt.Errorf("failed to encode turns: %w", err)
	}
	usage, err := json.Marshal(sess.Usage)
	if err != nil {
		return fmt.Errorf("failed to encode usage: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, title, model, created_at, updated_at, turns, usage)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			updated_at = excluded.updated_at,
			turns = excluded.turns,
			usage = excluded.usage`,
		sess.ID, sess.Title, sess.Model, sess.CreatedAt, sess.UpdatedAt, string(turns), string(usage))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(id string) (*Session, error) {
	var sess Session
	var turns, usage string
	err := s.db.QueryRow(`
		SELECT id, title, model, created_at, updated_at, turns, usage
		FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Title, &sess.Model, &sess.CreatedAt, &sess.UpdatedAt, &turns, &usage)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if err := json.Unmarshal([]byte(turns), &sess.Turns); err != nil {
		return nil, fmt.Errorf("failed to decode turns for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(usage), &sess.Usage); err != nil {
		return nil, fmt.Errorf("failed to decode usage for %s: %w", id, err)
	}
	return &sess, nil
}

func (s *SQLiteStore) List() ([]Summary, error) {
	rows, err := s.db.Query(`
		SELECT id, title, model, updated_at, json_array_length(turns)
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Model, &sum.UpdatedAt, &sum.TurnCount); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
