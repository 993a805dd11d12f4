// Package history holds the transcription history: a SQLite-backed
// store plus the per-entry mutation workflow the list view drives.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/ZawYePhyo/Handy/settings"
)

// Entry is one past transcription. A translation derived from Text is
// view state owned by the workflow, never persisted here.
type Entry struct {
	ID        int64
	Text      string
	Saved     bool
	Timestamp int64
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	text      TEXT NOT NULL,
	saved     INTEGER NOT NULL DEFAULT 0,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp DESC);
`

type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the history database in embedded mode with WAL,
// so the UI can read while a write is in flight.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// Entries returns the newest entries, up to limit (0 = no limit).
func (s *Store) Entries(ctx context.Context, limit int) ([]Entry, error) {
	q := "SELECT id, text, saved, timestamp FROM entries ORDER BY timestamp DESC, id DESC"
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.conn.QueryContext(ctx, q+" LIMIT ?", limit)
	} else {
		rows, err = s.conn.QueryContext(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var saved int
		if err := rows.Scan(&e.ID, &e.Text, &saved, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Saved = saved != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// Insert adds a transcription. The transcription pipeline that produces
// entries lives outside this subsystem; within it this is exercised by
// tests and any tooling that seeds a history database.
func (s *Store) Insert(ctx context.Context, text string, ts time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		"INSERT INTO entries (text, timestamp) VALUES (?, ?)", text, ts.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to insert entry: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) UpdateText(ctx context.Context, id int64, text string) error {
	res, err := s.conn.ExecContext(ctx,
		"UPDATE entries SET text = ? WHERE id = ?", text, id)
	if err != nil {
		return fmt.Errorf("failed to update entry %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("entry %d not found", id)
	}
	return nil
}

func (s *Store) ToggleSaved(ctx context.Context, id int64) error {
	res, err := s.conn.ExecContext(ctx,
		"UPDATE entries SET saved = 1 - saved WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to toggle entry %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("entry %d not found", id)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete entry %d: %w", id, err)
	}
	return nil
}

// Cleanup prunes unsaved entries past the history limit and, when the
// retention period has an age cutoff, unsaved entries older than it.
// Entries the user marked saved are always kept.
func (s *Store) Cleanup(ctx context.Context, limit int, retention settings.RetentionPeriod) error {
	if limit > 0 {
		_, err := s.conn.ExecContext(ctx, `
			DELETE FROM entries WHERE saved = 0 AND id NOT IN (
				SELECT id FROM entries ORDER BY timestamp DESC, id DESC LIMIT ?
			)`, limit)
		if err != nil {
			return fmt.Errorf("failed to prune over-limit entries: %w", err)
		}
	}
	if cutoff, ok := retention.Cutoff(time.Now()); ok {
		_, err := s.conn.ExecContext(ctx,
			"DELETE FROM entries WHERE saved = 0 AND timestamp < ?", cutoff.Unix())
		if err != nil {
			return fmt.Errorf("failed to prune expired entries: %w", err)
		}
	}
	return nil
}
