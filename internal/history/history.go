// Package history keeps an append-only record of every push attempt in a
// local SQLite database. The record is best-effort: a failed insert is
// logged, never propagated, because the audit trail must not interfere with
// presence updates.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashita-ai/kehai/internal/status"
)

// Entry is one recorded push attempt.
type Entry struct {
	ID       int64         `json:"id"`
	At       time.Time     `json:"at"`
	Kind     status.Kind   `json:"kind"`
	Origin   status.Origin `json:"origin"`
	MainCode int           `json:"main_code"`
	ExtCode  int           `json:"ext_code"`
	IconID   int           `json:"icon_id"`
	Text     string        `json:"text,omitempty"`
	OK       bool          `json:"ok"`
}

// DB wraps the SQLite handle.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS push_history (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    at         TEXT    NOT NULL,
    kind       TEXT    NOT NULL,
    origin     TEXT    NOT NULL,
    main_code  INTEGER NOT NULL,
    ext_code   INTEGER NOT NULL,
    icon_id    INTEGER NOT NULL,
    text       TEXT    NOT NULL DEFAULT '',
    ok         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_push_history_at ON push_history (at DESC);
`

// Open opens (creating if needed) the history database at path.
func Open(path string, logger *slog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent triggers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{db: db, logger: logger.With("component", "history")}, nil
}

// Close releases the database handle.
func (h *DB) Close() error {
	return h.db.Close()
}

// Record appends one push attempt. Implements the arbiter's Recorder.
func (h *DB) Record(ctx context.Context, target status.Status, ok bool) {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO push_history (at, kind, origin, main_code, ext_code, icon_id, text, ok)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
		string(target.Kind), string(target.Origin),
		target.MainCode, target.ExtCode, target.IconID, target.Text,
		boolToInt(ok),
	)
	if err != nil {
		h.logger.Warn("recording push attempt failed", "error", err)
	}
}

// List returns the most recent entries, newest first.
func (h *DB) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, at, kind, origin, main_code, ext_code, icon_id, text, ok
		 FROM push_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			at     string
			kind   string
			origin string
			ok     int
		)
		if err := rows.Scan(&e.ID, &at, &kind, &origin, &e.MainCode, &e.ExtCode, &e.IconID, &e.Text, &ok); err != nil {
			return nil, fmt.Errorf("history: scan entry: %w", err)
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.Kind = status.Kind(kind)
		e.Origin = status.Origin(origin)
		e.OK = ok != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate entries: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
