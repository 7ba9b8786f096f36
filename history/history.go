// Package history persists an audit log of plate lookups: who was asked
// about, which source answered, and how it went. Writes are best-effort —
// a failing log must never fail the lookup it describes.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/platecheck/dbopen"
	"github.com/hazyhaar/platecheck/idgen"
)

const schema = `
CREATE TABLE IF NOT EXISTS lookup_history (
	id          TEXT PRIMARY KEY,
	plate       TEXT NOT NULL,
	source      TEXT NOT NULL,
	found       INTEGER NOT NULL,
	match_count INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lookup_history_plate ON lookup_history(plate);
CREATE INDEX IF NOT EXISTS idx_lookup_history_created ON lookup_history(created_at);
`

// Entry is one recorded lookup.
type Entry struct {
	ID         string    `json:"id"`
	Plate      string    `json:"plate"`
	Source     string    `json:"source"`
	Found      bool      `json:"found"`
	MatchCount int       `json:"match_count"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is a SQLite-backed lookup log.
type Store struct {
	db     *sql.DB
	ids    idgen.Generator
	logger *slog.Logger
}

// New wraps an already-open database, applying the history schema.
func New(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("history: schema: %w", err)
	}
	return &Store{
		db:     db,
		ids:    idgen.Prefixed("hist_", idgen.UUIDv7()),
		logger: logger,
	}, nil
}

// Open opens (creating if needed) a history database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		ids:    idgen.Prefixed("hist_", idgen.UUIDv7()),
		logger: logger,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record writes one entry, assigning its ID and timestamp. Failures are
// logged and swallowed.
func (s *Store) Record(ctx context.Context, e Entry) {
	e.ID = s.ids()
	e.CreatedAt = time.Now().UTC()
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO lookup_history (id, plate, source, found, match_count, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Plate, e.Source, boolInt(e.Found), e.MatchCount, e.Error, e.DurationMS,
		e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		s.logger.Warn("history write failed", "plate", e.Plate, "error", err)
	}
}

// Recent returns the newest entries, most recent first. limit values below
// 1 mean 50.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 50
	}
	return s.query(ctx,
		`SELECT id, plate, source, found, match_count, error, duration_ms, created_at
		 FROM lookup_history ORDER BY created_at DESC LIMIT ?`, limit)
}

// ByPlate returns the newest entries for one plate, most recent first.
func (s *Store) ByPlate(ctx context.Context, plate string, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 50
	}
	return s.query(ctx,
		`SELECT id, plate, source, found, match_count, error, duration_ms, created_at
		 FROM lookup_history WHERE plate = ? ORDER BY created_at DESC LIMIT ?`, plate, limit)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var found int
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Plate, &e.Source, &found, &e.MatchCount, &e.Error, &e.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Found = found != 0
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
