// Package sqlite provides a results.Store in a local SQLite file using the
// pure-Go modernc.org/sqlite driver, so no cgo toolchain is needed.
//
// Timestamps are stored as Unix nanoseconds in UTC.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/MrWong99/phonescan/internal/results"
)

var _ results.Store = (*Store)(nil)

const ddlScanResults = `
CREATE TABLE IF NOT EXISTS scan_results (
    id          TEXT     PRIMARY KEY,
    session_id  TEXT     NOT NULL,
    number      TEXT     NOT NULL,
    national    TEXT     NOT NULL DEFAULT '',
    e164        TEXT     NOT NULL DEFAULT '',
    valid       INTEGER  NOT NULL DEFAULT 0,
    frame       INTEGER  NOT NULL DEFAULT 0,
    sightings   INTEGER  NOT NULL DEFAULT 0,
    source      TEXT     NOT NULL DEFAULT '',
    created_at  INTEGER  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scan_results_created_at
    ON scan_results (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_scan_results_session_created
    ON scan_results (session_id, created_at DESC);
`

// Store is a results.Store on a SQLite database. Safe for concurrent use;
// writes are serialised on a single connection.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and migrates it. Use
// ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// One connection: SQLite has a single writer and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA journal_mode = WAL`,
		ddlScanResults,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite store: migrate: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Save implements results.Store.
func (s *Store) Save(ctx context.Context, rec results.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	const q = `
		INSERT INTO scan_results
		    (id, session_id, number, national, e164, valid, frame, sightings, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		rec.ID,
		rec.SessionID,
		rec.Number,
		rec.National,
		rec.E164,
		rec.Valid,
		rec.Frame,
		rec.Sightings,
		rec.Source,
		rec.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite store: save %q: %w", rec.ID, err)
	}
	return nil
}

// List implements results.Store.
func (s *Store) List(ctx context.Context, opts results.ListOptions) ([]results.Record, error) {
	const q = `
		SELECT id, session_id, number, national, e164, valid, frame, sightings, source, created_at
		FROM   scan_results
		WHERE  (? = '' OR session_id = ?)
		ORDER  BY created_at DESC, id DESC
		LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, opts.SessionID, opts.SessionID, opts.EffectiveLimit())
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list: %w", err)
	}
	defer rows.Close()

	var out []results.Record
	for rows.Next() {
		var (
			r       results.Record
			created int64
		)
		if err := rows.Scan(
			&r.ID,
			&r.SessionID,
			&r.Number,
			&r.National,
			&r.E164,
			&r.Valid,
			&r.Frame,
			&r.Sightings,
			&r.Source,
			&created,
		); err != nil {
			return nil, fmt.Errorf("sqlite store: scan row: %w", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: list: %w", err)
	}
	return out, nil
}

// Ping implements results.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements results.Store.
func (s *Store) Close() error {
	return s.db.Close()
}
