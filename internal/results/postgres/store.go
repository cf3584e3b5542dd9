// Package postgres provides a PostgreSQL-backed results.Store.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	_ = store.Save(ctx, rec)
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/phonescan/internal/results"
)

var _ results.Store = (*Store)(nil)

const ddlScanResults = `
CREATE TABLE IF NOT EXISTS scan_results (
    id          TEXT         PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    number      TEXT         NOT NULL,
    national    TEXT         NOT NULL DEFAULT '',
    e164        TEXT         NOT NULL DEFAULT '',
    valid       BOOLEAN      NOT NULL DEFAULT false,
    frame       BIGINT       NOT NULL DEFAULT 0,
    sightings   BIGINT       NOT NULL DEFAULT 0,
    source      TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scan_results_created_at
    ON scan_results (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_scan_results_session_created
    ON scan_results (session_id, created_at DESC);
`

// uniqueViolation is the SQLSTATE for a primary key conflict.
const uniqueViolation = "23505"

// Store is a results.Store on a [pgxpool.Pool]. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, pings the database and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate creates the scan_results table and its indexes. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlScanResults); err != nil {
		return fmt.Errorf("create scan_results: %w", err)
	}
	return nil
}

// Save implements results.Store.
func (s *Store) Save(ctx context.Context, rec results.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	const q = `
		INSERT INTO scan_results
		    (id, session_id, number, national, e164, valid, frame, sightings, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, q,
		rec.ID,
		rec.SessionID,
		rec.Number,
		rec.National,
		rec.E164,
		rec.Valid,
		rec.Frame,
		rec.Sightings,
		rec.Source,
		rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("postgres store: duplicate id %q: %w", rec.ID, err)
		}
		return fmt.Errorf("postgres store: save: %w", err)
	}
	return nil
}

// List implements results.Store.
func (s *Store) List(ctx context.Context, opts results.ListOptions) ([]results.Record, error) {
	const q = `
		SELECT id, session_id, number, national, e164, valid, frame, sightings, source, created_at
		FROM   scan_results
		WHERE  ($1::text = '' OR session_id = $1)
		ORDER  BY created_at DESC, id DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, opts.SessionID, opts.EffectiveLimit())
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (results.Record, error) {
		var r results.Record
		err := row.Scan(
			&r.ID,
			&r.SessionID,
			&r.Number,
			&r.National,
			&r.E164,
			&r.Valid,
			&r.Frame,
			&r.Sightings,
			&r.Source,
			&r.CreatedAt,
		)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	return recs, nil
}

// Ping implements results.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
