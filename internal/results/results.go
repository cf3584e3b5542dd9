// Package results persists stable phone numbers reported by scan sessions.
//
// [Store] is implemented by [MemoryStore] (process lifetime only), the
// postgres sub-package (shared deployments) and the sqlite sub-package
// (single-node deployments and CLI use). Records are immutable once saved.
package results

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/phonescan/internal/display"
	"github.com/MrWong99/phonescan/internal/scan"
)

// ErrInvalidRecord is returned by Save for records missing an ID or number.
var ErrInvalidRecord = errors.New("results: record needs an id and a number")

// ErrClosed is returned by [MemoryStore] after Close.
var ErrClosed = errors.New("results: store closed")

// DefaultListLimit is used when [ListOptions.Limit] is not positive.
const DefaultListLimit = 100

// Record is one persisted result.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Number    string    `json:"number"`
	National  string    `json:"national"`
	E164      string    `json:"e164,omitempty"`
	Valid     bool      `json:"valid"`
	Frame     int64     `json:"frame"`
	Sightings int64     `json:"sightings"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRecord builds a record for res with a fresh ID. source names where the
// frames came from, e.g. "stream" or "replay".
func NewRecord(sessionID, source string, res scan.Result) Record {
	f := display.Format(res.Number)
	return Record{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Number:    res.Number,
		National:  f.National,
		E164:      f.E164,
		Valid:     f.Valid,
		Frame:     res.Frame,
		Sightings: res.Sightings,
		Source:    source,
		CreatedAt: res.At.UTC(),
	}
}

// Validate checks the fields every store requires.
func (r Record) Validate() error {
	if r.ID == "" || r.Number == "" {
		return ErrInvalidRecord
	}
	return nil
}

// ListOptions filters [Store.List].
type ListOptions struct {
	// Limit caps the number of records. Non-positive means
	// [DefaultListLimit].
	Limit int

	// SessionID restricts the listing to one session when non-empty.
	SessionID string
}

// EffectiveLimit returns the limit to apply.
func (o ListOptions) EffectiveLimit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

// Store persists records.
type Store interface {
	// Save stores rec. Saving an ID twice is an error.
	Save(ctx context.Context, rec Record) error

	// List returns records newest first.
	List(ctx context.Context, opts ListOptions) ([]Record, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
