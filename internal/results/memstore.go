package results

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps records in memory. The zero value is ready to use.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	ids     map[string]struct{}
	closed  bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements [Store].
func (m *MemoryStore) Save(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.ids == nil {
		m.ids = make(map[string]struct{})
	}
	if _, dup := m.ids[rec.ID]; dup {
		return fmt.Errorf("results: duplicate id %q", rec.ID)
	}
	m.ids[rec.ID] = struct{}{}
	m.records = append(m.records, rec)
	return nil
}

// List implements [Store].
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, min(len(m.records), opts.EffectiveLimit()))
	for _, r := range m.records {
		if opts.SessionID != "" && r.SessionID != opts.SessionID {
			continue
		}
		out = append(out, r)
	}
	// Newest first; equal timestamps keep reverse insertion order.
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b Record) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	if len(out) > opts.EffectiveLimit() {
		out = out[:opts.EffectiveLimit()]
	}
	return out, nil
}

// Ping implements [Store]. It fails only after Close.
func (m *MemoryStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close implements [Store]. Records stay listable after Close.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
