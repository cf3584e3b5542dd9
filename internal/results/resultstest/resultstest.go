// Package resultstest holds the behaviour every results.Store must show.
// Backend packages call [Run] from their tests.
package resultstest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/phonescan/internal/results"
)

// base is the creation time of the first generated record.
var base = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

// record returns a valid record created i minutes after base.
func record(i int, session string) results.Record {
	return results.Record{
		ID:        fmt.Sprintf("rec-%02d", i),
		SessionID: session,
		Number:    "6502530000",
		National:  "(650) 253-0000",
		E164:      "+16502530000",
		Valid:     true,
		Frame:     int64(10 + i),
		Sightings: 11,
		Source:    "stream",
		CreatedAt: base.Add(time.Duration(i) * time.Minute),
	}
}

// Run exercises newStore against the Store contract. newStore must return
// an empty store; Run closes it.
func Run(t *testing.T, newStore func(t *testing.T) results.Store) {
	t.Helper()

	t.Run("ListNewestFirst", func(t *testing.T) {
		s := open(t, newStore)
		ctx := context.Background()
		for _, i := range []int{1, 3, 2} {
			mustSave(t, s, record(i, "a"))
		}

		got, err := s.List(ctx, results.ListOptions{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		want := []string{"rec-03", "rec-02", "rec-01"}
		if len(got) != len(want) {
			t.Fatalf("len = %d, want %d", len(got), len(want))
		}
		for i, id := range want {
			if got[i].ID != id {
				t.Errorf("List()[%d].ID = %q, want %q", i, got[i].ID, id)
			}
		}
	})

	t.Run("FieldsRoundTrip", func(t *testing.T) {
		s := open(t, newStore)
		want := record(7, "sess")
		want.Valid = false
		want.E164 = ""
		mustSave(t, s, want)

		got, err := s.List(context.Background(), results.ListOptions{Limit: 1})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("len = %d, want 1", len(got))
		}
		g := got[0]
		g.CreatedAt = g.CreatedAt.UTC()
		if !g.CreatedAt.Equal(want.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", g.CreatedAt, want.CreatedAt)
		}
		g.CreatedAt = want.CreatedAt
		if g != want {
			t.Errorf("record = %+v, want %+v", g, want)
		}
	})

	t.Run("LimitAndSessionFilter", func(t *testing.T) {
		s := open(t, newStore)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			session := "a"
			if i%2 == 1 {
				session = "b"
			}
			mustSave(t, s, record(i, session))
		}

		got, err := s.List(ctx, results.ListOptions{Limit: 2})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 || got[0].ID != "rec-04" || got[1].ID != "rec-03" {
			t.Errorf("List(limit 2) = %v", ids(got))
		}

		got, err = s.List(ctx, results.ListOptions{SessionID: "b"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 || got[0].ID != "rec-03" || got[1].ID != "rec-01" {
			t.Errorf("List(session b) = %v", ids(got))
		}
	})

	t.Run("RejectsDuplicateID", func(t *testing.T) {
		s := open(t, newStore)
		mustSave(t, s, record(1, "a"))
		if err := s.Save(context.Background(), record(1, "a")); err == nil {
			t.Error("second Save with the same id succeeded")
		}
	})

	t.Run("RejectsInvalidRecord", func(t *testing.T) {
		s := open(t, newStore)
		err := s.Save(context.Background(), results.Record{ID: "x"})
		if !errors.Is(err, results.ErrInvalidRecord) {
			t.Errorf("err = %v, want ErrInvalidRecord", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		s := open(t, newStore)
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}

func open(t *testing.T, newStore func(t *testing.T) results.Store) results.Store {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func mustSave(t *testing.T, s results.Store, rec results.Record) {
	t.Helper()
	if err := s.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save(%s): %v", rec.ID, err)
	}
}

func ids(recs []results.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
