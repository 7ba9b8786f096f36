package history_test

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/platecheck/dbopen"
	"github.com/hazyhaar/platecheck/history"
)

func testStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.New(dbopen.OpenMemory(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// WHAT: Tests the record-then-query round trip with ID and timestamp
// assignment.
// WHY: The log is the only record of what the service was asked; losing
// fields here loses the audit trail silently.
func TestRecordAndRecent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Record(ctx, history.Entry{Plate: "ABC123", Source: "primary", Found: true, MatchCount: 2, DurationMS: 120})
	s.Record(ctx, history.Entry{Plate: "XYZ789", Source: "aggregated", Error: "meta: Could not reach lookup service"})

	entries, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.ID == "" || e.CreatedAt.IsZero() {
			t.Errorf("entry missing ID or timestamp: %+v", e)
		}
	}

	found := entries[0]
	if found.Plate == "ABC123" {
		found = entries[1]
	}
	if found.Plate != "XYZ789" || found.Error == "" || found.Found {
		t.Errorf("error entry = %+v", found)
	}
}

// WHAT: Tests per-plate filtering.
// WHY: Operators investigate one plate at a time; the filter must not
// leak other plates' rows.
func TestByPlate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Record(ctx, history.Entry{Plate: "AAA111", Source: "primary"})
	s.Record(ctx, history.Entry{Plate: "BBB222", Source: "primary"})
	s.Record(ctx, history.Entry{Plate: "AAA111", Source: "aggregated", Found: true})

	entries, err := s.ByPlate(ctx, "AAA111", 10)
	if err != nil {
		t.Fatalf("ByPlate: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Plate != "AAA111" {
			t.Errorf("foreign plate leaked: %+v", e)
		}
	}
}

// WHAT: Tests the Recent limit and default.
// WHY: The history endpoint is unauthenticated-adjacent; unbounded result
// sets are an easy accidental dump.
func TestRecentLimit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.Record(ctx, history.Entry{Plate: "AAA111", Source: "primary"})
	}

	entries, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
}
