package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testRecord(addr, dir, cause string, end time.Time) *Record {
	return &Record{
		ConnectionID: "conn-" + addr,
		Address:      addr,
		Direction:    dir,
		StartTime:    end.Add(-time.Minute),
		EndTime:      end,
		Cause:        cause,
	}
}

func TestMemoryRepositoryCreateGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	rec := testRecord("100", "outgoing", "normal_local", time.Now())
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}

	got, err := repo.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Address != "100" || got.Cause != "normal_local" {
		t.Errorf("Get() = %+v", got)
	}

	// Mutating the returned record must not affect the stored one.
	got.Cause = "mutated"
	again, _ := repo.Get(ctx, rec.ID)
	if again.Cause != "normal_local" {
		t.Error("Get() returned a live reference to stored state")
	}

	if _, err := repo.Get(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(absent) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryRepositoryQuery(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, rec := range []*Record{
		testRecord("100", "outgoing", "normal_local", base),
		testRecord("200", "incoming", "incoming_missed", base.Add(time.Hour)),
		testRecord("100", "outgoing", "busy", base.Add(2*time.Hour)),
	} {
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	got, err := repo.Query(ctx, Filter{Address: "100"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Query(address=100) returned %d records, want 2", len(got))
	}
	// Newest first.
	if got[0].Cause != "busy" || got[1].Cause != "normal_local" {
		t.Errorf("Query() order = %s, %s", got[0].Cause, got[1].Cause)
	}

	got, _ = repo.Query(ctx, Filter{Direction: "incoming"})
	if len(got) != 1 || got[0].Address != "200" {
		t.Errorf("Query(direction=incoming) = %+v", got)
	}

	got, _ = repo.Query(ctx, Filter{After: base.Add(30 * time.Minute)})
	if len(got) != 2 {
		t.Errorf("Query(after) returned %d records, want 2", len(got))
	}

	got, _ = repo.Query(ctx, Filter{Limit: 1})
	if len(got) != 1 || got[0].Cause != "busy" {
		t.Errorf("Query(limit=1) = %+v", got)
	}

	got, _ = repo.Query(ctx, Filter{Offset: 10})
	if len(got) != 0 {
		t.Errorf("Query(offset past end) = %+v", got)
	}

	n, err := repo.Count(ctx, Filter{Address: "100"})
	if err != nil || n != 2 {
		t.Errorf("Count() = %d, %v, want 2", n, err)
	}
}
