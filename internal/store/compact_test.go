package store

import (
	"context"
	"testing"

	pvtesting "github.com/vegardege/pvduck/internal/testing"
)

func TestCompact_PreservesRows(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := pvtesting.WriteBatch(t, "a", pvtesting.SnapshotA())
	b := pvtesting.WriteBatch(t, "b", pvtesting.SnapshotB())
	for _, path := range []string{a, a, b} {
		if _, err := s.Merge(ctx, path, MergeOptions{ChunkSize: 4}); err != nil {
			t.Fatalf("Merge: %v", err)
		}
	}

	type row struct {
		code, title string
		views       uint64
	}
	snapshot := func() map[row]struct{} {
		rows, err := s.DB().Query("SELECT domain_code, page_title, views FROM pageviews")
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		defer rows.Close()

		set := make(map[row]struct{})
		for rows.Next() {
			var r row
			if err := rows.Scan(&r.code, &r.title, &r.views); err != nil {
				t.Fatalf("scan: %v", err)
			}
			set[r] = struct{}{}
		}
		return set
	}

	before := snapshot()

	res, err := s.Compact(ctx)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if res.Rows != 19 {
		t.Errorf("Rows = %d, want 19", res.Rows)
	}
	if res.SizeAfter <= 0 || res.BytesSaved != res.SizeBefore-res.SizeAfter {
		t.Errorf("inconsistent sizes %+v", res)
	}

	after := snapshot()
	if len(after) != len(before) {
		t.Fatalf("rows after = %d, before = %d", len(after), len(before))
	}
	for r := range before {
		if _, ok := after[r]; !ok {
			t.Errorf("row %+v lost by compaction", r)
		}
	}
}

func TestCompact_KeepsUniqueIndex(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	path := pvtesting.WriteBatch(t, "a", pvtesting.SnapshotA())
	if _, err := s.Merge(ctx, path, MergeOptions{}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if _, err := s.Compact(ctx); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	_, err := s.DB().Exec(`INSERT INTO pageviews VALUES ('en', 'en', 'wikipedia.org', false, 'Main_Page', 1)`)
	if !isConstraintViolation(err) {
		t.Errorf("expected unique violation after compaction, got %v", err)
	}

	// Merging still works against the rebuilt table.
	if _, err := s.Merge(ctx, path, MergeOptions{}); err != nil {
		t.Fatalf("Merge after compaction: %v", err)
	}
	if _, maxViews := aggregate(t, s); maxViews != 149906 {
		t.Errorf("max = %d, want 149906", maxViews)
	}
}

func TestCompact_EmptyStore(t *testing.T) {
	s := setupTestStore(t)

	res, err := s.Compact(context.Background())
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if res.Rows != 0 {
		t.Errorf("Rows = %d, want 0", res.Rows)
	}
}
