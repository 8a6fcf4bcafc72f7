package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vegardege/pvduck/internal/batch"
	pverrors "github.com/vegardege/pvduck/internal/errors"
	pvtesting "github.com/vegardege/pvduck/internal/testing"
)

func TestMerge_Example(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := pvtesting.WriteBatch(t, "pageviews-20240803-060000", pvtesting.SnapshotA())
	b := pvtesting.WriteBatch(t, "pageviews-20240803-070000", pvtesting.SnapshotB())

	res, err := s.Merge(ctx, a, MergeOptions{})
	if err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if res.Inserted != 17 || res.Updated != 0 || res.Rows != 17 || res.Chunks != 1 {
		t.Errorf("first merge result = %+v", res)
	}
	if rows, maxViews := aggregate(t, s); rows != 17 || maxViews != 74953 {
		t.Fatalf("after A: rows=%d max=%d, want 17 and 74953", rows, maxViews)
	}

	res, err = s.Merge(ctx, a, MergeOptions{})
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if res.Inserted != 0 || res.Updated != 17 {
		t.Errorf("second merge result = %+v", res)
	}
	if rows, maxViews := aggregate(t, s); rows != 17 || maxViews != 149906 {
		t.Fatalf("after A twice: rows=%d max=%d, want 17 and 149906", rows, maxViews)
	}

	res, err = s.Merge(ctx, b, MergeOptions{})
	if err != nil {
		t.Fatalf("third merge: %v", err)
	}
	if res.Inserted != 2 || res.Updated != 2 {
		t.Errorf("third merge result = %+v", res)
	}
	if rows, _ := aggregate(t, s); rows != 19 {
		t.Fatalf("after B: rows=%d, want 19", rows)
	}

	if got := viewsOf(t, s, "en", "Main_Page"); got != 2*74953+1000 {
		t.Errorf("en Main_Page = %d, want %d", got, 2*74953+1000)
	}
	if got := viewsOf(t, s, "it", "Pagina_principale"); got != 3100 {
		t.Errorf("it Pagina_principale = %d, want 3100", got)
	}
}

func TestMerge_Chunked(t *testing.T) {
	ctx := context.Background()
	path := pvtesting.WriteBatch(t, "snapshot", pvtesting.SnapshotA())

	for _, chunkSize := range []int{1, 4, 16, 17, 1000} {
		s := setupTestStore(t)

		res, err := s.Merge(ctx, path, MergeOptions{ChunkSize: chunkSize})
		if err != nil {
			t.Fatalf("chunk size %d: %v", chunkSize, err)
		}
		wantChunks := (17 + chunkSize - 1) / chunkSize
		if res.Chunks != wantChunks {
			t.Errorf("chunk size %d: chunks = %d, want %d", chunkSize, res.Chunks, wantChunks)
		}

		var total uint64
		if err := s.DB().QueryRow("SELECT sum(views)::UBIGINT FROM pageviews").Scan(&total); err != nil {
			t.Fatalf("sum: %v", err)
		}
		if total != pvtesting.SumViews(pvtesting.SnapshotA()) {
			t.Errorf("chunk size %d: total views = %d", chunkSize, total)
		}
	}
}

func TestMerge_RepeatedKeysInBatch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	row := batch.Row{DomainCode: "en", Language: "en", Domain: "wikipedia.org", PageTitle: "Main_Page", Views: 10}
	path := pvtesting.WriteBatch(t, "dupes", []batch.Row{row, row, row})

	// The same key in one chunk and across chunks.
	for _, chunkSize := range []int{3, 2} {
		if _, err := s.Merge(ctx, path, MergeOptions{ChunkSize: chunkSize}); err != nil {
			t.Fatalf("chunk size %d: %v", chunkSize, err)
		}
	}
	if got := viewsOf(t, s, "en", "Main_Page"); got != 60 {
		t.Errorf("views = %d, want 60", got)
	}
}

func TestMerge_EmptyBatch(t *testing.T) {
	s := setupTestStore(t)

	path := pvtesting.WriteBatch(t, "empty", nil)
	res, err := s.Merge(context.Background(), path, MergeOptions{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Rows != 0 || res.Chunks != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestMerge_BatchNotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Merge(ctx, filepath.Join(t.TempDir(), "missing.parquet"), MergeOptions{})
	if !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("missing file: expected ErrBatchNotFound, got %v", err)
	}

	csv := filepath.Join(t.TempDir(), "batch.csv")
	if err := os.WriteFile(csv, []byte("en,Main_Page,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = s.Merge(ctx, csv, MergeOptions{})
	if !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("non-parquet file: expected ErrBatchNotFound, got %v", err)
	}
	if !pverrors.IsNotFound(err) {
		t.Error("IsNotFound should match")
	}
}

func TestMerge_StoreRemoved(t *testing.T) {
	s := setupTestStore(t)
	path := pvtesting.WriteBatch(t, "snapshot", pvtesting.SnapshotA())

	if err := os.Rename(s.Path(), s.Path()+".moved"); err != nil {
		t.Fatal(err)
	}
	_, err := s.Merge(context.Background(), path, MergeOptions{})
	if !errors.Is(err, ErrStoreNotFound) {
		t.Errorf("expected ErrStoreNotFound, got %v", err)
	}
}

func TestMerge_ThenIsAtomic(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	l := s.Ledger(WithClock(func() time.Time { return ledgerNow }))

	ts := ledgerNow.Add(-24 * time.Hour)
	path := pvtesting.WriteBatch(t, "snapshot", pvtesting.SnapshotA())

	record := func(ctx context.Context, tx Execer) error {
		_, err := l.RecordTx(ctx, tx, ts, true, "")
		return err
	}

	if _, err := s.Merge(ctx, path, MergeOptions{Then: record}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	seen, err := l.Seen(ctx, LogSuccess)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := seen[ts]; !ok {
		t.Error("success entry not written with the merge")
	}

	// The entry already exists, so the second merge must roll back entirely.
	_, err = s.Merge(ctx, path, MergeOptions{ChunkSize: 5, Then: record})
	if !errors.Is(err, ErrEntryAlreadyExists) {
		t.Fatalf("expected ErrEntryAlreadyExists, got %v", err)
	}
	if rows, maxViews := aggregate(t, s); rows != 17 || maxViews != 74953 {
		t.Errorf("rolled back merge changed the aggregate: rows=%d max=%d", rows, maxViews)
	}

	var staging int
	if err := s.DB().QueryRow(
		"SELECT count(*) FROM information_schema.tables WHERE table_name = 'merge_staging'").Scan(&staging); err != nil {
		t.Fatal(err)
	}
	if staging != 0 {
		t.Error("staging table left behind")
	}
}

func TestMerge_Cancelled(t *testing.T) {
	s := setupTestStore(t)
	path := pvtesting.WriteBatch(t, "snapshot", pvtesting.SnapshotA())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Merge(ctx, path, MergeOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rows, _ := aggregate(t, s); rows != 0 {
		t.Errorf("cancelled merge wrote %d rows", rows)
	}
}
