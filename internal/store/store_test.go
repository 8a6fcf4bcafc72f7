package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	pverrors "github.com/vegardege/pvduck/internal/errors"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.duckdb")
	s, err := Create(context.Background(), path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func aggregate(t *testing.T, s *Store) (rows int64, maxViews uint64) {
	t.Helper()

	err := s.DB().QueryRow("SELECT count(*), coalesce(max(views), 0) FROM pageviews").Scan(&rows, &maxViews)
	if err != nil {
		t.Fatalf("query aggregate: %v", err)
	}
	return rows, maxViews
}

func viewsOf(t *testing.T, s *Store, domainCode, title string) uint64 {
	t.Helper()

	var views uint64
	err := s.DB().QueryRow(
		"SELECT views FROM pageviews WHERE domain_code = ? AND page_title = ?",
		domainCode, title).Scan(&views)
	if err != nil {
		t.Fatalf("views of %s %s: %v", domainCode, title, err)
	}
	return views
}

func TestCreate_Schema(t *testing.T) {
	s := setupTestStore(t)

	for _, table := range []string{"log", "pageviews"} {
		var n int
		err := s.DB().QueryRow(
			"SELECT count(*) FROM information_schema.tables WHERE table_name = ?", table).Scan(&n)
		if err != nil {
			t.Fatalf("query tables: %v", err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}

	if rows, _ := aggregate(t, s); rows != 0 {
		t.Errorf("fresh store has %d rows", rows)
	}
}

func TestCreate_AlreadyExists(t *testing.T) {
	s := setupTestStore(t)

	_, err := Create(context.Background(), s.Path())
	if !errors.Is(err, ErrStoreAlreadyExists) {
		t.Fatalf("expected ErrStoreAlreadyExists, got %v", err)
	}
	if !pverrors.IsAlreadyExists(err) {
		t.Error("IsAlreadyExists should match")
	}
}

func TestOpen(t *testing.T) {
	s := setupTestStore(t)
	path := s.Path()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	size, err := reopened.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size <= 0 {
		t.Errorf("Size = %d, want > 0", size)
	}
}

func TestOpen_NotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.duckdb")

	_, err := Open(path)
	if !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("expected ErrStoreNotFound, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("Open must not create the file")
	}
}

func TestTransactionContext_Rollback(t *testing.T) {
	s := setupTestStore(t)
	want := errors.New("boom")

	err := s.TransactionContext(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO pageviews VALUES ('en', 'en', 'wikipedia.org', false, 'X', 1)`); err != nil {
			return err
		}
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if rows, _ := aggregate(t, s); rows != 0 {
		t.Errorf("rolled back insert left %d rows", rows)
	}
}

func TestTransactionContext_CancelBeforeCommit(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.TransactionContext(ctx, func(tx *sql.Tx) error {
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
