package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	pverrors "github.com/vegardege/pvduck/internal/errors"
	pvtesting "github.com/vegardege/pvduck/internal/testing"
)

var ledgerNow = time.Date(2024, 8, 18, 12, 0, 0, 0, time.UTC)

func setupTestLedger(t *testing.T) (*Store, *Ledger, *pvtesting.Clock) {
	t.Helper()

	s := setupTestStore(t)
	clock := pvtesting.NewClock(ledgerNow)
	return s, s.Ledger(WithClock(clock.Now)), clock
}

func TestLedger_RecordAndSeen(t *testing.T) {
	_, l, _ := setupTestLedger(t)
	ctx := context.Background()

	ok1 := ledgerNow.Add(-48 * time.Hour)
	ok2 := ledgerNow.Add(-47 * time.Hour)
	failed := ledgerNow.Add(-30 * time.Hour)

	for _, ts := range []time.Time{ok1, ok2} {
		written, err := l.Record(ctx, ts, true, "")
		require.NoError(t, err)
		require.True(t, written)
	}
	written, err := l.Record(ctx, failed, false, "404 Not Found")
	require.NoError(t, err)
	require.True(t, written)

	all, err := l.Seen(ctx, LogAny)
	require.NoError(t, err)
	require.Len(t, all, 3)

	succeeded, err := l.Seen(ctx, LogSuccess)
	require.NoError(t, err)
	require.Len(t, succeeded, 2)
	require.Contains(t, succeeded, ok1)
	require.Contains(t, succeeded, ok2)

	failures, err := l.Seen(ctx, LogFailure)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	require.Contains(t, failures, failed)
}

func TestLedger_SeenMatchesLocalTimestamps(t *testing.T) {
	_, l, _ := setupTestLedger(t)
	ctx := context.Background()

	ts := time.Date(2024, 8, 1, 6, 0, 0, 0, time.UTC)
	local := ts.In(time.FixedZone("CEST", 2*60*60))

	_, err := l.Record(ctx, local, true, "")
	require.NoError(t, err)

	seen, err := l.Seen(ctx, LogAny)
	require.NoError(t, err)
	require.Contains(t, seen, ts)
}

func TestLedger_Duplicate(t *testing.T) {
	_, l, _ := setupTestLedger(t)
	ctx := context.Background()
	ts := ledgerNow.Add(-24 * time.Hour)

	_, err := l.Record(ctx, ts, true, "")
	require.NoError(t, err)

	_, err = l.Record(ctx, ts, false, "again")
	require.ErrorIs(t, err, ErrEntryAlreadyExists)
	require.True(t, pverrors.IsAlreadyExists(err))

	counts, err := l.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, LogCounts{Succeeded: 1}, counts)
}

func TestLedger_GracePeriod(t *testing.T) {
	_, l, clock := setupTestLedger(t)
	ctx := context.Background()

	recent := ledgerNow.Add(-11 * time.Hour)
	written, err := l.Record(ctx, recent, false, "404 Not Found")
	require.NoError(t, err)
	require.False(t, written)

	seen, err := l.Seen(ctx, LogAny)
	require.NoError(t, err)
	require.Empty(t, seen)

	// Successes are recorded regardless of age.
	written, err = l.Record(ctx, ledgerNow.Add(-time.Hour), true, "")
	require.NoError(t, err)
	require.True(t, written)

	// Once the window has passed the same failure is permanent.
	clock.Advance(2 * time.Hour)
	written, err = l.Record(ctx, recent, false, "404 Not Found")
	require.NoError(t, err)
	require.True(t, written)
}

func TestLedger_CustomGracePeriod(t *testing.T) {
	s := setupTestStore(t)
	clock := pvtesting.NewClock(ledgerNow)
	l := s.Ledger(WithClock(clock.Now), WithGracePeriod(0))

	written, err := l.Record(context.Background(), ledgerNow, false, "boom")
	require.NoError(t, err)
	require.True(t, written)
}

func TestLedger_EntriesAndClearFailures(t *testing.T) {
	_, l, _ := setupTestLedger(t)
	ctx := context.Background()

	t1 := ledgerNow.Add(-72 * time.Hour)
	t2 := ledgerNow.Add(-71 * time.Hour)
	t3 := ledgerNow.Add(-70 * time.Hour)

	_, err := l.Record(ctx, t2, false, "connection reset")
	require.NoError(t, err)
	_, err = l.Record(ctx, t1, true, "")
	require.NoError(t, err)
	_, err = l.Record(ctx, t3, false, "")
	require.NoError(t, err)

	entries, err := l.Entries(ctx, LogAny)
	require.NoError(t, err)
	require.Equal(t, []LogEntry{
		{Timestamp: t1, Success: true},
		{Timestamp: t2, Error: "connection reset"},
		{Timestamp: t3},
	}, entries)

	counts, err := l.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), counts.Total())
	require.Equal(t, int64(2), counts.Failed)

	n, err := l.ClearFailures(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	entries, err = l.Entries(ctx, LogFailure)
	require.NoError(t, err)
	require.Empty(t, entries)

	// A cleared failure can be recorded again.
	_, err = l.Record(ctx, t2, true, "")
	require.NoError(t, err)
}

func TestLedger_NullError(t *testing.T) {
	s, l, _ := setupTestLedger(t)
	ctx := context.Background()

	_, err := l.Record(ctx, ledgerNow.Add(-24*time.Hour), true, "")
	require.NoError(t, err)

	var nulls int
	require.NoError(t, s.DB().QueryRow("SELECT count(*) FROM log WHERE error IS NULL").Scan(&nulls))
	require.Equal(t, 1, nulls)
}

func TestLedger_InsertErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewLedger(db, WithClock(func() time.Time { return ledgerNow }))
	ts := ledgerNow.Add(-24 * time.Hour)
	insert := regexp.QuoteMeta("INSERT INTO log (timestamp, success, error) VALUES (?, ?, ?)")

	mock.ExpectExec(insert).
		WithArgs(ts, true, nil).
		WillReturnError(errors.New(`Constraint Error: Duplicate key "timestamp: 2024-08-17 12:00:00" violates primary key constraint`))
	_, err = l.Record(context.Background(), ts, true, "")
	require.ErrorIs(t, err, pverrors.ErrEntryAlreadyExists)

	mock.ExpectExec(insert).
		WithArgs(ts, false, "timeout").
		WillReturnError(errors.New("IO Error: disk full"))
	_, err = l.Record(context.Background(), ts, false, "timeout")
	require.ErrorIs(t, err, pverrors.ErrDatabase)
	require.False(t, pverrors.IsAlreadyExists(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_QueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewLedger(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT timestamp FROM log WHERE NOT success")).
		WillReturnError(errors.New("Catalog Error: Table with name log does not exist"))
	_, err = l.Seen(context.Background(), LogFailure)
	require.ErrorIs(t, err, pverrors.ErrDatabase)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM log WHERE NOT success")).
		WillReturnResult(sqlmock.NewResult(0, 4))
	n, err := l.ClearFailures(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(4), n)

	require.NoError(t, mock.ExpectationsWereMet())
}
