package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/vegardege/pvduck/config"
	"github.com/vegardege/pvduck/internal/errors"
	"github.com/vegardege/pvduck/internal/logging"
)

// LogFilter selects ledger entries by outcome.
type LogFilter int

const (
	LogAny LogFilter = iota
	LogSuccess
	LogFailure
)

func (f LogFilter) where() string {
	switch f {
	case LogSuccess:
		return " WHERE success"
	case LogFailure:
		return " WHERE NOT success"
	default:
		return ""
	}
}

// LogEntry is one row of the sync log.
type LogEntry struct {
	Timestamp time.Time
	Success   bool
	Error     string
}

// LogCounts summarizes the sync log.
type LogCounts struct {
	Succeeded int64
	Failed    int64
}

// Total returns the number of ledger entries.
func (c LogCounts) Total() int64 {
	return c.Succeeded + c.Failed
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithGracePeriod overrides the window in which failures are not recorded.
func WithGracePeriod(d time.Duration) LedgerOption {
	return func(l *Ledger) { l.grace = d }
}

// WithClock overrides the clock used by the grace period rule.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// Ledger is the timestamp keyed log of processed snapshots. Every timestamp
// has at most one entry; an entry is never rewritten by a sync.
//
// A failure for a snapshot younger than the grace period is not recorded, so
// a snapshot the mirror has not published yet is retried on the next sync.
type Ledger struct {
	db     *sql.DB
	grace  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewLedger returns a ledger backed by db.
func NewLedger(db *sql.DB, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		db:     db,
		grace:  config.DefaultGracePeriod,
		now:    time.Now,
		logger: logging.Component("ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Ledger returns the sync log of the store.
func (s *Store) Ledger(opts ...LedgerOption) *Ledger {
	return NewLedger(s.db, opts...)
}

// Seen returns the set of logged timestamps matching filter. Keys are UTC.
func (l *Ledger) Seen(ctx context.Context, filter LogFilter) (map[time.Time]struct{}, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT timestamp FROM log"+filter.where())
	if err != nil {
		return nil, fmt.Errorf("query log: %w: %w", errors.ErrDatabase, err)
	}
	defer rows.Close()

	seen := make(map[time.Time]struct{})
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		seen[ts.UTC()] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return seen, nil
}

// Record logs the outcome of processing the snapshot at ts. It returns false
// without writing when a failure falls inside the grace period.
//
// A second entry for the same timestamp fails with ErrEntryAlreadyExists.
func (l *Ledger) Record(ctx context.Context, ts time.Time, success bool, errText string) (bool, error) {
	return l.RecordTx(ctx, l.db, ts, success, errText)
}

// RecordTx is Record on an explicit executor, used to log a merge inside
// the merge transaction.
func (l *Ledger) RecordTx(ctx context.Context, ex Execer, ts time.Time, success bool, errText string) (bool, error) {
	ts = ts.UTC()

	if !success && l.now().Sub(ts) < l.grace {
		l.logger.Debug("failure within grace period, not recorded",
			"timestamp", ts, "error", errText)
		return false, nil
	}

	var errValue any
	if errText != "" {
		errValue = errText
	}

	_, err := ex.ExecContext(ctx,
		"INSERT INTO log (timestamp, success, error) VALUES (?, ?, ?)",
		ts, success, errValue)
	if err != nil {
		if isConstraintViolation(err) {
			return false, errors.NewAlreadyExists(errors.ErrEntryAlreadyExists, ts.Format(time.RFC3339))
		}
		return false, fmt.Errorf("insert log entry: %w: %w", errors.ErrDatabase, err)
	}

	l.logger.Debug("recorded", "timestamp", ts, "success", success)
	return true, nil
}

// Counts returns the number of successful and failed entries.
func (l *Ledger) Counts(ctx context.Context) (LogCounts, error) {
	var c LogCounts
	err := l.db.QueryRowContext(ctx, `SELECT
			count(*) FILTER (WHERE success),
			count(*) FILTER (WHERE NOT success)
		FROM log`).Scan(&c.Succeeded, &c.Failed)
	if err != nil {
		return LogCounts{}, fmt.Errorf("count log: %w: %w", errors.ErrDatabase, err)
	}
	return c, nil
}

// Entries returns the entries matching filter in chronological order.
func (l *Ledger) Entries(ctx context.Context, filter LogFilter) ([]LogEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT timestamp, success, error FROM log"+filter.where()+" ORDER BY timestamp")
	if err != nil {
		return nil, fmt.Errorf("query log: %w: %w", errors.ErrDatabase, err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var errText sql.NullString
		if err := rows.Scan(&e.Timestamp, &e.Success, &errText); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		e.Error = errText.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return entries, nil
}

// ClearFailures deletes every failed entry so the next sync attempts those
// snapshots again. It returns the number of entries removed.
func (l *Ledger) ClearFailures(ctx context.Context) (int64, error) {
	res, err := l.db.ExecContext(ctx, "DELETE FROM log WHERE NOT success")
	if err != nil {
		return 0, fmt.Errorf("clear failures: %w: %w", errors.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	l.logger.Info("cleared failures", "count", n)
	return n, nil
}
