// Package sync drives the incremental ingestion of pageview snapshots.
//
// An Engine samples the configured timestamp range, skips every timestamp
// the ledger already knows, and for each remaining one fetches the snapshot,
// merges it into the aggregate table and records the outcome. A successful
// merge and its ledger entry commit together.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vegardege/pvduck/config"
	"github.com/vegardege/pvduck/internal/batch"
	"github.com/vegardege/pvduck/internal/errors"
	"github.com/vegardege/pvduck/internal/logging"
	"github.com/vegardege/pvduck/internal/pageviews"
	"github.com/vegardege/pvduck/internal/store"
	"github.com/vegardege/pvduck/internal/timeseries"
)

// Fetcher turns a snapshot locator into a batch file.
type Fetcher interface {
	Fetch(ctx context.Context, locator string, filter pageviews.Filter) (*batch.File, error)
}

// Options configures an Engine.
type Options struct {
	// MaxFiles stops the run after this many attempts. Zero means no limit.
	MaxFiles int

	// SleepTime pauses between a successful merge and the next attempt.
	SleepTime time.Duration

	// HaltOnError stops the run at the first failed snapshot.
	HaltOnError bool

	// ChunkSize is passed to the merger.
	ChunkSize int

	Filter  pageviews.Filter
	BaseURL string

	Start      time.Time
	End        *time.Time
	SampleRate float64
	Seed       any
	Order      timeseries.Order

	// Now overrides the clock for sampling and the grace period rule.
	Now func() time.Time
}

// Result summarizes one run.
type Result struct {
	// Attempted counts timestamps that were fetched, successfully or not.
	Attempted int

	Succeeded int

	// Failed counts failures written to the ledger.
	Failed int

	// Deferred counts failures inside the grace period. They were not
	// recorded and will be attempted again.
	Deferred int

	// Skipped counts sampled timestamps that were already in the ledger.
	Skipped int

	Duration time.Duration
}

// state names the step a timestamp is in. Only used for logging.
type state string

const (
	statePending  state = "PENDING"
	stateFetching state = "FETCHING"
	stateMerging  state = "MERGING"
	stateLogging  state = "LOGGING"
	stateDone     state = "DONE"
)

// Engine runs syncs against one project store.
type Engine struct {
	store   *store.Store
	ledger  *store.Ledger
	fetcher Fetcher
	opts    Options
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an Engine merging into st with batches from f.
func New(st *store.Store, f Fetcher, opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.BaseURL == "" {
		opts.BaseURL = config.DefaultBaseURL
	}

	return &Engine{
		store:   st,
		ledger:  st.Ledger(store.WithClock(now)),
		fetcher: f,
		opts:    opts,
		now:     now,
		logger:  logging.Component("sync"),
	}
}

// Candidates returns the sampled timestamps in processing order.
func (e *Engine) Candidates() ([]time.Time, error) {
	o := e.opts
	return timeseries.GenerateAt(e.now(), o.Start, o.End, o.SampleRate, o.Seed, o.Order)
}

// Run processes every sampled timestamp not yet in the ledger.
//
// A fetch or merge failure is recorded in the ledger (unless it falls inside
// the grace period) and, with HaltOnError, ends the run with that error.
// Cancelling ctx ends the run without recording anything for the timestamp
// in flight.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	ctx = logging.ContextWithRunID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx).With("component", "sync")

	var result Result
	finish := func(err error) (Result, error) {
		result.Duration = time.Since(start)
		logger.Info("sync finished",
			"attempted", result.Attempted,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
			"deferred", result.Deferred,
			"skipped", result.Skipped,
			"duration", result.Duration,
			"error", err)
		return result, err
	}

	candidates, err := e.Candidates()
	if err != nil {
		return finish(err)
	}

	seen, err := e.ledger.Seen(ctx, store.LogAny)
	if err != nil {
		return finish(err)
	}

	logger.Info("sync started",
		"candidates", len(candidates),
		"seen", len(seen),
		"max_files", e.opts.MaxFiles)

	pause := false
	for _, ts := range candidates {
		if _, ok := seen[ts]; ok {
			result.Skipped++
			continue
		}
		if e.opts.MaxFiles > 0 && result.Attempted >= e.opts.MaxFiles {
			logger.Info("max files reached", "max_files", e.opts.MaxFiles)
			break
		}

		if pause {
			if err := sleep(ctx, e.opts.SleepTime); err != nil {
				return finish(err)
			}
		}
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		result.Attempted++
		err := e.process(ctx, logger, ts)
		if err == nil {
			result.Succeeded++
			pause = true
			continue
		}
		pause = false

		if ctx.Err() != nil {
			return finish(err)
		}

		if errors.Is(err, errors.ErrEntryAlreadyExists) {
			// Another run logged this timestamp since Seen was read.
			logger.Warn("timestamp already logged", "timestamp", ts)
			result.Skipped++
			continue
		}

		logger.Debug("state", "timestamp", ts, "state", stateLogging)
		recorded, recErr := e.ledger.Record(ctx, ts, false, err.Error())
		if recErr != nil {
			return finish(fmt.Errorf("record failure for %s: %w (original error: %v)",
				ts.Format(time.RFC3339), recErr, err))
		}
		if recorded {
			result.Failed++
			logger.Warn("snapshot failed", "timestamp", ts, "error", err)
		} else {
			result.Deferred++
			logger.Warn("snapshot failed within grace period, will retry", "timestamp", ts, "error", err)
		}

		if e.opts.HaltOnError {
			return finish(err)
		}
	}

	return finish(nil)
}

// process fetches and merges the snapshot at ts. The success entry is
// written inside the merge transaction.
func (e *Engine) process(ctx context.Context, logger *slog.Logger, ts time.Time) error {
	logger = logger.With("timestamp", ts)
	logger.Debug("state", "state", statePending)

	locator := pageviews.URL(e.opts.BaseURL, ts)
	logger.Debug("state", "state", stateFetching, "locator", locator)

	file, err := e.fetcher.Fetch(ctx, locator, e.opts.Filter)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", locator, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			logger.Warn("failed to remove batch", "path", file.Path, "error", cerr)
		}
	}()

	logger.Debug("state", "state", stateMerging, "rows", file.Rows, "skipped_lines", file.Skipped)

	res, err := e.store.Merge(ctx, file.Path, store.MergeOptions{
		ChunkSize: e.opts.ChunkSize,
		Then: func(ctx context.Context, tx store.Execer) error {
			logger.Debug("state", "state", stateLogging)
			_, err := e.ledger.RecordTx(ctx, tx, ts, true, "")
			return err
		},
	})
	if err != nil {
		return err
	}

	logger.Debug("state", "state", stateDone)
	logger.Info("snapshot merged",
		"rows", res.Rows,
		"inserted", res.Inserted,
		"updated", res.Updated)
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
