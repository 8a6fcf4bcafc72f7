package pageviews

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vegardege/pvduck/internal/batch"
	"github.com/vegardege/pvduck/internal/logging"
)

// Fetcher turns dumps into parquet batches.
type Fetcher struct {
	source *Source
	opts   batch.Options
	logger *slog.Logger
}

// NewFetcher creates a Fetcher reading from source.
func NewFetcher(source *Source) *Fetcher {
	return &Fetcher{
		source: source,
		opts:   batch.DefaultOptions(),
		logger: logging.Component("pageviews"),
	}
}

// Fetch streams the dump at locator through filter into a parquet batch in
// a fresh temporary directory. The caller must Close the returned file; on
// error nothing is left behind.
//
// Parsing and parquet encoding run in separate goroutines, both joined
// before Fetch returns.
func (f *Fetcher) Fetch(ctx context.Context, locator string, filter Filter) (*batch.File, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	body, err := f.source.Open(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	file, err := batch.NewTempFile(locator)
	if err != nil {
		return nil, err
	}

	opts := f.opts
	if filter.BatchSize > 0 {
		opts.RowGroupSize = int64(filter.BatchSize)
	}
	if filter.Compression != "" {
		// Validated above.
		opts.Compression, _ = batch.ParseCompressionType(filter.Compression)
	}

	w, err := batch.NewWriter(file.Path, opts)
	if err != nil {
		file.Close()
		return nil, err
	}

	rowsCh := make(chan []batch.Row, 2)
	g, gctx := errgroup.WithContext(ctx)

	var stats ParseStats
	g.Go(func() error {
		defer close(rowsCh)

		var err error
		stats, err = Parse(gctx, body, filter, int(opts.RowGroupSize), func(rows []batch.Row) error {
			select {
			case rowsCh <- rows:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		if err != nil {
			return fmt.Errorf("parse %s: %w", locator, err)
		}
		return nil
	})

	g.Go(func() error {
		for rows := range rowsCh {
			if err := w.Write(rows); err != nil {
				return err
			}
		}
		return nil
	})

	err = g.Wait()
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		file.Close()
		return nil, err
	}

	file.Rows = w.RowCount()
	file.Skipped = stats.Skipped

	f.logger.Debug("fetched",
		"locator", locator,
		"lines", stats.Lines,
		"rows", stats.Rows,
		"skipped", stats.Skipped,
		"filtered", stats.Filtered,
		"duration", time.Since(start))

	return file, nil
}

// FetchFile is Fetch for a dump on the local file system.
func (f *Fetcher) FetchFile(ctx context.Context, path string, filter Filter) (*batch.File, error) {
	return f.Fetch(ctx, path, filter)
}
