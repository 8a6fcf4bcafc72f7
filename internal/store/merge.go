package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/vegardege/pvduck/config"
	"github.com/vegardege/pvduck/internal/batch"
	"github.com/vegardege/pvduck/internal/errors"
	"github.com/vegardege/pvduck/internal/logging"
)

// MergeOptions configures a merge.
type MergeOptions struct {
	// ChunkSize is the number of batch rows staged per step. Zero means
	// config.DefaultChunkSize.
	ChunkSize int

	// Then runs inside the merge transaction after the last chunk, before
	// COMMIT. An error rolls back the whole merge.
	Then func(ctx context.Context, tx Execer) error
}

// MergeResult describes a completed merge.
type MergeResult struct {
	// Rows is the number of batch rows read.
	Rows int64

	// Updated is the number of existing aggregate rows whose views grew.
	Updated int64

	// Inserted is the number of new aggregate rows.
	Inserted int64

	// Chunks is the number of staging steps.
	Chunks int
}

// Views of a staged chunk, summed per key so repeated keys within a chunk
// cannot collide on the unique index.
const stagedByKey = `SELECT
		domain_code,
		any_value(language) AS language,
		any_value(domain)   AS domain,
		any_value(mobile)   AS mobile,
		page_title,
		SUM(views)::UBIGINT AS views
	FROM merge_staging
	GROUP BY domain_code, page_title`

const mergeUpdateSQL = `UPDATE pageviews
	SET views = pageviews.views + b.views
	FROM (` + stagedByKey + `) AS b
	WHERE pageviews.domain_code = b.domain_code
	  AND pageviews.page_title = b.page_title`

// The update phase never touches key columns, so the anti-join sees the key
// set as it was before this chunk.
const mergeInsertSQL = `INSERT INTO pageviews (` + pageviewsColumns + `)
	SELECT b.domain_code, b.language, b.domain, b.mobile, b.page_title, b.views
	FROM (` + stagedByKey + `) AS b
	LEFT JOIN pageviews AS p
	  ON p.domain_code = b.domain_code AND p.page_title = b.page_title
	WHERE p.domain_code IS NULL`

// Merge folds the parquet batch at batchPath into the aggregate table.
//
// Rows whose key (domain_code, page_title) already exists add their views to
// the stored row; other rows are inserted. Merging the same batch twice
// doubles its contribution. The batch is processed in chunks of
// opts.ChunkSize rows to bound memory, all inside one transaction: either
// the whole batch is merged or nothing is.
func (s *Store) Merge(ctx context.Context, batchPath string, opts MergeOptions) (MergeResult, error) {
	logger := logging.Component("merge")

	if err := s.checkFile(); err != nil {
		return MergeResult{}, err
	}
	if !strings.HasSuffix(batchPath, ".parquet") {
		return MergeResult{}, errors.NewNotFound(errors.ErrBatchNotFound, batchPath)
	}
	if _, err := os.Stat(batchPath); err != nil {
		if os.IsNotExist(err) {
			return MergeResult{}, errors.NewNotFound(errors.ErrBatchNotFound, batchPath)
		}
		return MergeResult{}, fmt.Errorf("stat batch: %w", err)
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = config.DefaultChunkSize
	}

	reader, err := batch.NewReader(batchPath)
	if err != nil {
		return MergeResult{}, err
	}
	defer reader.Close()

	start := time.Now()
	var result MergeResult

	err = s.connTransaction(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableStaging); err != nil {
			return fmt.Errorf("drop stale staging: %w", err)
		}
		if _, err := conn.ExecContext(ctx, pageviewsDDL(tableStaging)); err != nil {
			return fmt.Errorf("create staging: %w", err)
		}

		buf := make([]batch.Row, min(chunkSize, max(int(reader.NumRows()), 1)))
		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			n, readErr := reader.ReadChunk(buf)
			if readErr != nil && !stderrors.Is(readErr, io.EOF) {
				return fmt.Errorf("read batch: %w", readErr)
			}
			if n > 0 {
				updated, inserted, err := mergeChunk(ctx, conn, buf[:n])
				if err != nil {
					return fmt.Errorf("merge chunk %d: %w", result.Chunks+1, err)
				}
				result.Rows += int64(n)
				result.Updated += updated
				result.Inserted += inserted
				result.Chunks++

				logger.Debug("merged chunk",
					"chunk", result.Chunks,
					"rows", n,
					"updated", updated,
					"inserted", inserted)
			}
			if readErr != nil {
				break
			}
		}

		if _, err := conn.ExecContext(ctx, "DROP TABLE "+tableStaging); err != nil {
			return fmt.Errorf("drop staging: %w", err)
		}

		if opts.Then != nil {
			return opts.Then(ctx, conn)
		}
		return nil
	})
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge %s: %w", filepath.Base(batchPath), err)
	}

	logger.Info("merged batch",
		"batch", filepath.Base(batchPath),
		"rows", result.Rows,
		"updated", result.Updated,
		"inserted", result.Inserted,
		"chunks", result.Chunks,
		"duration", time.Since(start))

	return result, nil
}

// mergeChunk stages rows and applies the update and insert phases. Staging
// is left empty for the next chunk.
func mergeChunk(ctx context.Context, conn *sql.Conn, rows []batch.Row) (updated, inserted int64, err error) {
	if err := appendStaging(conn, rows); err != nil {
		return 0, 0, err
	}

	res, err := conn.ExecContext(ctx, mergeUpdateSQL)
	if err != nil {
		return 0, 0, fmt.Errorf("update phase: %w", err)
	}
	if updated, err = res.RowsAffected(); err != nil {
		return 0, 0, fmt.Errorf("update phase: %w", err)
	}

	res, err = conn.ExecContext(ctx, mergeInsertSQL)
	if err != nil {
		return 0, 0, fmt.Errorf("insert phase: %w", err)
	}
	if inserted, err = res.RowsAffected(); err != nil {
		return 0, 0, fmt.Errorf("insert phase: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "DELETE FROM "+tableStaging); err != nil {
		return 0, 0, fmt.Errorf("clear staging: %w", err)
	}
	return updated, inserted, nil
}

// appendStaging bulk loads rows into the staging table with the DuckDB
// appender. The appender shares the connection, and therefore the open
// transaction, of conn.
func appendStaging(conn *sql.Conn, rows []batch.Row) error {
	return conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}

		appender, err := duckdb.NewAppenderFromConn(dc, "", tableStaging)
		if err != nil {
			return fmt.Errorf("create appender: %w", err)
		}

		for _, r := range rows {
			if err := appender.AppendRow(r.DomainCode, r.Language, r.Domain, r.Mobile, r.PageTitle, r.Views); err != nil {
				appender.Close()
				return fmt.Errorf("append row: %w", err)
			}
		}

		if err := appender.Close(); err != nil {
			return fmt.Errorf("flush appender: %w", err)
		}
		return nil
	})
}
