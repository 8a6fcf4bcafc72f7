package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vegardege/pvduck/internal/logging"
)

// CompactResult describes a completed compaction.
type CompactResult struct {
	SizeBefore int64
	SizeAfter  int64
	BytesSaved int64
	Rows       int64
}

// Compact rewrites the aggregate table sorted by its key and checkpoints the
// database, reclaiming the space left behind by repeated merges.
//
// The rewrite runs in one transaction, so the row set and every measure is
// unchanged and an interrupted compaction leaves the old table in place.
func (s *Store) Compact(ctx context.Context) (CompactResult, error) {
	logger := logging.Component("compact")

	if err := s.checkFile(); err != nil {
		return CompactResult{}, err
	}

	before, err := s.Size()
	if err != nil {
		return CompactResult{}, err
	}

	start := time.Now()
	var rows int64

	err = s.TransactionContext(ctx, func(tx *sql.Tx) error {
		statements := []struct {
			name string
			sql  string
		}{
			{"create", pageviewsDDL(tableCompacted)},
			{"copy", fmt.Sprintf(`INSERT INTO %s (%s) SELECT %s FROM %s ORDER BY domain_code, page_title`,
				tableCompacted, pageviewsColumns, pageviewsColumns, tablePageviews)},
			{"drop", "DROP TABLE " + tablePageviews},
			{"rename", fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tableCompacted, tablePageviews)},
			{"index", pageviewsIndexDDL()},
		}

		for _, st := range statements {
			res, err := tx.ExecContext(ctx, st.sql)
			if err != nil {
				return fmt.Errorf("compact %s: %w", st.name, err)
			}
			if st.name == "copy" {
				if rows, err = res.RowsAffected(); err != nil {
					return fmt.Errorf("compact %s: %w", st.name, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return CompactResult{}, err
	}

	if _, err := s.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return CompactResult{}, fmt.Errorf("checkpoint: %w", err)
	}

	after, err := s.Size()
	if err != nil {
		return CompactResult{}, err
	}

	result := CompactResult{
		SizeBefore: before,
		SizeAfter:  after,
		BytesSaved: before - after,
		Rows:       rows,
	}

	logger.Info("compacted",
		"rows", rows,
		"size_before", before,
		"size_after", after,
		"duration", time.Since(start))

	return result, nil
}
