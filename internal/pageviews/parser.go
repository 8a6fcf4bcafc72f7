package pageviews

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vegardege/pvduck/internal/batch"
	"github.com/vegardege/pvduck/internal/errors"
)

// maxLineLength bounds a single dump line. Titles are capped at 255 bytes by
// MediaWiki, so this leaves ample room.
const maxLineLength = 64 * 1024

// ParseStats counts the lines seen by Parse.
type ParseStats struct {
	// Lines is the number of lines read.
	Lines int64

	// Rows is the number of rows emitted.
	Rows int64

	// Skipped is the number of malformed lines.
	Skipped int64

	// Filtered is the number of well formed lines rejected by the filter.
	Filtered int64
}

// ParseLine parses one dump line into a row.
func ParseLine(line string) (batch.Row, error) {
	fields := strings.Split(line, " ")
	if len(fields) != 3 && len(fields) != 4 {
		return batch.Row{}, fmt.Errorf("%d fields: %w", len(fields), errors.ErrInvalidLine)
	}
	if fields[1] == "" {
		return batch.Row{}, fmt.Errorf("empty page title: %w", errors.ErrInvalidLine)
	}

	dc, err := ParseDomainCode(fields[0])
	if err != nil {
		return batch.Row{}, fmt.Errorf("%w: %w", errors.ErrInvalidLine, err)
	}

	views, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return batch.Row{}, fmt.Errorf("views %q: %w", fields[2], errors.ErrInvalidLine)
	}

	return batch.Row{
		DomainCode: fields[0],
		Language:   dc.Language,
		Domain:     dc.Domain,
		Mobile:     dc.Mobile,
		PageTitle:  fields[1],
		Views:      views,
	}, nil
}

// Parse reads dump lines from r and hands the rows matching f to emit in
// slices of at most batchSize rows. Malformed lines are skipped and counted.
// emit owns the slice it receives.
func Parse(ctx context.Context, r io.Reader, f Filter, batchSize int, emit func([]batch.Row) error) (ParseStats, error) {
	var stats ParseStats

	m, err := f.compile()
	if err != nil {
		return stats, err
	}
	if batchSize <= 0 {
		batchSize = int(batch.DefaultOptions().RowGroupSize)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	rows := make([]batch.Row, 0, batchSize)
	for scanner.Scan() {
		stats.Lines++
		if stats.Lines%10_000 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}

		line := scanner.Text()
		if !m.matchLine(line) {
			stats.Filtered++
			continue
		}

		row, err := ParseLine(line)
		if err != nil {
			stats.Skipped++
			continue
		}
		if !m.matchRow(row) {
			stats.Filtered++
			continue
		}

		rows = append(rows, row)
		if len(rows) == batchSize {
			if err := emit(rows); err != nil {
				return stats, err
			}
			stats.Rows += int64(len(rows))
			rows = make([]batch.Row, 0, batchSize)
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read dump: %w", err)
	}

	if len(rows) > 0 {
		if err := emit(rows); err != nil {
			return stats, err
		}
		stats.Rows += int64(len(rows))
	}
	return stats, nil
}
