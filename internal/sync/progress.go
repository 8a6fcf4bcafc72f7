package sync

import (
	"context"
	"time"

	"github.com/vegardege/pvduck/internal/store"
)

// Progress relates the ledger to the sampled timestamps of a project.
type Progress struct {
	// Total is the number of sampled timestamps.
	Total int

	// Succeeded and Failed count sampled timestamps with a ledger entry.
	Succeeded int
	Failed    int

	// Failures lists the failed entries in chronological order. Entries
	// outside the sampled set are included.
	Failures []store.LogEntry
}

// Done returns the number of sampled timestamps with a ledger entry.
func (p Progress) Done() int {
	return p.Succeeded + p.Failed
}

// Remaining returns the number of sampled timestamps not yet attempted.
func (p Progress) Remaining() int {
	return p.Total - p.Done()
}

// Percent returns Done as a share of Total.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return 100 * float64(p.Done()) / float64(p.Total)
}

// Progress reports how much of the sampled range has been processed.
func (e *Engine) Progress(ctx context.Context) (Progress, error) {
	candidates, err := e.Candidates()
	if err != nil {
		return Progress{}, err
	}

	succeeded, err := e.ledger.Seen(ctx, store.LogSuccess)
	if err != nil {
		return Progress{}, err
	}
	failed, err := e.ledger.Seen(ctx, store.LogFailure)
	if err != nil {
		return Progress{}, err
	}

	p := Progress{Total: len(candidates)}
	for _, ts := range candidates {
		if contains(succeeded, ts) {
			p.Succeeded++
		} else if contains(failed, ts) {
			p.Failed++
		}
	}

	if len(failed) > 0 {
		if p.Failures, err = e.ledger.Entries(ctx, store.LogFailure); err != nil {
			return Progress{}, err
		}
	}
	return p, nil
}

func contains(set map[time.Time]struct{}, ts time.Time) bool {
	_, ok := set[ts]
	return ok
}
