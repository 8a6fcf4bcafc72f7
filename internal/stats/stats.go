// Package stats summarizes the aggregate table of a project store.
package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vegardege/pvduck/internal/errors"
	"github.com/vegardege/pvduck/internal/logging"
	"github.com/vegardege/pvduck/internal/store"
)

// DefaultTop is the number of top pages reported.
const DefaultTop = 10

// Page is one aggregate row.
type Page struct {
	DomainCode string
	PageTitle  string
	Views      uint64
}

// DomainSummary is the distribution of views within one project domain.
type DomainSummary struct {
	Domain string
	Distribution
}

// Summary describes the aggregate table.
type Summary struct {
	// Views is the distribution of view counts over all rows.
	Views Distribution

	// Domains breaks Views down per project domain, most viewed first.
	Domains []DomainSummary

	// Top holds the most viewed pages, most viewed first.
	Top []Page

	// Snapshots is the ledger state.
	Snapshots store.LogCounts
}

type options struct {
	top int
}

// Option configures Summarize.
type Option func(*options)

// WithTop sets the number of top pages. Zero disables the list.
func WithTop(n int) Option {
	return func(o *options) { o.top = n }
}

// Summarize streams the views column into quantile sketches and reads the
// top pages and ledger counts.
func Summarize(ctx context.Context, st *store.Store, opts ...Option) (Summary, error) {
	o := options{top: DefaultTop}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	logger := logging.Component("stats")

	total, byDomain, err := distributions(ctx, st)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	summary.Views = total.Result()
	for domain, agg := range byDomain {
		summary.Domains = append(summary.Domains, DomainSummary{Domain: domain, Distribution: agg.Result()})
	}
	sort.Slice(summary.Domains, func(i, j int) bool {
		a, b := summary.Domains[i], summary.Domains[j]
		if a.Sum != b.Sum {
			return a.Sum > b.Sum
		}
		return a.Domain < b.Domain
	})

	if o.top > 0 {
		if summary.Top, err = topPages(ctx, st, o.top); err != nil {
			return Summary{}, err
		}
	}

	if summary.Snapshots, err = st.Ledger().Counts(ctx); err != nil {
		return Summary{}, err
	}

	logger.Debug("summarized",
		"rows", summary.Views.Count,
		"domains", len(summary.Domains),
		"duration", time.Since(start))
	return summary, nil
}

func distributions(ctx context.Context, st *store.Store) (*Aggregate, map[string]*Aggregate, error) {
	rows, err := st.DB().QueryContext(ctx, "SELECT domain, views FROM pageviews")
	if err != nil {
		return nil, nil, fmt.Errorf("query views: %w: %w", errors.ErrDatabase, err)
	}
	defer rows.Close()

	byDomain := make(map[string]*Aggregate)
	for rows.Next() {
		var domain string
		var views uint64
		if err := rows.Scan(&domain, &views); err != nil {
			return nil, nil, fmt.Errorf("scan views: %w", err)
		}

		agg, ok := byDomain[domain]
		if !ok {
			if agg, err = NewAggregate(); err != nil {
				return nil, nil, err
			}
			byDomain[domain] = agg
		}
		if err := agg.Add(views); err != nil {
			return nil, nil, fmt.Errorf("add %d views: %w", views, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate views: %w", err)
	}

	total, err := NewAggregate()
	if err != nil {
		return nil, nil, err
	}
	for _, agg := range byDomain {
		if err := total.Merge(agg); err != nil {
			return nil, nil, fmt.Errorf("merge sketches: %w", err)
		}
	}
	return total, byDomain, nil
}

func topPages(ctx context.Context, st *store.Store, n int) ([]Page, error) {
	rows, err := st.DB().QueryContext(ctx, `SELECT domain_code, page_title, views
		FROM pageviews
		ORDER BY views DESC, domain_code, page_title
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query top pages: %w: %w", errors.ErrDatabase, err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.DomainCode, &p.PageTitle, &p.Views); err != nil {
			return nil, fmt.Errorf("scan top pages: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top pages: %w", err)
	}
	return pages, nil
}
