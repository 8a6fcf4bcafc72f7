package pageviews

import (
	"fmt"
	"regexp"

	"github.com/vegardege/pvduck/internal/batch"
	"github.com/vegardege/pvduck/internal/errors"
	"github.com/vegardege/pvduck/internal/validation"
)

// Filter selects the dump lines that end up in a batch. Zero values match
// everything.
type Filter struct {
	// LineRegex is matched against the raw line before parsing.
	LineRegex string

	// DomainCodes keeps only these exact domain codes, e.g. "en", "de.m".
	DomainCodes []string

	// PageTitle is a regular expression matched against the page title.
	PageTitle string

	// MinViews and MaxViews bound the view count, inclusive.
	MinViews *uint64
	MaxViews *uint64

	// Languages keeps only these languages, e.g. "en", "commons".
	Languages []string

	// Domains keeps only these project domains, e.g. "wikipedia.org".
	Domains []string

	// Mobile keeps only mobile (true) or only desktop (false) views.
	Mobile *bool

	// BatchSize is the number of rows per parquet row group. Zero uses the
	// batch package default.
	BatchSize int

	// Compression is the parquet codec of the batch. Empty uses the batch
	// package default.
	Compression string
}

// matcher is a compiled Filter.
type matcher struct {
	line        *regexp.Regexp
	title       *regexp.Regexp
	domainCodes map[string]struct{}
	languages   map[string]struct{}
	domains     map[string]struct{}
	minViews    *uint64
	maxViews    *uint64
	mobile      *bool
}

func (f Filter) compile() (*matcher, error) {
	m := &matcher{
		domainCodes: toSet(f.DomainCodes),
		languages:   toSet(f.Languages),
		domains:     toSet(f.Domains),
		minViews:    f.MinViews,
		maxViews:    f.MaxViews,
		mobile:      f.Mobile,
	}

	var err error
	if f.LineRegex != "" {
		if m.line, err = regexp.Compile(f.LineRegex); err != nil {
			return nil, fmt.Errorf("line_regex: %v: %w", err, errors.ErrInvalidConfig)
		}
	}
	if f.PageTitle != "" {
		if m.title, err = regexp.Compile(f.PageTitle); err != nil {
			return nil, fmt.Errorf("page_title: %v: %w", err, errors.ErrInvalidConfig)
		}
	}
	for _, code := range f.DomainCodes {
		if err := validation.ValidateDomainCode(code); err != nil {
			return nil, fmt.Errorf("domain_codes: %w", err)
		}
	}
	if f.Compression != "" {
		if _, err := batch.ParseCompressionType(f.Compression); err != nil {
			return nil, err
		}
	}
	if f.MinViews != nil && f.MaxViews != nil && *f.MinViews > *f.MaxViews {
		return nil, errors.NewInvalidValue("min_views", *f.MinViews, "greater than max_views")
	}
	return m, nil
}

// Validate reports whether the filter compiles.
func (f Filter) Validate() error {
	_, err := f.compile()
	return err
}

func (m *matcher) matchLine(line string) bool {
	return m.line == nil || m.line.MatchString(line)
}

func (m *matcher) matchRow(r batch.Row) bool {
	if !inSet(m.domainCodes, r.DomainCode) ||
		!inSet(m.languages, r.Language) ||
		!inSet(m.domains, r.Domain) {
		return false
	}
	if m.mobile != nil && *m.mobile != r.Mobile {
		return false
	}
	if m.minViews != nil && r.Views < *m.minViews {
		return false
	}
	if m.maxViews != nil && r.Views > *m.maxViews {
		return false
	}
	return m.title == nil || m.title.MatchString(r.PageTitle)
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// inSet treats a nil set as matching everything.
func inSet(set map[string]struct{}, v string) bool {
	if set == nil {
		return true
	}
	_, ok := set[v]
	return ok
}
