// Package pageviews downloads, parses and filters hourly Wikimedia pageview
// dumps into parquet batches ready to merge into a project store.
//
// A dump is a gzip compressed text file with one line per page:
//
//	en.m Main_Page 40210 0
//
// holding the domain code, the page title, the view count and an unused
// response size.
package pageviews

import (
	"strings"
	"time"
)

// URL returns the location of the dump for the hour of ts on the mirror at
// baseURL, e.g.
//
//	https://dumps.wikimedia.org/other/pageviews/2024/2024-08/pageviews-20240818-100000.gz
func URL(baseURL string, ts time.Time) string {
	ts = ts.UTC()

	var b strings.Builder
	b.WriteString(baseURL)
	if !strings.HasSuffix(baseURL, "/") {
		b.WriteByte('/')
	}
	b.WriteString("other/pageviews/")
	b.WriteString(ts.Format("2006/2006-01/"))
	b.WriteString("pageviews-")
	b.WriteString(ts.Format("20060102-15"))
	b.WriteString("0000.gz")
	return b.String()
}
