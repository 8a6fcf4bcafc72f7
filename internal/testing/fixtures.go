package testing

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vegardege/pvduck/internal/batch"
)

// =============================================================================
// Batch Fixtures
// =============================================================================

// WriteBatch writes rows to name.parquet in a test temp dir and returns the
// path.
func WriteBatch(t *testing.T, name string, rows []batch.Row) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".parquet")
	if err := batch.WriteFile(path, rows, batch.DefaultOptions()); err != nil {
		t.Fatalf("write batch %s: %v", name, err)
	}
	return path
}

// SnapshotA is a small hourly snapshot with 17 distinct keys. Its largest
// count is 74953.
func SnapshotA() []batch.Row {
	return []batch.Row{
		{DomainCode: "en", Language: "en", Domain: "wikipedia.org", PageTitle: "Main_Page", Views: 74953},
		{DomainCode: "en", Language: "en", Domain: "wikipedia.org", PageTitle: "Special:Search", Views: 12011},
		{DomainCode: "en", Language: "en", Domain: "wikipedia.org", PageTitle: "Olympic_Games", Views: 3344},
		{DomainCode: "en.m", Language: "en", Domain: "wikipedia.org", Mobile: true, PageTitle: "Main_Page", Views: 40210},
		{DomainCode: "en.m", Language: "en", Domain: "wikipedia.org", Mobile: true, PageTitle: "Olympic_Games", Views: 2210},
		{DomainCode: "de", Language: "de", Domain: "wikipedia.org", PageTitle: "Hauptseite", Views: 9120},
		{DomainCode: "de.m", Language: "de", Domain: "wikipedia.org", Mobile: true, PageTitle: "Hauptseite", Views: 4002},
		{DomainCode: "fr", Language: "fr", Domain: "wikipedia.org", PageTitle: "Wikipédia:Accueil_principal", Views: 7001},
		{DomainCode: "ja", Language: "ja", Domain: "wikipedia.org", PageTitle: "メインページ", Views: 6520},
		{DomainCode: "en.d", Language: "en", Domain: "wiktionary.org", PageTitle: "Wiktionary:Main_Page", Views: 512},
		{DomainCode: "commons.m", Language: "commons", Domain: "wikimedia.org", PageTitle: "Main_Page", Views: 301},
		{DomainCode: "en.b", Language: "en", Domain: "wikibooks.org", PageTitle: "Main_Page", Views: 118},
		{DomainCode: "es", Language: "es", Domain: "wikipedia.org", PageTitle: "Wikipedia:Portada", Views: 5230},
		{DomainCode: "nl", Language: "nl", Domain: "wikipedia.org", PageTitle: "Hoofdpagina", Views: 880},
		{DomainCode: "sv", Language: "sv", Domain: "wikipedia.org", PageTitle: "Portal:Huvudsida", Views: 402},
		{DomainCode: "en.voy", Language: "en", Domain: "wikivoyage.org", PageTitle: "Main_Page", Views: 97},
		{DomainCode: "www.wd", Language: "www", Domain: "wikidata.org", PageTitle: "Wikidata:Main_Page", Views: 1200},
	}
}

// SnapshotB shares two keys with SnapshotA and adds two new ones.
func SnapshotB() []batch.Row {
	return []batch.Row{
		{DomainCode: "en", Language: "en", Domain: "wikipedia.org", PageTitle: "Main_Page", Views: 1000},
		{DomainCode: "de", Language: "de", Domain: "wikipedia.org", PageTitle: "Hauptseite", Views: 20},
		{DomainCode: "it", Language: "it", Domain: "wikipedia.org", PageTitle: "Pagina_principale", Views: 3100},
		{DomainCode: "pl", Language: "pl", Domain: "wikipedia.org", PageTitle: "Wikipedia:Strona_główna", Views: 2900},
	}
}

// SumViews returns the total views of rows.
func SumViews(rows []batch.Row) uint64 {
	var total uint64
	for _, r := range rows {
		total += r.Views
	}
	return total
}

// =============================================================================
// Clock
// =============================================================================

// Clock is a manually advanced clock. Its zero value starts at the zero time.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
