package store

import (
	"context"
	"fmt"
)

// Table and index names shared by the queries in this package.
const (
	tablePageviews = "pageviews"
	tableStaging   = "merge_staging"
	tableCompacted = "pageviews_compacted"
	indexPageviews = "unique_pageviews"
)

// pageviewsColumns is the column list of the aggregate table, in batch order.
const pageviewsColumns = "domain_code, language, domain, mobile, page_title, views"

func pageviewsDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
		domain_code VARCHAR NOT NULL,
		language    VARCHAR NOT NULL,
		domain      VARCHAR NOT NULL,
		mobile      BOOLEAN NOT NULL,
		page_title  VARCHAR NOT NULL,
		views       UBIGINT NOT NULL
	)`, table)
}

func pageviewsIndexDDL() string {
	return fmt.Sprintf(`CREATE UNIQUE INDEX %s ON %s (domain_code, page_title)`,
		indexPageviews, tablePageviews)
}

// applySchema creates the tables of a fresh project store.
func applySchema(ctx context.Context, ex Execer) error {
	statements := []struct {
		name string
		sql  string
	}{
		{
			name: "log",
			sql: `CREATE TABLE log (
				timestamp TIMESTAMP PRIMARY KEY,
				success   BOOLEAN NOT NULL,
				error     VARCHAR
			)`,
		},
		{
			name: "pageviews",
			sql:  pageviewsDDL(tablePageviews),
		},
		{
			name: "unique_pageviews",
			sql:  pageviewsIndexDDL(),
		},
	}

	for _, st := range statements {
		if _, err := ex.ExecContext(ctx, st.sql); err != nil {
			return fmt.Errorf("schema %s: %w", st.name, err)
		}
	}
	return nil
}
