// Package shell is an interactive SQL session against a project store.
//
// Statements end with a semicolon and may span several lines. Lines
// starting with a dot are meta commands:
//
//	.tables          list tables
//	.schema [TABLE]  show CREATE statements
//	.help            list meta commands
//	.quit            leave the session
package shell

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/vegardege/pvduck/internal/logging"
	"github.com/vegardege/pvduck/internal/store"
)

var keywords = []string{
	"SELECT", "FROM", "WHERE", "GROUP BY", "ORDER BY", "LIMIT", "HAVING",
	"JOIN", "LEFT JOIN", "ON", "AS", "AND", "OR", "NOT", "IN", "LIKE", "ILIKE",
	"COUNT", "SUM", "AVG", "MIN", "MAX", "DISTINCT", "DESC", "ASC",
	"DESCRIBE", "SUMMARIZE", "EXPLAIN", "WITH", "CASE", "WHEN", "THEN", "ELSE", "END",
}

var metaCommands = []prompt.Suggest{
	{Text: ".tables", Description: "list tables"},
	{Text: ".schema", Description: "show CREATE statements"},
	{Text: ".help", Description: "list meta commands"},
	{Text: ".quit", Description: "leave the session"},
}

// Session executes statements against one store and renders results.
type Session struct {
	db      *sql.DB
	name    string
	out     io.Writer
	logger  *slog.Logger
	pending strings.Builder
	quit    bool

	tables  []string
	columns []string
}

// New creates a session writing results to out.
func New(st *store.Store, name string, out io.Writer) *Session {
	return &Session{
		db:     st.DB(),
		name:   name,
		out:    out,
		logger: logging.Component("shell"),
	}
}

// Run starts the session on the terminal, or reads statements from stdin
// when it is not a terminal.
func (s *Session) Run(ctx context.Context) error {
	if err := s.refreshCompletions(ctx); err != nil {
		s.logger.Warn("completion unavailable", "error", err)
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return s.RunScript(ctx, os.Stdin)
	}

	fmt.Fprintf(s.out, "Connected to %s. Type .help for help.\n", s.name)
	p := prompt.New(
		func(line string) { s.feed(ctx, line) },
		s.Complete,
		prompt.OptionPrefix(s.name+"> "),
		prompt.OptionLivePrefix(s.livePrefix),
		prompt.OptionTitle("pvduck "+s.name),
		prompt.OptionSetExitCheckerOnInput(func(_ string, breakline bool) bool {
			return breakline && (s.quit || ctx.Err() != nil)
		}),
	)
	p.Run()
	return nil
}

// RunScript executes every statement read from r and stops at the first
// error.
func (s *Session) RunScript(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := s.Feed(ctx, scanner.Text()); err != nil {
			return err
		}
		if s.quit {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	// A trailing statement without semicolon still runs.
	if rest := strings.TrimSpace(s.pending.String()); rest != "" {
		s.pending.Reset()
		return s.Execute(ctx, rest)
	}
	return nil
}

// Feed adds one input line. Meta commands run immediately; SQL runs once a
// line ends with a semicolon.
func (s *Session) Feed(ctx context.Context, line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}

	if s.pending.Len() == 0 && strings.HasPrefix(trimmed, ".") {
		return s.Execute(ctx, trimmed)
	}

	if s.pending.Len() > 0 {
		s.pending.WriteByte('\n')
	}
	s.pending.WriteString(line)

	if !strings.HasSuffix(trimmed, ";") {
		return nil
	}

	stmt := s.pending.String()
	s.pending.Reset()
	return s.Execute(ctx, stmt)
}

// feed is the prompt executor. Errors are shown, not returned.
func (s *Session) feed(ctx context.Context, line string) {
	if err := s.Feed(ctx, line); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
}

func (s *Session) livePrefix() (string, bool) {
	if s.pending.Len() == 0 {
		return "", false
	}
	return strings.Repeat(" ", max(len(s.name)-1, 0)) + "...> ", true
}

// Execute runs one meta command or SQL statement.
func (s *Session) Execute(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, ".") {
		return s.meta(ctx, input)
	}

	stmt := strings.TrimSpace(strings.TrimSuffix(input, ";"))
	if stmt == "" {
		return nil
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer rows.Close()

	n, err := s.render(rows)
	if err != nil {
		return err
	}
	s.logger.Debug("statement executed", "rows", n, "duration", time.Since(start))

	// DDL may have added tables or columns.
	if !isQuery(stmt) {
		if err := s.refreshCompletions(ctx); err != nil {
			s.logger.Debug("refresh completions", "error", err)
		}
	}
	return nil
}

func (s *Session) meta(ctx context.Context, input string) error {
	fields := strings.Fields(input)
	switch fields[0] {
	case ".quit", ".exit", ".q":
		s.quit = true
		return nil
	case ".help":
		for _, m := range metaCommands {
			fmt.Fprintf(s.out, "%-10s %s\n", m.Text, m.Description)
		}
		return nil
	case ".tables":
		return s.Execute(ctx, "SELECT table_name AS name FROM duckdb_tables() WHERE NOT internal ORDER BY table_name")
	case ".schema":
		if len(fields) > 1 {
			return s.schema(ctx, fields[1])
		}
		return s.schema(ctx, "")
	default:
		return fmt.Errorf("unknown command %s, try .help", fields[0])
	}
}

func (s *Session) schema(ctx context.Context, table string) error {
	query := `SELECT sql FROM (
			SELECT table_name AS tbl, sql, 0 AS kind FROM duckdb_tables() WHERE NOT internal
			UNION ALL
			SELECT table_name, sql, 1 FROM duckdb_indexes()
		)
		WHERE ? = '' OR tbl = ?
		ORDER BY tbl, kind`

	rows, err := s.db.QueryContext(ctx, query, table, table)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var stmt sql.NullString
		if err := rows.Scan(&stmt); err != nil {
			return err
		}
		if stmt.Valid {
			fmt.Fprintln(s.out, strings.TrimSpace(stmt.String))
		}
	}
	return rows.Err()
}

// Quit reports whether the session was asked to end.
func (s *Session) Quit() bool {
	return s.quit
}

// Complete suggests keywords, tables, columns and meta commands for the
// word before the cursor.
func (s *Session) Complete(d prompt.Document) []prompt.Suggest {
	return s.suggest(d.GetWordBeforeCursor())
}

func (s *Session) suggest(word string) []prompt.Suggest {
	if word == "" {
		return nil
	}
	if strings.HasPrefix(word, ".") {
		return prompt.FilterHasPrefix(metaCommands, word, true)
	}

	var suggestions []prompt.Suggest
	for _, t := range s.tables {
		suggestions = append(suggestions, prompt.Suggest{Text: t, Description: "table"})
	}
	for _, c := range s.columns {
		suggestions = append(suggestions, prompt.Suggest{Text: c, Description: "column"})
	}
	for _, k := range keywords {
		suggestions = append(suggestions, prompt.Suggest{Text: k})
	}
	return prompt.FilterHasPrefix(suggestions, word, true)
}

func (s *Session) refreshCompletions(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT table_name, column_name FROM duckdb_columns() WHERE NOT internal")
	if err != nil {
		return err
	}
	defer rows.Close()

	tables := make(map[string]struct{})
	columns := make(map[string]struct{})
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return err
		}
		tables[table] = struct{}{}
		columns[column] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.tables = sortedKeys(tables)
	s.columns = sortedKeys(columns)
	return nil
}

// render writes rows as a table and returns the number of rows.
func (s *Session) render(rows *sql.Rows) (int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}

	table := tablewriter.NewWriter(s.out)
	table.SetHeader(cols)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	n := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return n, err
		}
		record := make([]string, len(cols))
		for i, v := range values {
			record[i] = format(v)
		}
		table.Append(record)
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}

	if len(cols) > 0 {
		table.Render()
	}
	fmt.Fprintf(s.out, "(%d %s)\n", n, plural(n, "row", "rows"))
	return n, nil
}

func format(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format(time.DateOnly)
		}
		return v.Format(time.DateTime)
	default:
		return fmt.Sprint(v)
	}
}

func isQuery(stmt string) bool {
	first := strings.ToUpper(strings.Fields(stmt)[0])
	switch first {
	case "SELECT", "WITH", "DESCRIBE", "SUMMARIZE", "EXPLAIN", "SHOW", "FROM", "PRAGMA":
		return true
	}
	return false
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
