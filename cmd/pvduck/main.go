// pvduck incrementally aggregates hourly Wikimedia pageview snapshots into a
// per-project DuckDB database.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vegardege/pvduck/internal/errors"
	"github.com/vegardege/pvduck/internal/logging"
	"github.com/vegardege/pvduck/internal/project"
)

// Version is set at build time via ldflags
var Version = "dev"

const usage = `Usage: pvduck [-v] [-json] <command> [flags] [project]

Commands:
  create NAME                          create a project and edit its config
  ls                                   list projects
  edit NAME                            edit a project config
  rm [-yes] [-delete-db] NAME          remove a project
  sync [-max-files N] [-continue] NAME download and merge snapshots
  status NAME                          show sync progress and failures
  retry NAME                           forget failed snapshots so sync retries them
  compact NAME                         rewrite the database to reclaim space
  stats NAME                           summarize the aggregated pageviews
  open NAME                            interactive SQL session
  version                              print the version
`

func main() {
	fs := flag.NewFlagSet("pvduck", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }

	verbose := fs.Bool("v", false, "debug logging")
	jsonLogs := fs.Bool("json", false, "log as JSON")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(errors.ExitOK)
		}
		os.Exit(errors.ExitFailure)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logging.Init(level, *jsonLogs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, err := project.DefaultPaths()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.ExitFailure)
	}

	a := newApp(project.NewManager(paths), os.Stdin, os.Stdout)
	if err := a.run(ctx, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(errors.ExitCode(err))
	}
}

// printUsage writes the command overview.
func printUsage(w io.Writer) {
	fmt.Fprint(w, usage)
}
