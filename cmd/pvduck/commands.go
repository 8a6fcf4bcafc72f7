package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/vegardege/pvduck/internal/errors"
	"github.com/vegardege/pvduck/internal/logging"
	"github.com/vegardege/pvduck/internal/pageviews"
	"github.com/vegardege/pvduck/internal/project"
	"github.com/vegardege/pvduck/internal/shell"
	"github.com/vegardege/pvduck/internal/stats"
	"github.com/vegardege/pvduck/internal/store"
	psync "github.com/vegardege/pvduck/internal/sync"
)

type command func(a *app, ctx context.Context, args []string) error

var commands = map[string]command{
	"create":  (*app).create,
	"ls":      (*app).list,
	"edit":    (*app).edit,
	"rm":      (*app).remove,
	"sync":    (*app).sync,
	"status":  (*app).status,
	"retry":   (*app).retry,
	"compact": (*app).compact,
	"stats":   (*app).stats,
	"open":    (*app).open,
	"version": (*app).version,
}

// app holds what commands share. Tests replace the fetcher and the
// confirmation prompt.
type app struct {
	projects *project.Manager
	stdin    io.Reader
	stdout   io.Writer
	fetcher  psync.Fetcher
	confirm  func(question string) (bool, error)
	now      func() time.Time
}

func newApp(projects *project.Manager, stdin io.Reader, stdout io.Writer) *app {
	a := &app{
		projects: projects,
		stdin:    stdin,
		stdout:   stdout,
		fetcher:  pageviews.NewFetcher(pageviews.NewSource()),
	}
	a.confirm = a.terminalConfirm
	return a
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage(a.stdout)
		return errors.NewValidation("command", "missing")
	}

	cmd, ok := commands[args[0]]
	if !ok {
		printUsage(a.stdout)
		return errors.NewValidation("command", fmt.Sprintf("unknown command %q", args[0]))
	}
	return cmd(a, ctx, args[1:])
}

// projectName parses fs and returns its single positional argument.
func projectName(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", errors.NewValidation(fs.Name(), err.Error())
	}
	if fs.NArg() != 1 {
		return "", errors.NewValidation(fs.Name(), "expected exactly one project name")
	}
	name := fs.Arg(0)
	if err := project.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func (a *app) create(ctx context.Context, args []string) error {
	name, err := projectName(newFlagSet("create"), args)
	if err != nil {
		return err
	}
	if err := a.projects.Create(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Project '%s' created\n", name)
	return nil
}

func (a *app) list(_ context.Context, args []string) error {
	fs := newFlagSet("ls")
	if err := fs.Parse(args); err != nil {
		return errors.NewValidation("ls", err.Error())
	}

	names, err := a.projects.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintf(a.stdout, "- %s\n", name)
	}
	return nil
}

func (a *app) edit(ctx context.Context, args []string) error {
	name, err := projectName(newFlagSet("edit"), args)
	if err != nil {
		return err
	}
	if err := a.projects.Edit(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Project '%s' updated\n", name)
	return nil
}

func (a *app) remove(_ context.Context, args []string) error {
	fs := newFlagSet("rm")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	deleteDB := fs.Bool("delete-db", false, "also delete the database")
	name, err := projectName(fs, args)
	if err != nil {
		return err
	}
	if !a.projects.Exists(name) {
		return errors.NewNotFound(errors.ErrProjectNotFound, name)
	}

	if !*yes {
		question := fmt.Sprintf("Remove project '%s'?", name)
		if *deleteDB {
			question = fmt.Sprintf("Remove project '%s' and delete its database?", name)
		}
		ok, err := a.confirm(question)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(a.stdout, "Aborted")
			return nil
		}
	}

	if err := a.projects.Remove(name, *deleteDB); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Project '%s' removed\n", name)
	return nil
}

func (a *app) terminalConfirm(question string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errors.NewValidation("rm", "stdin is not a terminal, pass -yes to confirm")
	}

	fmt.Fprintf(a.stdout, "%s [y/N] ", question)
	answer, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// engine loads the project and builds a sync engine on its store. adjust,
// if set, may change the options first. The caller closes the store.
func (a *app) engine(name string, adjust func(*psync.Options)) (*psync.Engine, *store.Store, psync.Options, error) {
	cfg, err := a.projects.Load(name)
	if err != nil {
		return nil, nil, psync.Options{}, err
	}
	opts, err := psync.OptionsFromConfig(cfg)
	if err != nil {
		return nil, nil, psync.Options{}, err
	}
	opts.Now = a.now
	if adjust != nil {
		adjust(&opts)
	}

	st, err := a.projects.OpenStore(name)
	if err != nil {
		return nil, nil, psync.Options{}, err
	}
	return psync.New(st, a.fetcher, opts), st, opts, nil
}

func (a *app) sync(ctx context.Context, args []string) error {
	fs := newFlagSet("sync")
	maxFiles := fs.Int("max-files", 0, "stop after this many snapshots (overrides max_files)")
	keepGoing := fs.Bool("continue", false, "keep going after a failed snapshot")
	name, err := projectName(fs, args)
	if err != nil {
		return err
	}
	if *maxFiles < 0 {
		return errors.NewValidation("max-files", "must not be negative")
	}

	e, st, _, err := a.engine(name, func(opts *psync.Options) {
		if *maxFiles > 0 {
			opts.MaxFiles = *maxFiles
		}
		if *keepGoing {
			opts.HaltOnError = false
		}
	})
	if err != nil {
		return err
	}
	defer st.Close()

	ctx = logging.ContextWithProject(ctx, name)
	res, err := e.Run(ctx)

	fmt.Fprintf(a.stdout, "Project '%s': %d merged, %d failed, %d deferred, %d already done (%s)\n",
		name, res.Succeeded, res.Failed, res.Deferred, res.Skipped, res.Duration.Round(time.Millisecond))
	if err != nil {
		return errors.Wrapf(err, "sync %s", name)
	}
	return nil
}

func (a *app) status(ctx context.Context, args []string) error {
	name, err := projectName(newFlagSet("status"), args)
	if err != nil {
		return err
	}

	e, st, opts, err := a.engine(name, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := e.Progress(ctx)
	if err != nil {
		return err
	}

	end := "now"
	if opts.End != nil {
		end = opts.End.Format(time.RFC3339)
	}
	fmt.Fprintf(a.stdout, "Project:   %s\n", name)
	fmt.Fprintf(a.stdout, "Range:     %s to %s, sample rate %s, %s order\n",
		opts.Start.Format(time.RFC3339), end, strconv.FormatFloat(opts.SampleRate, 'g', -1, 64), opts.Order)
	fmt.Fprintf(a.stdout, "Progress:  %s/%s (%.1f%%)\n",
		humanize.Comma(int64(p.Done())), humanize.Comma(int64(p.Total)), p.Percent())
	fmt.Fprintf(a.stdout, "Succeeded: %s\n", humanize.Comma(int64(p.Succeeded)))
	fmt.Fprintf(a.stdout, "Failed:    %s\n", humanize.Comma(int64(p.Failed)))
	fmt.Fprintf(a.stdout, "Remaining: %s\n", humanize.Comma(int64(p.Remaining())))

	if len(p.Failures) > 0 {
		fmt.Fprintln(a.stdout, "\nFailed snapshots (run 'pvduck retry' to attempt them again):")
		for _, f := range p.Failures {
			fmt.Fprintf(a.stdout, "  %s  %s\n", f.Timestamp.Format(time.RFC3339), f.Error)
		}
	}
	return nil
}

func (a *app) retry(ctx context.Context, args []string) error {
	name, err := projectName(newFlagSet("retry"), args)
	if err != nil {
		return err
	}

	st, err := a.projects.OpenStore(name)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.Ledger().ClearFailures(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Cleared %d failed %s in '%s'\n", n, pluralize(n, "snapshot", "snapshots"), name)
	return nil
}

func (a *app) compact(ctx context.Context, args []string) error {
	name, err := projectName(newFlagSet("compact"), args)
	if err != nil {
		return err
	}

	st, err := a.projects.OpenStore(name)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.Compact(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Project '%s' compacted: %s rows, %s -> %s",
		name, humanize.Comma(res.Rows), humanize.Bytes(uint64(res.SizeBefore)), humanize.Bytes(uint64(res.SizeAfter)))
	if res.BytesSaved > 0 {
		fmt.Fprintf(a.stdout, " (saved %s)", humanize.Bytes(uint64(res.BytesSaved)))
	}
	fmt.Fprintln(a.stdout)
	return nil
}

func (a *app) stats(ctx context.Context, args []string) error {
	fs := newFlagSet("stats")
	top := fs.Int("top", stats.DefaultTop, "number of top pages to list")
	name, err := projectName(fs, args)
	if err != nil {
		return err
	}

	st, err := a.projects.OpenStore(name)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := stats.Summarize(ctx, st, stats.WithTop(*top))
	if err != nil {
		return err
	}

	v := s.Views
	fmt.Fprintf(a.stdout, "Snapshots:   %s merged, %s failed\n",
		humanize.Comma(s.Snapshots.Succeeded), humanize.Comma(s.Snapshots.Failed))
	fmt.Fprintf(a.stdout, "Pages:       %s\n", humanize.Comma(v.Count))
	fmt.Fprintf(a.stdout, "Total views: %s\n", humanize.Comma(int64(v.Sum)))
	if v.Count == 0 {
		return nil
	}
	fmt.Fprintf(a.stdout, "Min / max:   %s / %s\n", humanize.Comma(int64(v.Min)), humanize.Comma(int64(v.Max)))
	fmt.Fprintf(a.stdout, "Mean:        %s\n", humanize.CommafWithDigits(v.Avg, 1))
	fmt.Fprintf(a.stdout, "p50/p90/p99: %s / %s / %s\n", quantile(v.P50), quantile(v.P90), quantile(v.P99))

	fmt.Fprintln(a.stdout)
	domains := tablewriter.NewWriter(a.stdout)
	domains.SetHeader([]string{"Domain", "Pages", "Views", "Max", "p50", "p99"})
	domains.SetAutoFormatHeaders(false)
	for _, d := range s.Domains {
		domains.Append([]string{
			d.Domain,
			humanize.Comma(d.Count),
			humanize.Comma(int64(d.Sum)),
			humanize.Comma(int64(d.Max)),
			quantile(d.P50),
			quantile(d.P99),
		})
	}
	domains.Render()

	if len(s.Top) > 0 {
		fmt.Fprintln(a.stdout)
		pages := tablewriter.NewWriter(a.stdout)
		pages.SetHeader([]string{"#", "Domain code", "Page", "Views"})
		pages.SetAutoFormatHeaders(false)
		pages.SetAutoWrapText(false)
		for i, p := range s.Top {
			pages.Append([]string{strconv.Itoa(i + 1), p.DomainCode, p.PageTitle, humanize.Comma(int64(p.Views))})
		}
		pages.Render()
	}
	return nil
}

func (a *app) open(ctx context.Context, args []string) error {
	name, err := projectName(newFlagSet("open"), args)
	if err != nil {
		return err
	}

	st, err := a.projects.OpenStore(name)
	if err != nil {
		return err
	}
	defer st.Close()

	return shell.New(st, name, a.stdout).Run(ctx)
}

func (a *app) version(_ context.Context, _ []string) error {
	fmt.Fprintf(a.stdout, "pvduck %s\n", Version)
	return nil
}

func quantile(q *float64) string {
	if q == nil {
		return "-"
	}
	return "~" + humanize.CommafWithDigits(*q, 0)
}

func pluralize(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
