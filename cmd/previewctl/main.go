// Command previewctl manages preview grants directly in the configured store,
// without going through a running gate.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/sipico/preview-gate/internal/config"
	"github.com/sipico/preview-gate/internal/grant"
	"github.com/sipico/preview-gate/internal/issuer"
	"github.com/sipico/preview-gate/internal/storage"
)

// errUsage marks errors caused by bad invocation; main exits 2 for them.
var errUsage = errors.New("usage error")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// storeFlags are shared by every subcommand. Defaults come from the same
// environment variables the server reads.
type storeFlags struct {
	opts     storage.Options
	siteURL  string
	timezone string
}

func (s *storeFlags) register(fs *pflag.FlagSet, cfg *config.Config) {
	s.opts = cfg.StorageOptions()
	fs.StringVar(&s.opts.Backend, "backend", s.opts.Backend, "grant store backend (sqlite or redis)")
	fs.StringVar(&s.opts.DatabasePath, "db", s.opts.DatabasePath, "SQLite database path")
	fs.StringVar(&s.opts.RedisAddr, "redis-addr", s.opts.RedisAddr, "Redis address")
	fs.IntVar(&s.opts.RedisDB, "redis-db", s.opts.RedisDB, "Redis database number")
	fs.StringVar(&s.opts.RedisKey, "redis-key", s.opts.RedisKey, "Redis key holding the grant set")
	fs.StringVar(&s.siteURL, "site-url", cfg.SiteURL, "public base URL for shareable links")
	fs.StringVar(&s.timezone, "timezone", cfg.SiteTimezone, "IANA time zone for expiry input and display")
}

func (s *storeFlags) open(ctx context.Context) (storage.Backend, *issuer.Service, error) {
	loc, err := time.LoadLocation(s.timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: --timezone: %v", errUsage, err)
	}
	store, err := storage.Open(ctx, s.opts)
	if err != nil {
		return nil, nil, err
	}
	svc := issuer.New(store, issuer.Options{
		Location: loc,
		SiteURL:  s.siteURL,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return store, svc, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printHelp(stderr)
		return fmt.Errorf("%w: no command given", errUsage)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create":
		return runCreate(ctx, cfg, rest, stdout, stderr)
	case "list":
		return runList(ctx, cfg, rest, stdout, stderr)
	case "delete":
		return runDelete(ctx, cfg, rest, stdout, stderr)
	case "export":
		return runExport(ctx, cfg, rest, stdout, stderr)
	case "help", "-h", "--help":
		printHelp(stdout)
		return nil
	default:
		printHelp(stderr)
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// parse parses args and reports whether the command should proceed.
func parse(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", errUsage, err)
	}
	return true, nil
}

func runCreate(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	var (
		sf       storeFlags
		client   string
		resource string
		siteWide bool
		dur      grant.Duration
		expires  string
		banner   bool
		asJSON   bool
	)
	fs := pflag.NewFlagSet("create", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	sf.register(fs, cfg)
	fs.StringVarP(&client, "client", "c", "", "client name (required)")
	fs.StringVarP(&resource, "resource", "r", "", "page path the grant covers")
	fs.BoolVar(&siteWide, "site-wide", false, "grant access to every page")
	fs.IntVar(&dur.Days, "days", 0, "expire after this many days")
	fs.IntVar(&dur.Hours, "hours", 0, "expire after this many hours")
	fs.IntVar(&dur.Minutes, "minutes", 0, "expire after this many minutes")
	fs.StringVar(&expires, "expires", "", "expire at this local date-time (YYYY-MM-DDTHH:MM)")
	fs.BoolVar(&banner, "banner", false, "show the preview banner to the visitor")
	fs.BoolVar(&asJSON, "json", false, "print the grant as JSON")

	if ok, err := parse(fs, args); !ok {
		return err
	}

	req := grant.Request{ClientName: client, ShowBanner: banner}
	switch {
	case siteWide && resource != "":
		return fmt.Errorf("%w: --resource and --site-wide are mutually exclusive", errUsage)
	case siteWide:
		req.Scope = grant.SiteWide()
	default:
		req.Scope = grant.Scope{Kind: grant.ScopeSinglePage, Resource: grant.ResourceID(resource)}
	}

	durationSet := fs.Changed("days") || fs.Changed("hours") || fs.Changed("minutes")
	switch {
	case durationSet && expires != "":
		return fmt.Errorf("%w: give either --days/--hours/--minutes or --expires, not both", errUsage)
	case durationSet:
		req.Expiry = dur
	case expires != "":
		req.Expiry = grant.AbsoluteDate(expires)
	}

	store, svc, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	g, err := svc.Create(ctx, req)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(stdout, record(svc, svc.Entry(g)))
	}
	fmt.Fprintf(stdout, "Created grant for %s (%s), expires %s\n%s\n",
		g.ClientName, issuer.Label(g), svc.FormatTime(g.ExpiresAt), svc.Link(g))
	return nil
}

func runList(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	var (
		sf     storeFlags
		asJSON bool
	)
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	sf.register(fs, cfg)
	fs.BoolVar(&asJSON, "json", false, "print grants as JSON")

	if ok, err := parse(fs, args); !ok {
		return err
	}

	store, svc, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := svc.List(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		out := make([]grantRecord, len(entries))
		for i, e := range entries {
			out[i] = record(svc, e)
		}
		return writeJSON(stdout, out)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOKEN\tCLIENT\tTARGET\tEXPIRES\tBANNER\tSTATUS")
	for _, e := range entries {
		status := "active"
		if e.Expired {
			status = "expired"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Grant.Token, e.Grant.ClientName, e.Label, svc.FormatTime(e.Grant.ExpiresAt), yesNo(e.Grant.ShowBanner), status)
	}
	return tw.Flush()
}

func runDelete(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	var sf storeFlags
	fs := pflag.NewFlagSet("delete", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	sf.register(fs, cfg)

	if ok, err := parse(fs, args); !ok {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: delete takes exactly one token", errUsage)
	}

	store, svc, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	removed, err := svc.Delete(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if removed {
		fmt.Fprintln(stdout, "Deleted grant")
	} else {
		fmt.Fprintln(stdout, "No such grant")
	}
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	var (
		sf     storeFlags
		output string
	)
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	sf.register(fs, cfg)
	fs.StringVarP(&output, "output", "o", "", "write CSV to this file instead of stdout")

	if ok, err := parse(fs, args); !ok {
		return err
	}

	store, svc, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if output == "" {
		return svc.ExportCSV(ctx, stdout)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	if err := svc.ExportCSV(ctx, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// grantRecord is the JSON shape printed by --json.
type grantRecord struct {
	Token      string `json:"token"`
	ClientName string `json:"client_name"`
	Target     string `json:"target"`
	Link       string `json:"link"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at"`
	ShowBanner bool   `json:"show_banner"`
	Expired    bool   `json:"expired"`
}

func record(svc *issuer.Service, e issuer.Entry) grantRecord {
	return grantRecord{
		Token:      e.Grant.Token,
		ClientName: e.Grant.ClientName,
		Target:     e.Label,
		Link:       e.Link,
		CreatedAt:  svc.FormatTime(e.Grant.CreatedAt),
		ExpiresAt:  svc.FormatTime(e.Grant.ExpiresAt),
		ShowBanner: e.Grant.ShowBanner,
		Expired:    e.Expired,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `previewctl manages preview grants in the gate's store.

The store is selected by the same environment variables as the server
(STORE_BACKEND, DATABASE_PATH, REDIS_*), or by flags.

Usage:
  previewctl <command> [flags]

Commands:
  create   issue a grant and print its shareable link
  list     list all grants, expired ones marked
  delete   revoke a grant by token
  export   write all grants as CSV

Examples:
  previewctl create --client Acme --resource /pricing --days 7 --banner
  previewctl create --client Acme --site-wide --expires 2026-11-01T18:00
  previewctl list --json
  previewctl delete 3f2a...
  previewctl export -o preview_links.csv

Run "previewctl <command> --help" for the flags of a command.
`)
}
