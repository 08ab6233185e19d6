// Command cli runs the compliance maintenance commands:
//
//	records:archive [--dry-run] [--tenant=]
//	inventory:check-alerts [--notify] [--tenant=]
//	compliance:export-health-canada [--tenant=] [--start-date=] [--end-date=] [--format=json|csv|xml|xlsx] [--output=]
//
// Without --tenant a command runs for every active tenant. The exit code is 1
// on an unknown tenant, an unsupported format, an invalid date or any failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/straye-as/cultivation-api/internal/app"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/config"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/export"
	"github.com/straye-as/cultivation-api/internal/logger"
)

const (
	cmdArchive = "records:archive"
	cmdAlerts  = "inventory:check-alerts"
	cmdExport  = "compliance:export-health-canada"
)

type options struct {
	tenant    string
	dryRun    bool
	notify    bool
	startDate string
	endDate   string
	format    string
	output    string

	exportFormat export.Format
	period       export.DateRange
}

// openApp builds the application container. Replaced in tests.
var openApp = func(ctx context.Context) (*app.App, error) {
	basicCfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	return app.New(ctx, cfg, log)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		usage(stderr)
		return 1
	}
	name := args[0]

	var opts options
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.tenant, "tenant", "", "tenant slug or ID (default: every active tenant)")

	switch name {
	case cmdArchive:
		fs.BoolVar(&opts.dryRun, "dry-run", false, "report eligible records without archiving them")
	case cmdAlerts:
		fs.BoolVar(&opts.notify, "notify", false, "send notifications for the alerts found")
	case cmdExport:
		fs.StringVar(&opts.startDate, "start-date", "", "period start, YYYY-MM-DD")
		fs.StringVar(&opts.endDate, "end-date", "", "period end, YYYY-MM-DD (inclusive)")
		fs.StringVar(&opts.format, "format", string(export.FormatJSON), "json, csv, xml or xlsx")
		fs.StringVar(&opts.output, "output", "", "file or directory to write; uploads to storage when empty")
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		usage(stderr)
		return 1
	}
	if err := fs.Parse(args[1:]); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return 1
	}

	if name == cmdExport {
		var err error
		if opts.exportFormat, err = export.ParseFormat(opts.format); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		if opts.period, err = export.ParseDateRange(opts.startDate, opts.endDate); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
	}

	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer a.Close()

	tenants, err := resolveTenants(ctx, a, opts.tenant)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	failed := 0
	for i := range tenants {
		tenant := &tenants[i]
		tctx := auth.SystemContext(ctx, tenant.ID)

		var err error
		switch name {
		case cmdArchive:
			err = archive(tctx, a, tenant, opts, stdout)
		case cmdAlerts:
			err = checkAlerts(tctx, a, tenant, opts, stdout)
		case cmdExport:
			err = exportTenant(tctx, a, tenant, opts, len(tenants) > 1, stdout)
		}
		if err != nil {
			failed++
			fmt.Fprintf(stderr, "error: %s: %v\n", tenant.Slug, err)
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func resolveTenants(ctx context.Context, a *app.App, ref string) ([]domain.Tenant, error) {
	if strings.TrimSpace(ref) != "" {
		tenant, err := a.Tenants.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		return []domain.Tenant{*tenant}, nil
	}
	return a.Tenants.ListActive(ctx)
}

func archive(ctx context.Context, a *app.App, tenant *domain.Tenant, opts options, out io.Writer) error {
	report, err := a.Archival.Run(ctx, opts.dryRun)
	if err != nil {
		return err
	}
	mode := "archived"
	if report.DryRun {
		mode = "would archive"
	}
	for _, t := range report.Types {
		n := t.Archived
		if report.DryRun {
			n = len(t.CandidateIDs)
		}
		fmt.Fprintf(out, "%s: %s %d %s record(s) older than %s\n",
			tenant.Slug, mode, n, t.RecordType, t.Cutoff.Format(export.DateLayout))
	}
	if len(report.Types) == 0 {
		fmt.Fprintf(out, "%s: no active retention policies\n", tenant.Slug)
	}
	return nil
}

func checkAlerts(ctx context.Context, a *app.App, tenant *domain.Tenant, opts options, out io.Writer) error {
	summary, err := a.Detection.CheckAlerts(ctx, opts.notify)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d variance alert(s), %d theft pattern(s)",
		tenant.Slug, len(summary.VarianceAlerts), len(summary.TheftPatterns))
	if opts.notify {
		fmt.Fprintf(out, ", %d notification(s) sent", summary.Notified)
	}
	fmt.Fprintln(out)
	for _, alert := range summary.VarianceAlerts {
		fmt.Fprintf(out, "  [%s] count %s on %s: expected %s, counted %s (%d day(s) pending)\n",
			alert.Severity, alert.CountID, alert.BatchName,
			alert.ExpectedQuantity, alert.CountedQuantity, alert.DaysPending)
	}
	for _, pattern := range summary.TheftPatterns {
		fmt.Fprintf(out, "  [%s] %s\n", pattern.Type, pattern.Description)
	}
	return nil
}

// exportTenant writes the bundle to --output, or uploads it to storage when
// no output is given. With several tenants or a directory output, each
// tenant's file is written under the directory.
func exportTenant(ctx context.Context, a *app.App, tenant *domain.Tenant, opts options, many bool, out io.Writer) error {
	if opts.output == "" {
		result, err := a.Exports.Publish(ctx, opts.exportFormat, opts.period)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: uploaded %s (%d bytes)\n", tenant.Slug, result.Location, result.Size)
		return nil
	}

	result, err := a.Exports.Render(ctx, opts.exportFormat, opts.period)
	if err != nil {
		return err
	}
	target := opts.output
	if many || isDir(target) || strings.HasSuffix(target, string(os.PathSeparator)) {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		target = filepath.Join(target, result.FileName)
	}
	if err := os.WriteFile(target, result.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Fprintf(out, "%s: wrote %s (%d bytes)\n", tenant.Slug, target, len(result.Data))
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: cli <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	fmt.Fprintf(w, "  %-34s archive records past their retention period\n", cmdArchive)
	fmt.Fprintf(w, "  %-34s report variance alerts and theft patterns\n", cmdAlerts)
	fmt.Fprintf(w, "  %-34s export compliance records for Health Canada\n", cmdExport)
}
