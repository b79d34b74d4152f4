// Command allo-usage runs one allocation/usage request in batch mode and
// writes the result table as CSV, XLSX or JSON. With -import it first copies
// the configured source into a local SQLite snapshot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mullenkamp/nz-allo-usage-tools/internal/app"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/config"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/exporter"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/infrastructure"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/pipeline"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/storage"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/validation"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts"
)

type options struct {
	configPath string
	datasets   string
	freq       string
	groupBy    string
	ratio      float64
	out        string
	format     string
	importPath string
	version    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("allo-usage", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "config file (defaults to ALLO_CONFIG_FILE or ./config.yaml)")
	fs.StringVar(&o.datasets, "datasets", "", "comma separated datasets: allocation, metered_allocation, usage, usage_estimate, depletion_rate")
	fs.StringVar(&o.freq, "freq", "M", "output frequency: D, W, M, A-JUN")
	fs.StringVar(&o.groupBy, "group-by", "", "comma separated group columns (default permit_id,wap_id)")
	fs.Float64Var(&o.ratio, "ratio", 0, "usage/allocation ratio above which usage is treated as missing (0 uses the config)")
	fs.StringVar(&o.out, "out", "-", "output file, or - for stdout")
	fs.StringVar(&o.format, "format", "", "csv, xlsx or json (defaults to the output extension, else csv)")
	fs.StringVar(&o.importPath, "import", "", "copy permits and usage into this SQLite file before running")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.version {
		return o, nil
	}
	if o.datasets == "" && o.importPath == "" {
		return options{}, errors.New("-datasets or -import is required")
	}
	return o, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("allo-usage failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.version {
		_, err := fmt.Fprintln(stdout, contracts.GetFullVersionString("allo-usage"))
		return err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	// nothing scrapes a batch run
	cfg.Telemetry.MetricExporter = "none"

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Stop(context.Background()); err != nil {
			logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
		}
	}()

	if o.importPath != "" {
		if err := importSnapshot(ctx, a, o.importPath, stdout, logger); err != nil {
			return err
		}
		if o.datasets == "" {
			return nil
		}
	}

	if o.out != "" && o.out != "-" {
		if err := validation.NewFileValidator(logger).ValidateOutputDirectory(filepath.Dir(o.out)); err != nil {
			return err
		}
	}

	req, err := pipeline.ParseRequest(split(o.datasets), o.freq, split(o.groupBy))
	if err != nil {
		return err
	}
	req.UsageAlloRatio = o.ratio

	table, err := a.Run(ctx, req)
	if err != nil {
		return err
	}

	var format exporter.Format
	if o.format != "" {
		if format, err = exporter.ParseFormat(o.format); err != nil {
			return err
		}
	}
	if o.out == "" || o.out == "-" {
		if format == "" {
			format = exporter.FormatCSV
		}
		return a.Exporter.Write(ctx, stdout, table, format)
	}
	return a.Exporter.WriteFile(ctx, o.out, table, format)
}

func importSnapshot(ctx context.Context, a *app.Application, path string, stdout io.Writer, logger *slog.Logger) error {
	dst, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer dst.Close()

	opts, err := app.PipelineOptions(a.Config)
	if err != nil {
		return err
	}
	stats, err := storage.Import(ctx, a.Backend, dst, opts.Fetch, logger)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	_, err = fmt.Fprintf(stdout, "imported %d permits, %d points, %d readings into %s\n",
		stats.Permits, stats.Points, stats.Readings, path)
	return err
}

func split(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
