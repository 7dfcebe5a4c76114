package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/globidx-search/config"
	"github.com/aluiziolira/globidx-search/models"
	"github.com/aluiziolira/globidx-search/pipeline"
	"github.com/aluiziolira/globidx-search/scraper"
)

const (
	exitOK    = 0
	exitRun   = 1
	exitUsage = 2
)

// usageError marks failures caused by bad arguments or configuration.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

type options struct {
	configFile  string
	surname     string
	forename    string
	place       string
	beginYear   int
	endYear     int
	rows        int
	waitSec     int
	timeoutSec  int
	output      string
	format      string
	columns     string
	noDetails   bool
	cacheSize   int
	baseURL     string
	metricsAddr string
	verbose     bool
}

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(&options{})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var usage usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(stderr, "error: %v\n\n%s", err, cmd.UsageString())
		return exitUsage
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitRun
}

func newRootCmd(opts *options) *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "globidx [options]",
		Short: "Export search results from the stolp.de Globalindex",
		Long: `globidx runs one search against the stolp.de Globalindex, walks every
result page, follows each record's detail link and writes the rows as CSV.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError{fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))}
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := cmd.Flags()
	flags.StringVarP(&opts.surname, "surname", "s", defaults.Surname, "surname")
	flags.StringVarP(&opts.forename, "forename", "f", defaults.Forename, "forename")
	flags.StringVarP(&opts.place, "place", "p", defaults.Place, "place")
	flags.IntVarP(&opts.beginYear, "begin", "b", defaults.BeginYear, "beginning year")
	flags.IntVarP(&opts.endYear, "end", "e", defaults.EndYear, "ending year")
	flags.IntVarP(&opts.rows, "rows", "r", defaults.PageSize, "rows per request (at most 1000)")
	flags.IntVarP(&opts.waitSec, "wait", "w", int(defaults.Delay/time.Second), "wait between requests (in seconds)")
	flags.StringVarP(&opts.output, "output", "o", defaults.OutputFile, "output results file (- for stdout)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", defaults.Verbose, "increase output verbosity")
	flags.IntVarP(&opts.timeoutSec, "timeout", "t", int(defaults.Timeout/time.Second), "timeout in seconds")
	flags.StringVar(&opts.format, "format", defaults.OutputFormat, "output format: csv, json, or dual")
	flags.StringVar(&opts.columns, "columns", defaults.Columns, "column set: union or first-row")
	flags.BoolVar(&opts.noDetails, "no-details", defaults.SkipDetails, "do not fetch detail pages")
	flags.IntVar(&opts.cacheSize, "cache-size", defaults.DetailCacheSize, "detail pages kept in memory (0 disables)")
	flags.StringVar(&opts.configFile, "config", "", "YAML config file")
	flags.StringVar(&opts.baseURL, "base-url", defaults.BaseURL, "site root of the index")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")

	return cmd
}

// buildConfig layers defaults, the config file, the environment and the
// flags that were set explicitly.
func buildConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configFile != "" {
		if err := cfg.LoadFile(opts.configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("surname", func() { cfg.Surname = opts.surname })
	set("forename", func() { cfg.Forename = opts.forename })
	set("place", func() { cfg.Place = opts.place })
	set("begin", func() { cfg.BeginYear = opts.beginYear })
	set("end", func() { cfg.EndYear = opts.endYear })
	set("rows", func() { cfg.PageSize = opts.rows })
	set("wait", func() { cfg.Delay = time.Duration(opts.waitSec) * time.Second })
	set("timeout", func() { cfg.Timeout = time.Duration(opts.timeoutSec) * time.Second })
	set("output", func() { cfg.OutputFile = opts.output })
	set("format", func() { cfg.OutputFormat = strings.ToLower(opts.format) })
	set("columns", func() { cfg.Columns = strings.ToLower(opts.columns) })
	set("no-details", func() { cfg.SkipDetails = opts.noDetails })
	set("cache-size", func() { cfg.DetailCacheSize = opts.cacheSize })
	set("base-url", func() { cfg.BaseURL = opts.baseURL })
	set("metrics-addr", func() { cfg.MetricsAddr = opts.metricsAddr })
	set("verbose", func() { cfg.Verbose = opts.verbose })
	return cfg, nil
}

func run(cmd *cobra.Command, opts *options) error {
	cfg, err := buildConfig(cmd, opts)
	if err != nil {
		return usageError{err}
	}
	if err := cfg.Validate(); err != nil {
		return usageError{fmt.Errorf("invalid configuration: %w", err)}
	}

	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Verbose))
	ctx := cmd.Context()

	slog.Info("starting search",
		slog.String("surname", cfg.Surname),
		slog.String("forename", cfg.Forename),
		slog.String("place", cfg.Place),
		slog.Int("begin", cfg.BeginYear),
		slog.Int("end", cfg.EndYear),
	)

	c, err := scraper.NewCollector(cfg)
	if err != nil {
		return fmt.Errorf("initialising collector: %w", err)
	}

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(c.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	result, err := c.Run(ctx)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(result.Records) == 0 {
		slog.Info("search returned no records")
		return nil
	}

	writer, err := createWriter(cfg, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	exporter, err := exportRecords(writer, cfg, result.Records)
	if err != nil {
		return err
	}

	if cfg.Verbose {
		printSummary(cmd.ErrOrStderr(), result, exporter.GetMetrics(), cfg)
	}
	return nil
}

// exportRecords writes records through writer and always closes it.
func exportRecords(writer pipeline.OutputWriter, cfg *config.Config, records []*models.Record) (*pipeline.Exporter, error) {
	exporter := pipeline.NewExporter(writer, cfg)
	if err := exporter.Export(records); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return nil, errors.Join(fmt.Errorf("export failed: %w", err), fmt.Errorf("close writer: %w", closeErr))
		}
		return nil, fmt.Errorf("export failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return nil, fmt.Errorf("output validation failed: %w", err)
	}
	return exporter, nil
}

func createWriter(cfg *config.Config, stdout io.Writer) (pipeline.OutputWriter, error) {
	switch cfg.OutputFormat {
	case "json":
		if cfg.ToStdout() {
			return pipeline.NewJSONWriter(stdout), nil
		}
		return pipeline.NewJSONFileWriter(cfg.OutputFile)
	case "csv":
		if cfg.ToStdout() {
			return pipeline.NewCSVWriter(stdout), nil
		}
		return pipeline.NewCSVFileWriter(cfg.OutputFile)
	case "dual":
		jsonFilename := strings.TrimSuffix(cfg.OutputFile, ".csv") + ".jsonl"
		return pipeline.NewDualWriter(cfg.OutputFile, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

func printSummary(w io.Writer, result *models.SearchResult, metrics map[string]interface{}, cfg *config.Config) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, "Search complete")
	fmt.Fprintf(w, "  Reported rows: %d in %d pages\n", result.TotalRows, result.TotalPages)
	fmt.Fprintf(w, "  Records:       %d\n", len(result.Records))
	fmt.Fprintf(w, "  Requests:      %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Detail pages:  %d (cache hits %d)\n", result.DetailCount, result.CacheHits)
	if columns, ok := metrics["columns"].(int); ok {
		fmt.Fprintf(w, "  Columns:       %d\n", columns)
	}
	if dropped, ok := metrics["dropped_fields"].(int); ok && dropped > 0 {
		fmt.Fprintf(w, "  Dropped:       %d fields\n", dropped)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	output := cfg.OutputFile
	if cfg.ToStdout() {
		output = "stdout"
	}
	fmt.Fprintf(w, "  Output:        %s\n", output)
	fmt.Fprintln(w, separator)
}

// newLogger writes to w, which is never the export stream.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelWarn)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(w) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
