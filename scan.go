package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sourcegraph/conc"
	"github.com/spf13/pflag"

	"quotescanner/internal/alphavantage"
	"quotescanner/internal/config"
	"quotescanner/internal/coordinator"
	"quotescanner/internal/fetcher"
	"quotescanner/internal/finnhub"
	"quotescanner/internal/metrics"
	"quotescanner/internal/output"
	"quotescanner/internal/ratelimit"
	"quotescanner/internal/report"
	"quotescanner/internal/scanner"
	"quotescanner/internal/watch"
)

// scanFlags holds the command line options that are not configuration keys
type scanFlags struct {
	symbols      []string
	symbolsFile  string
	sortByChange bool
	sortBySymbol bool
	gainersOnly  bool
	losersOnly   bool
	minChange    float64
	noColor      bool
}

func newScanFlagSet(name string, watchMode bool, f *scanFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.StringSliceVarP(&f.symbols, "symbols", "s", nil, "comma-separated symbols, e.g. AAPL,MSFT")
	fs.StringVarP(&f.symbolsFile, "symbols-file", "f", "", "file with one symbol per line")
	fs.BoolVar(&f.sortByChange, "sort-by-change", false, "sort by absolute percent change, largest first")
	fs.BoolVar(&f.sortBySymbol, "sort-by-symbol", false, "sort alphabetically by symbol")
	fs.BoolVar(&f.gainersOnly, "gainers-only", false, "only show symbols that went up")
	fs.BoolVar(&f.losersOnly, "losers-only", false, "only show symbols that went down")
	fs.Float64Var(&f.minChange, "min-change", 0, "only show moves of at least this absolute percent")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colored output")

	// Flags below override configuration keys, see config.Read
	fs.StringP("output", "o", "table", "output format: table, json, csv or compact")
	fs.String("provider", "finnhub", "quote provider: finnhub or alphavantage")
	fs.IntP("concurrency", "c", 5, "maximum concurrent requests per batch")
	fs.Duration("delay", 0, "pause between batches (default 200ms)")
	fs.Duration("timeout", 0, "per-request timeout (default 10s)")
	fs.Int("retries", 2, "retries for failed requests")
	fs.Int("rpm", 0, "client-side requests per minute limit, 0 disables")

	if watchMode {
		fs.DurationP("interval", "i", 0, "time between rounds (default 60s)")
		fs.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	}

	return fs
}

func runScan(ctx context.Context, configPath string, args []string, stdout, stderr io.Writer, watchMode bool) error {
	name := "scan"
	if watchMode {
		name = "watch"
	}

	var f scanFlags
	fs := newScanFlagSet(name, watchMode, &f)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if f.sortByChange && f.sortBySymbol {
		return fmt.Errorf("%w: --sort-by-change and --sort-by-symbol are mutually exclusive", errUsage)
	}

	// Filter conflicts are reported before configuration or network access
	filter := report.Filter{MinChange: f.minChange, GainersOnly: f.gainersOnly, LosersOnly: f.losersOnly}
	if err := filter.Validate(); err != nil {
		return err
	}

	cfg, err := config.Load(configPath, fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	symbols, err := config.ResolveSymbols(f.symbols, f.symbolsFile, cfg)
	if err != nil {
		return err
	}

	// watch re-renders a table each round unless -o is given
	formatName := cfg.DefaultOutput
	if watchMode && !fs.Changed("output") {
		formatName = string(output.FormatTable)
	}
	format, err := output.ParseFormat(formatName)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	order := report.SortInput
	switch {
	case f.sortByChange:
		order = report.SortByChange
	case f.sortBySymbol:
		order = report.SortBySymbol
	}

	var rec *metrics.Recorder
	if watchMode && cfg.MetricsAddr != "" {
		rec = metrics.New()
	}

	coord := coordinator.New(newSource(cfg), coordinator.Options{
		Concurrency: cfg.ConcurrentRequests,
		BatchDelay:  cfg.RateLimitDelay,
		Timeout:     cfg.Timeout,
	})

	opts := scanner.Options{
		Filter:      filter,
		Order:       order,
		Format:      format,
		Renderer:    output.Renderer{Color: useColor(stdout, f.noColor, format)},
		ClearScreen: watchMode && format != output.FormatJSON && format != output.FormatCSV,
	}
	if rec != nil {
		coord.WithRecorder(rec)
		opts.Observer = rec
	}

	s, err := scanner.New(coord, symbols, stdout, opts)
	if err != nil {
		return err
	}

	slog.Debug("starting",
		"command", name,
		"provider", cfg.Provider,
		"symbols", len(symbols),
		"concurrency", cfg.ConcurrentRequests,
		"delay", cfg.RateLimitDelay,
		"timeout", cfg.Timeout)

	if !watchMode {
		return s.RunRound(ctx)
	}

	loop, err := watch.New(s, cfg.WatchInterval)
	if err != nil {
		return err
	}

	var wg conc.WaitGroup
	if rec != nil {
		wg.Go(func() {
			if err := rec.Serve(ctx, cfg.MetricsAddr); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		})
	}

	err = loop.Run(ctx)
	wg.Wait()
	return err
}

// newSource builds the configured provider with its retry and rate limit settings
func newSource(cfg *config.Config) fetcher.Source {
	limiter := ratelimit.New()
	clientOpts := []fetcher.ClientOption{fetcher.WithRetryCount(cfg.RetryCount)}

	switch cfg.Provider {
	case "alphavantage":
		limiter.SetPerMinute(ratelimit.APIAlphaVantage, cfg.RequestsPerMinute, cfg.ConcurrentRequests)
		return alphavantage.NewQuoteSource(cfg.AlphavantageAPIKey, cfg.AlphavantageBaseURL, limiter, clientOpts...)
	default:
		limiter.SetPerMinute(ratelimit.APIFinnhub, cfg.RequestsPerMinute, cfg.ConcurrentRequests)
		return finnhub.NewQuoteSource(cfg.FinnhubAPIKey, cfg.FinnhubBaseURL, limiter, clientOpts...)
	}
}

// useColor reports whether ANSI colors should be written to w
func useColor(w io.Writer, disabled bool, format output.Format) bool {
	if disabled || format == output.FormatJSON || format == output.FormatCSV {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
