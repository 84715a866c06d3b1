package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"quotescanner/internal/config"
	"quotescanner/internal/report"
)

const usage = `quotescanner fetches stock quotes concurrently and reports movers.

Usage:
  quotescanner [--config FILE] [-v] <command> [flags]

Commands:
  scan     fetch every symbol once and print a report
  watch    repeat scan on an interval until interrupted
  config   show the resolved configuration or write a default file

Run 'quotescanner <command> --help' for command flags.
`

// errUsage marks command line mistakes; main exits with status 2 for them
var errUsage = errors.New("usage error")

func main() {
	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		switch {
		case errors.Is(err, errUsage), errors.Is(err, report.ErrConfigConflict):
			os.Exit(2)
		default:
			os.Exit(1)
		}
	}
}

// run parses the global flags, sets up logging and dispatches to a command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := pflag.NewFlagSet("quotescanner", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }

	configPath := global.String("config", "", "path to a config file (toml, yaml or json)")
	verbose := global.BoolP("verbose", "v", false, "enable debug logging")

	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	setupLogging(stderr, *verbose)

	rest := global.Args()
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("%w: no command given", errUsage)
	}

	switch cmd, cmdArgs := rest[0], rest[1:]; cmd {
	case "scan":
		return runScan(ctx, *configPath, cmdArgs, stdout, stderr, false)
	case "watch":
		return runScan(ctx, *configPath, cmdArgs, stdout, stderr, true)
	case "config":
		return runConfig(*configPath, cmdArgs, stdout, stderr)
	case "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func runConfig(configPath string, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	show := fs.Bool("show", false, "print the resolved configuration with API keys masked")
	initFile := fs.Bool("init", false, "write a default config file (config.toml unless a path is given)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	switch {
	case *initFile:
		path := "config.toml"
		if fs.NArg() > 0 {
			path = fs.Arg(0)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Wrote default configuration to %s\n", path)
		fmt.Fprintf(stdout, "Set FINNHUB_API_KEY or edit the file before running a scan.\n")
		return nil
	case *show:
		cfg, err := config.Read(configPath, nil)
		if err != nil {
			return err
		}
		printConfig(stdout, cfg.Masked())
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("%w: config needs --show or --init", errUsage)
	}
}

func printConfig(w io.Writer, c config.Config) {
	fmt.Fprintf(w, "provider:              %s\n", c.Provider)
	fmt.Fprintf(w, "finnhub_api_key:       %s\n", c.FinnhubAPIKey)
	fmt.Fprintf(w, "alphavantage_api_key:  %s\n", c.AlphavantageAPIKey)
	fmt.Fprintf(w, "finnhub_base_url:      %s\n", c.FinnhubBaseURL)
	fmt.Fprintf(w, "alphavantage_base_url: %s\n", c.AlphavantageBaseURL)
	fmt.Fprintf(w, "symbols:               %v\n", c.Symbols)
	fmt.Fprintf(w, "symbols_file:          %s\n", c.SymbolsFile)
	fmt.Fprintf(w, "concurrent_requests:   %d\n", c.ConcurrentRequests)
	fmt.Fprintf(w, "rate_limit_delay:      %s\n", c.RateLimitDelay)
	fmt.Fprintf(w, "timeout:               %s\n", c.Timeout)
	fmt.Fprintf(w, "retry_count:           %d\n", c.RetryCount)
	fmt.Fprintf(w, "requests_per_minute:   %d\n", c.RequestsPerMinute)
	fmt.Fprintf(w, "default_output:        %s\n", c.DefaultOutput)
	fmt.Fprintf(w, "watch_interval:        %s\n", c.WatchInterval)
	fmt.Fprintf(w, "metrics_addr:          %s\n", c.MetricsAddr)
}
