package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"quotescanner/internal/fetcher"
)

// Options controls how a round of fetches is scheduled.
type Options struct {
	// Concurrency is the batch size: the maximum number of calls in flight.
	// Values below 1 are treated as 1.
	Concurrency int
	// BatchDelay is the pause between two consecutive batches.
	BatchDelay time.Duration
	// Timeout bounds every single call. Zero means no per-call bound.
	Timeout time.Duration
}

// Recorder receives one observation per Source call.
type Recorder interface {
	ObserveFetch(source string, errType string, elapsed time.Duration)
}

// Coordinator drives a Source over a list of symbols in paced, bounded batches
type Coordinator struct {
	source   fetcher.Source
	opts     Options
	recorder Recorder

	// sleep waits between batches; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a new Coordinator for the given source
func New(source fetcher.Source, opts Options) *Coordinator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Coordinator{
		source: source,
		opts:   opts,
		sleep:  sleepContext,
	}
}

// WithRecorder attaches a Recorder and returns the coordinator.
func (c *Coordinator) WithRecorder(r Recorder) *Coordinator {
	c.recorder = r
	return c
}

// Options returns the effective scheduling options.
func (c *Coordinator) Options() Options {
	return c.opts
}

// FetchAll fetches every symbol and returns one outcome per symbol,
// index-aligned with symbols regardless of completion order.
//
// Symbols are split into batches of at most Options.Concurrency. All calls of a
// batch run concurrently and must settle before the next batch starts; between
// batches the coordinator waits Options.BatchDelay. Failures are recorded in the
// outcome of their symbol and never affect other calls. If ctx is cancelled
// between batches, the symbols not yet requested get a canceled outcome.
func (c *Coordinator) FetchAll(ctx context.Context, symbols []string) []fetcher.Outcome {
	outcomes := make([]fetcher.Outcome, len(symbols))
	size := c.opts.Concurrency

	for start := 0; start < len(symbols); start += size {
		if start > 0 {
			if err := c.sleep(ctx, c.opts.BatchDelay); err != nil {
				c.cancelFrom(outcomes, symbols, start, err)
				break
			}
		} else if err := ctx.Err(); err != nil {
			c.cancelFrom(outcomes, symbols, start, err)
			break
		}

		end := min(start+size, len(symbols))
		c.runBatch(ctx, symbols, outcomes, start, end)
	}

	return outcomes
}

// runBatch fetches symbols[start:end] concurrently. Each goroutine writes only
// its own slot of outcomes; slots are read after Wait returns.
func (c *Coordinator) runBatch(ctx context.Context, symbols []string, outcomes []fetcher.Outcome, start, end int) {
	p := pool.New().WithMaxGoroutines(end - start)
	for i := start; i < end; i++ {
		p.Go(func() {
			outcomes[i] = c.fetchOne(ctx, symbols[i])
		})
	}
	p.Wait()
}

// abandonGrace is how long a timed-out call may take to return before its slot
// is handed to the next call.
const abandonGrace = 100 * time.Millisecond

type fetchResult struct {
	quote fetcher.Quote
	err   error
}

func (c *Coordinator) fetchOne(ctx context.Context, symbol string) fetcher.Outcome {
	callCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	started := time.Now()
	done := make(chan fetchResult, 1)
	go func() {
		q, err := c.source.Fetch(callCtx, symbol)
		done <- fetchResult{quote: q, err: err}
	}()

	// A source that ignores its context still cannot hold the batch past the deadline
	var res fetchResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = fetchResult{err: callCtx.Err()}
		select {
		case <-done:
		case <-time.After(abandonGrace):
			slog.Warn("quote source ignored its deadline", "symbol", symbol, "source", c.source.Name())
		}
	}
	elapsed := time.Since(started)

	outcome := fetcher.Outcome{Symbol: symbol}
	if res.err != nil {
		outcome.Err = fetcher.AsFetchError(res.err)
		slog.Warn("quote fetch failed",
			"symbol", symbol,
			"source", c.source.Name(),
			"error_type", string(outcome.Err.Type),
			"error", outcome.Err.Detail())
	} else {
		outcome.Quote = res.quote
		outcome.Quote.Symbol = symbol
	}

	if c.recorder != nil {
		kind := "ok"
		if outcome.Err != nil {
			kind = string(outcome.Err.Type)
		}
		c.recorder.ObserveFetch(c.source.Name(), kind, elapsed)
	}

	return outcome
}

func (c *Coordinator) cancelFrom(outcomes []fetcher.Outcome, symbols []string, start int, cause error) {
	slog.Info("round cancelled, skipping remaining symbols", "skipped", len(symbols)-start)
	for i := start; i < len(symbols); i++ {
		outcomes[i] = fetcher.Outcome{
			Symbol: symbols[i],
			Err:    fetcher.NewCanceledError(cause),
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
