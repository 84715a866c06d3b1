package scanner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"quotescanner/internal/coordinator"
	"quotescanner/internal/output"
	"quotescanner/internal/report"
)

// RoundObserver is notified after every aggregated round.
type RoundObserver interface {
	ObserveRound(elapsed time.Duration, r report.Report)
}

// Options configures what a round reports and how it is rendered.
type Options struct {
	Filter   report.Filter
	Order    report.SortOrder
	Format   output.Format
	Renderer output.Renderer
	// ClearScreen clears the terminal before each rendering (watch mode)
	ClearScreen bool
	Observer    RoundObserver
}

// Scanner runs rounds over a fixed symbol list: fetch, aggregate, render.
type Scanner struct {
	coord   *coordinator.Coordinator
	symbols []string
	out     io.Writer
	opts    Options
}

// New creates a Scanner. It rejects invalid filters and sort orders
// (report.ErrConfigConflict included) before any network activity.
func New(coord *coordinator.Coordinator, symbols []string, out io.Writer, opts Options) (*Scanner, error) {
	if err := opts.Filter.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Order.Validate(); err != nil {
		return nil, err
	}

	return &Scanner{
		coord:   coord,
		symbols: append([]string(nil), symbols...),
		out:     out,
		opts:    opts,
	}, nil
}

// Scan performs one round and returns its report without rendering it.
// A round in which every symbol failed still returns a report and a nil error.
func (s *Scanner) Scan(ctx context.Context) (report.Report, error) {
	if err := s.opts.Filter.Validate(); err != nil {
		return report.Report{}, err
	}

	started := time.Now()
	outcomes := s.coord.FetchAll(ctx, s.symbols)

	rep, err := report.Aggregate(outcomes, s.opts.Filter, s.opts.Order)
	if err != nil {
		return report.Report{}, fmt.Errorf("aggregate round: %w", err)
	}
	elapsed := time.Since(started)

	if s.opts.Observer != nil {
		s.opts.Observer.ObserveRound(elapsed, rep)
	}

	slog.Info("round completed",
		"symbols", len(s.symbols),
		"rows", rep.Summary.Total,
		"failures", rep.Summary.Failures,
		"duration", elapsed.Round(time.Millisecond))

	return rep, nil
}

// RunRound performs one round and renders it to the scanner's writer.
func (s *Scanner) RunRound(ctx context.Context) error {
	rep, err := s.Scan(ctx)
	if err != nil {
		return err
	}

	if s.opts.ClearScreen {
		output.ClearScreen(s.out)
	}

	if err := s.opts.Renderer.Render(s.out, rep, s.opts.Format); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
