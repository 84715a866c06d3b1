package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quotescanner/internal/report"
)

// Recorder collects scanner metrics with Prometheus.
// It implements coordinator.Recorder.
type Recorder struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec
	rounds        prometheus.Counter
	roundDuration prometheus.Histogram
	roundRows     *prometheus.GaugeVec
	lastChange    *prometheus.GaugeVec
}

// New creates a Recorder registered on its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotescanner_fetches_total",
				Help: "Quote fetches by source and outcome (ok or error type)",
			},
			[]string{"source", "outcome"},
		),
		fetchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quotescanner_fetch_duration_seconds",
				Help:    "Duration of single quote fetches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quotescanner_rounds_total",
			Help: "Completed fetch rounds",
		}),
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quotescanner_round_duration_seconds",
			Help:    "Duration of complete rounds in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		roundRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quotescanner_last_round_rows",
				Help: "Rows of the last report by class (gainer, loser, unchanged, failure)",
			},
			[]string{"class"},
		),
		lastChange: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quotescanner_last_change_percent",
				Help: "Last reported percent change per symbol",
			},
			[]string{"symbol"},
		),
	}

	r.registry.MustRegister(r.fetches, r.fetchLatency, r.rounds, r.roundDuration, r.roundRows, r.lastChange)
	return r
}

// ObserveFetch records one source call.
func (r *Recorder) ObserveFetch(source, outcome string, elapsed time.Duration) {
	r.fetches.WithLabelValues(source, outcome).Inc()
	r.fetchLatency.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveRound records a finished round and its report.
func (r *Recorder) ObserveRound(elapsed time.Duration, rep report.Report) {
	r.rounds.Inc()
	r.roundDuration.Observe(elapsed.Seconds())

	s := rep.Summary
	r.roundRows.WithLabelValues(string(report.Gainer)).Set(float64(s.Gainers))
	r.roundRows.WithLabelValues(string(report.Loser)).Set(float64(s.Losers))
	r.roundRows.WithLabelValues(string(report.Unchanged)).Set(float64(s.Unchanged))
	r.roundRows.WithLabelValues("failure").Set(float64(s.Failures))

	for _, row := range rep.Rows {
		if !row.Failed() && row.ChangeDefined {
			r.lastChange.WithLabelValues(row.Symbol).Set(row.ChangePct)
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
