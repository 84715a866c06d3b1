package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotescanner/internal/report"
)

// finnhubQuotes maps symbols to {c, pc}; unknown symbols get Finnhub's all-zero payload
var finnhubQuotes = map[string][2]float64{
	"AAPL":  {271.01, 271.86},
	"MSFT":  {472.94, 483.62},
	"GOOGL": {315.15, 313.00},
	"NVDA":  {186.60, 181.36},
}

// newFinnhubServer creates a mock Finnhub server and counts the requests it receives
func newFinnhubServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		if r.URL.Path != "/quote" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("token") != "test_key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		symbol := r.URL.Query().Get("symbol")
		if symbol == "BROKEN" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		q := finnhubQuotes[symbol]
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"c":%g,"h":%g,"l":%g,"o":%g,"pc":%g,"t":1700000000}`, q[0], q[0], q[1], q[1], q[1])
	}))
	t.Cleanup(server.Close)

	return server
}

// isolate keeps a test away from the caller's environment and any config file on disk
func isolate(t *testing.T) {
	t.Helper()
	for _, key := range []string{"FINNHUB_API_KEY", "ALPHAVANTAGE_API_KEY", "SYMBOLS_FILE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

type jsonReport struct {
	Quotes []struct {
		Symbol    string   `json:"symbol"`
		Price     float64  `json:"price"`
		ChangePct *float64 `json:"change_pct"`
		Class     string   `json:"class"`
	} `json:"quotes"`
	Failures []struct {
		Symbol    string `json:"symbol"`
		ErrorType string `json:"error_type"`
	} `json:"failures"`
	Summary struct {
		Total     int `json:"total"`
		Gainers   int `json:"gainers"`
		Losers    int `json:"losers"`
		Failures  int `json:"failures"`
		TopGainer *struct {
			Symbol string `json:"symbol"`
		} `json:"top_gainer"`
		TopLoser *struct {
			Symbol string `json:"symbol"`
		} `json:"top_loser"`
	} `json:"summary"`
}

// TestIntegration_ScanJSON tests the full flow against a mock Finnhub server
func TestIntegration_ScanJSON(t *testing.T) {
	isolate(t)

	var hits atomic.Int32
	server := newFinnhubServer(t, &hits)
	t.Setenv("FINNHUB_API_KEY", "test_key")
	t.Setenv("QUOTESCANNER_FINNHUB_BASE_URL", server.URL)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"scan",
		"-s", "aapl,MSFT,GOOGL",
		"-o", "json",
		"--delay", "0s",
		"--retries", "0",
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	var rep jsonReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rep))

	require.Len(t, rep.Quotes, 3)
	assert.Equal(t, "AAPL", rep.Quotes[0].Symbol)
	assert.Equal(t, "MSFT", rep.Quotes[1].Symbol)
	assert.Equal(t, "GOOGL", rep.Quotes[2].Symbol)
	assert.Empty(t, rep.Failures)

	assert.Equal(t, 3, rep.Summary.Total)
	assert.Equal(t, 1, rep.Summary.Gainers)
	assert.Equal(t, 2, rep.Summary.Losers)
	require.NotNil(t, rep.Summary.TopGainer)
	require.NotNil(t, rep.Summary.TopLoser)
	assert.Equal(t, "GOOGL", rep.Summary.TopGainer.Symbol)
	assert.Equal(t, "MSFT", rep.Summary.TopLoser.Symbol)

	assert.Equal(t, int32(3), hits.Load())
}

// TestIntegration_PartialFailures tests that failing symbols do not affect the others
func TestIntegration_PartialFailures(t *testing.T) {
	isolate(t)

	var hits atomic.Int32
	server := newFinnhubServer(t, &hits)
	t.Setenv("FINNHUB_API_KEY", "test_key")
	t.Setenv("QUOTESCANNER_FINNHUB_BASE_URL", server.URL)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"scan",
		"-s", "AAPL,BADSYM,NVDA,BROKEN",
		"-o", "json",
		"-c", "2",
		"--delay", "0s",
		"--retries", "0",
		"--sort-by-change",
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	var rep jsonReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rep))

	require.Len(t, rep.Quotes, 2)
	assert.Equal(t, "NVDA", rep.Quotes[0].Symbol, "largest move first")
	assert.Equal(t, "AAPL", rep.Quotes[1].Symbol)

	require.Len(t, rep.Failures, 2)
	kinds := map[string]string{}
	for _, f := range rep.Failures {
		kinds[f.Symbol] = f.ErrorType
	}
	assert.Equal(t, "not_found", kinds["BADSYM"])
	assert.Equal(t, "transport", kinds["BROKEN"])
	assert.Equal(t, 2, rep.Summary.Failures)
}

// TestIntegration_ConfigConflict tests that conflicting filters fail before any request
func TestIntegration_ConfigConflict(t *testing.T) {
	isolate(t)

	var hits atomic.Int32
	server := newFinnhubServer(t, &hits)
	t.Setenv("FINNHUB_API_KEY", "test_key")
	t.Setenv("QUOTESCANNER_FINNHUB_BASE_URL", server.URL)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"scan", "-s", "AAPL", "--gainers-only", "--losers-only",
	}, &stdout, &stderr)

	require.ErrorIs(t, err, report.ErrConfigConflict)
	assert.Zero(t, hits.Load())
	assert.Empty(t, stdout.String())
}

// TestIntegration_AlphaVantage tests the alternative provider with CSV output
func TestIntegration_AlphaVantage(t *testing.T) {
	isolate(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		w.Header().Set("Content-Type", "application/json")
		if symbol == "BADSYM" {
			w.Write([]byte(`{"Global Quote": {}}`))
			return
		}
		w.Write([]byte(`{
			"Global Quote": {
				"01. symbol": "` + symbol + `",
				"02. open": "99.00",
				"03. high": "111.00",
				"04. low": "98.00",
				"05. price": "110.00",
				"08. previous close": "100.00"
			}
		}`))
	}))
	defer server.Close()

	t.Setenv("ALPHAVANTAGE_API_KEY", "test_key")
	t.Setenv("QUOTESCANNER_ALPHAVANTAGE_BASE_URL", server.URL)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"scan",
		"--provider", "alphavantage",
		"-s", "IBM,BADSYM",
		"-o", "csv",
		"--delay", "0s",
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "symbol,price,prev_close,change_pct,high,low,open,status,error", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "IBM,110.00,100.00,10.00,"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "BADSYM,"), lines[2])
	assert.Contains(t, lines[2], "not_found")
}

// TestIntegration_SymbolsFile tests reading symbols from a file with comments
func TestIntegration_SymbolsFile(t *testing.T) {
	isolate(t)

	var hits atomic.Int32
	server := newFinnhubServer(t, &hits)
	t.Setenv("FINNHUB_API_KEY", "test_key")
	t.Setenv("QUOTESCANNER_FINNHUB_BASE_URL", server.URL)

	path := filepath.Join(t.TempDir(), "symbols.txt")
	require.NoError(t, os.WriteFile(path, []byte("# tech\naapl\n\nmsft\n"), 0o644))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"scan", "-f", path, "-o", "compact", "--no-color", "--delay", "0s",
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "MSFT")
	assert.Equal(t, int32(2), hits.Load())
}

// TestIntegration_WatchStopsOnCancel tests that watch finishes its round and exits on cancellation
func TestIntegration_WatchStopsOnCancel(t *testing.T) {
	isolate(t)

	var hits atomic.Int32
	server := newFinnhubServer(t, &hits)
	t.Setenv("FINNHUB_API_KEY", "test_key")
	t.Setenv("QUOTESCANNER_FINNHUB_BASE_URL", server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{
			"watch", "-s", "AAPL,MSFT", "-o", "compact", "--interval", "1h", "--delay", "0s",
		}, &stdout, &stderr)
	}()

	require.Eventually(t, func() bool { return hits.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}

	assert.Equal(t, int32(2), hits.Load(), "no second round after cancellation")
}

// TestIntegration_ConfigInitAndShow tests writing a default config and printing it masked
func TestIntegration_ConfigInitAndShow(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "config.toml")

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"config", "--init", path}, &stdout, &stderr))
	require.FileExists(t, path)

	// A second init must not overwrite the file
	require.Error(t, run(context.Background(), []string{"config", "--init", path}, &stdout, &stderr))

	stdout.Reset()
	require.NoError(t, run(context.Background(), []string{"--config", path, "config", "--show"}, &stdout, &stderr))

	out := stdout.String()
	assert.Contains(t, out, "provider:              finnhub")
	assert.Contains(t, out, "concurrent_requests:   5")
	assert.Contains(t, out, "YOUR**")
	assert.NotContains(t, out, "YOUR_API_KEY_HERE")
}

// TestIntegration_UsageErrors tests command line mistakes
func TestIntegration_UsageErrors(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"fetch"}},
		{"unknown flag", []string{"scan", "--bogus"}},
		{"conflicting sorts", []string{"scan", "-s", "AAPL", "--sort-by-change", "--sort-by-symbol"}},
		{"config without action", []string{"config"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, &stdout, &stderr)
			require.ErrorIs(t, err, errUsage)
		})
	}
}

// TestIntegration_WatchOutputFormat tests that watch renders a table unless -o is given
func TestIntegration_WatchOutputFormat(t *testing.T) {
	tests := []struct {
		name      string
		extraArgs []string
		wantTable bool
	}{
		{"configured default ignored", nil, true},
		{"explicit flag honoured", []string{"-o", "json"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)

			var hits atomic.Int32
			server := newFinnhubServer(t, &hits)
			t.Setenv("FINNHUB_API_KEY", "test_key")
			t.Setenv("QUOTESCANNER_FINNHUB_BASE_URL", server.URL)
			t.Setenv("QUOTESCANNER_DEFAULT_OUTPUT", "json")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			args := append([]string{"watch", "-s", "AAPL", "--interval", "1h", "--no-color"}, tt.extraArgs...)

			var stdout, stderr bytes.Buffer
			done := make(chan error, 1)
			go func() { done <- run(ctx, args, &stdout, &stderr) }()

			require.Eventually(t, func() bool { return hits.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
			cancel()
			require.NoError(t, <-done)

			out := stdout.String()
			if tt.wantTable {
				assert.Contains(t, out, "SYMBOL")
				assert.NotContains(t, out, `"quotes"`)
			} else {
				assert.Contains(t, out, `"quotes"`)
				assert.NotContains(t, out, "SYMBOL")
			}
		})
	}
}
