package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"quotescanner/internal/fetcher"
	"quotescanner/internal/report"
)

// Format selects how a report is rendered
type Format string

const (
	FormatTable   Format = "table"
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatCompact Format = "compact"
)

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
	ruleWidth = 75
)

// ParseFormat converts a flag or config value into a Format
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatCSV, FormatCompact:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json, csv or compact)", s)
	}
}

// Renderer writes reports. The zero value renders without colors.
type Renderer struct {
	// Color enables ANSI colors in table and compact output
	Color bool
}

// Render writes r to w in the given format
func (rd Renderer) Render(w io.Writer, r report.Report, format Format) error {
	switch format {
	case FormatTable, "":
		return rd.table(w, r)
	case FormatJSON:
		return writeJSON(w, r)
	case FormatCSV:
		return writeCSV(w, r)
	case FormatCompact:
		return rd.compact(w, r)
	default:
		return fmt.Errorf("unknown output format %q", string(format))
	}
}

// ClearScreen moves the cursor home and clears the terminal
func ClearScreen(w io.Writer) {
	fmt.Fprint(w, "\x1b[2J\x1b[1;1H")
}

func (rd Renderer) table(w io.Writer, r report.Report) error {
	rule := strings.Repeat("=", ruleWidth)

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", rule)
	fmt.Fprintf(&b, "%-8s %12s %12s %9s %17s\n", "SYMBOL", "PRICE", "PREV CLOSE", "CHANGE", "DAY RANGE")
	fmt.Fprintf(&b, "%s\n", rule)

	for _, row := range r.Rows {
		if row.Failed() {
			fmt.Fprintf(&b, "%-8s %s\n", row.Symbol, rd.paint(ansiRed, "ERROR "+describe(row.Err)))
			continue
		}
		fmt.Fprintf(&b, "%-8s %12.2f %12.2f %s %17s\n",
			row.Symbol,
			row.Quote.Price,
			row.Quote.PreviousClose,
			rd.change(row),
			dayRange(row.Quote))
	}

	fmt.Fprintf(&b, "%s\n", rule)
	rd.summary(&b, r.Summary)

	_, err := io.WriteString(w, b.String())
	return err
}

func (rd Renderer) summary(b *strings.Builder, s report.Summary) {
	if s.Total == 0 {
		return
	}

	fmt.Fprintf(b, "\nSummary:\n")
	fmt.Fprintf(b, "   Total symbols: %d\n", s.Total)
	fmt.Fprintf(b, "   Gainers: %s | Losers: %s | Unchanged: %d\n",
		rd.paint(ansiGreen, strconv.Itoa(s.Gainers)),
		rd.paint(ansiRed, strconv.Itoa(s.Losers)),
		s.Unchanged)
	if s.Successes > 0 {
		fmt.Fprintf(b, "   Average change: %s\n", rd.percent(s.AvgChange))
	}
	if s.TopGainer != nil {
		fmt.Fprintf(b, "   Top gainer: %s (%s)\n", s.TopGainer.Symbol, rd.percent(s.TopGainer.ChangePct))
	}
	if s.TopLoser != nil {
		fmt.Fprintf(b, "   Top loser: %s (%s)\n", s.TopLoser.Symbol, rd.percent(s.TopLoser.ChangePct))
	}
	if s.Failures > 0 {
		fmt.Fprintf(b, "   Failures: %s", rd.paint(ansiRed, strconv.Itoa(s.Failures)))
		if kinds := failureKinds(s.FailuresByType); kinds != "" {
			fmt.Fprintf(b, " (%s)", kinds)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func (rd Renderer) compact(w io.Writer, r report.Report) error {
	var b strings.Builder
	for _, row := range r.Rows {
		if row.Failed() {
			fmt.Fprintf(&b, "%-6s %s\n", row.Symbol, rd.paint(ansiRed, "ERROR "+describe(row.Err)))
			continue
		}

		arrow := "→"
		switch row.Class {
		case report.Gainer:
			arrow = "↑"
		case report.Loser:
			arrow = "↓"
		}
		fmt.Fprintf(&b, "%-6s $%8.2f %s %s\n", row.Symbol, row.Quote.Price, arrow, rd.change(row))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// change formats the row's percent change, or N/A when it is undefined
func (rd Renderer) change(row report.Row) string {
	if !row.ChangeDefined {
		return fmt.Sprintf("%9s", "N/A")
	}
	return rd.percent(row.ChangePct)
}

func (rd Renderer) percent(pct float64) string {
	switch {
	case pct > 0:
		return rd.paint(ansiGreen, fmt.Sprintf("%+8.2f%%", pct))
	case pct < 0:
		return rd.paint(ansiRed, fmt.Sprintf("%8.2f%%", pct))
	default:
		return fmt.Sprintf("%8.2f%%", pct)
	}
}

func (rd Renderer) paint(color, s string) string {
	if !rd.Color {
		return s
	}
	return color + s + ansiReset
}

func dayRange(q fetcher.Quote) string {
	if q.High > 0 && q.Low > 0 {
		return fmt.Sprintf("%.2f-%.2f", q.Low, q.High)
	}
	return "N/A"
}

func describe(err *fetcher.FetchError) string {
	return fmt.Sprintf("%s: %s", err.Type, err.Detail())
}

// failureKinds lists counts per error type in a fixed order
func failureKinds(byType map[fetcher.ErrorType]int) string {
	var parts []string
	for _, t := range errorTypes {
		if n := byType[t]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", t, n))
		}
	}
	return strings.Join(parts, ", ")
}

var errorTypes = []fetcher.ErrorType{
	fetcher.ErrorTypeTimeout,
	fetcher.ErrorTypeNotFound,
	fetcher.ErrorTypeRateLimit,
	fetcher.ErrorTypeTransport,
	fetcher.ErrorTypeDecode,
	fetcher.ErrorTypeCanceled,
}

type jsonQuote struct {
	Symbol    string   `json:"symbol"`
	Price     float64  `json:"price"`
	PrevClose float64  `json:"prev_close"`
	ChangePct *float64 `json:"change_pct"`
	High      float64  `json:"high"`
	Low       float64  `json:"low"`
	Open      float64  `json:"open"`
	Class     string   `json:"class"`
}

type jsonFailure struct {
	Symbol     string `json:"symbol"`
	ErrorType  string `json:"error_type"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
}

type jsonMover struct {
	Symbol    string  `json:"symbol"`
	ChangePct float64 `json:"change_pct"`
}

type jsonSummary struct {
	Total          int            `json:"total"`
	Gainers        int            `json:"gainers"`
	Losers         int            `json:"losers"`
	Unchanged      int            `json:"unchanged"`
	Failures       int            `json:"failures"`
	FailuresByType map[string]int `json:"failures_by_type,omitempty"`
	AvgChange      float64        `json:"avg_change"`
	TopGainer      *jsonMover     `json:"top_gainer"`
	TopLoser       *jsonMover     `json:"top_loser"`
}

type jsonOutput struct {
	Quotes   []jsonQuote   `json:"quotes"`
	Failures []jsonFailure `json:"failures"`
	Summary  jsonSummary   `json:"summary"`
}

func writeJSON(w io.Writer, r report.Report) error {
	out := jsonOutput{
		Quotes:   []jsonQuote{},
		Failures: []jsonFailure{},
		Summary: jsonSummary{
			Total:     r.Summary.Total,
			Gainers:   r.Summary.Gainers,
			Losers:    r.Summary.Losers,
			Unchanged: r.Summary.Unchanged,
			Failures:  r.Summary.Failures,
			AvgChange: r.Summary.AvgChange,
			TopGainer: mover(r.Summary.TopGainer),
			TopLoser:  mover(r.Summary.TopLoser),
		},
	}

	if len(r.Summary.FailuresByType) > 0 {
		out.Summary.FailuresByType = make(map[string]int, len(r.Summary.FailuresByType))
		for t, n := range r.Summary.FailuresByType {
			out.Summary.FailuresByType[string(t)] = n
		}
	}

	for _, row := range r.Rows {
		if row.Failed() {
			out.Failures = append(out.Failures, jsonFailure{
				Symbol:     row.Symbol,
				ErrorType:  string(row.Err.Type),
				StatusCode: row.Err.StatusCode,
				Message:    row.Err.Detail(),
			})
			continue
		}

		q := jsonQuote{
			Symbol:    row.Symbol,
			Price:     row.Quote.Price,
			PrevClose: row.Quote.PreviousClose,
			High:      row.Quote.High,
			Low:       row.Quote.Low,
			Open:      row.Quote.Open,
			Class:     string(row.Class),
		}
		if row.ChangeDefined {
			pct := row.ChangePct
			q.ChangePct = &pct
		}
		out.Quotes = append(out.Quotes, q)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func mover(m *report.Mover) *jsonMover {
	if m == nil {
		return nil
	}
	return &jsonMover{Symbol: m.Symbol, ChangePct: m.ChangePct}
}

func writeCSV(w io.Writer, r report.Report) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"symbol", "price", "prev_close", "change_pct", "high", "low", "open", "status", "error"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range r.Rows {
		var rec []string
		if row.Failed() {
			rec = []string{row.Symbol, "", "", "", "", "", "", string(row.Err.Type), row.Err.Detail()}
		} else {
			pct := ""
			if row.ChangeDefined {
				pct = money(row.ChangePct)
			}
			rec = []string{
				row.Symbol,
				money(row.Quote.Price),
				money(row.Quote.PreviousClose),
				pct,
				money(row.Quote.High),
				money(row.Quote.Low),
				money(row.Quote.Open),
				"ok",
				"",
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row for %s: %w", row.Symbol, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
