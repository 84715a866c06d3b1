// Package report turns the outcomes of one fetch round into a Report:
// derived metrics, filtering, sorting and the round summary.
//
// Everything here is pure. Aggregate performs no I/O and keeps no state, so
// the same outcomes, filter and sort order always give the same Report.
package report

import (
	"errors"
	"fmt"
	"math"

	"quotescanner/internal/fetcher"
)

// ErrConfigConflict is returned when mutually exclusive filters are combined.
var ErrConfigConflict = errors.New("gainers-only and losers-only cannot be used together")

// Classification of a successful row by its percent change.
type Classification string

const (
	Gainer    Classification = "gainer"
	Loser     Classification = "loser"
	Unchanged Classification = "unchanged"
)

// Row is one line of a report: a quote with its metrics, or a failure.
type Row struct {
	// Index is the position of the symbol in the round's input.
	Index  int
	Symbol string

	Quote fetcher.Quote
	// ChangePct is the percent change against the previous close. It is only
	// meaningful when ChangeDefined is true; a zero previous close leaves it
	// undefined and the row is classified Unchanged.
	ChangePct     float64
	ChangeDefined bool
	Class         Classification

	Err *fetcher.FetchError
}

// Failed reports whether the row is a failure marker.
func (r Row) Failed() bool {
	return r.Err != nil
}

// Mover names a symbol with its percent change.
type Mover struct {
	Symbol    string
	ChangePct float64
}

// Summary holds round-level figures. Counts and the average cover the
// successful rows that survived filtering; failures are counted apart.
type Summary struct {
	Total     int
	Successes int
	Gainers   int
	Losers    int
	Unchanged int
	Failures  int

	FailuresByType map[fetcher.ErrorType]int

	// AvgChange is the mean of the defined percent changes, 0 when there are none.
	AvgChange float64
	TopGainer *Mover
	TopLoser  *Mover
}

// Report is the aggregated result of one round.
type Report struct {
	Rows    []Row
	Summary Summary
}

// Filter restricts which successful rows appear in a report.
// Failures are never filtered out.
type Filter struct {
	// MinChange drops rows whose absolute percent change is below it. Zero disables it.
	MinChange   float64
	GainersOnly bool
	LosersOnly  bool
}

// Validate reports configuration errors. It must pass before any fetch starts.
func (f Filter) Validate() error {
	if f.GainersOnly && f.LosersOnly {
		return ErrConfigConflict
	}
	if f.MinChange < 0 || math.IsNaN(f.MinChange) {
		return fmt.Errorf("min change must be a non-negative number, got %v", f.MinChange)
	}
	return nil
}

// Keep reports whether a successful row passes the filter.
// The minimum change threshold applies first, then gainers-only or losers-only.
func (f Filter) Keep(r Row) bool {
	if f.MinChange > 0 {
		if !r.ChangeDefined || math.Abs(r.ChangePct) < f.MinChange {
			return false
		}
	}
	if f.GainersOnly && r.Class != Gainer {
		return false
	}
	if f.LosersOnly && r.Class != Loser {
		return false
	}
	return true
}

// ChangePercent returns the percent change of q against its previous close.
// ok is false when the previous close is zero.
func ChangePercent(q fetcher.Quote) (pct float64, ok bool) {
	if q.PreviousClose == 0 {
		return 0, false
	}
	return (q.Price - q.PreviousClose) / q.PreviousClose * 100, true
}

// NewRow builds the row for a successful quote at input position index.
func NewRow(index int, symbol string, q fetcher.Quote) Row {
	pct, ok := ChangePercent(q)

	class := Unchanged
	switch {
	case pct > 0:
		class = Gainer
	case pct < 0:
		class = Loser
	}

	return Row{
		Index:         index,
		Symbol:        symbol,
		Quote:         q,
		ChangePct:     pct,
		ChangeDefined: ok,
		Class:         class,
	}
}

// Aggregate builds the report for one round.
func Aggregate(outcomes []fetcher.Outcome, filter Filter, order SortOrder) (Report, error) {
	if err := filter.Validate(); err != nil {
		return Report{}, err
	}
	if err := order.Validate(); err != nil {
		return Report{}, err
	}

	rows := make([]Row, 0, len(outcomes))
	for i, o := range outcomes {
		if !o.OK() {
			rows = append(rows, Row{Index: i, Symbol: o.Symbol, Err: o.Err})
			continue
		}

		row := NewRow(i, o.Symbol, o.Quote)
		if filter.Keep(row) {
			rows = append(rows, row)
		}
	}

	// rows are still in input order here, which the tie-breaks rely on
	summary := summarize(rows)
	sortRows(rows, order)

	return Report{Rows: rows, Summary: summary}, nil
}

func summarize(rows []Row) Summary {
	s := Summary{
		Total:          len(rows),
		FailuresByType: make(map[fetcher.ErrorType]int),
	}

	var (
		sum     float64
		defined int
	)
	for _, r := range rows {
		if r.Failed() {
			s.Failures++
			s.FailuresByType[r.Err.Type]++
			continue
		}

		s.Successes++
		switch r.Class {
		case Gainer:
			s.Gainers++
			if s.TopGainer == nil || r.ChangePct > s.TopGainer.ChangePct {
				s.TopGainer = &Mover{Symbol: r.Symbol, ChangePct: r.ChangePct}
			}
		case Loser:
			s.Losers++
			if s.TopLoser == nil || r.ChangePct < s.TopLoser.ChangePct {
				s.TopLoser = &Mover{Symbol: r.Symbol, ChangePct: r.ChangePct}
			}
		default:
			s.Unchanged++
		}

		if r.ChangeDefined {
			sum += r.ChangePct
			defined++
		}
	}

	if defined > 0 {
		s.AvgChange = sum / float64(defined)
	}
	return s
}
