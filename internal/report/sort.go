package report

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
)

// SortOrder selects how report rows are ordered.
type SortOrder string

const (
	// SortInput keeps the order symbols were requested in.
	SortInput SortOrder = "input"
	// SortByChange orders successful rows by absolute percent change, largest
	// first, followed by failures in input order.
	SortByChange SortOrder = "change"
	// SortBySymbol orders rows alphabetically by symbol.
	SortBySymbol SortOrder = "symbol"
)

// ParseSortOrder converts a flag or config value to a SortOrder.
// The empty string means SortInput.
func ParseSortOrder(s string) (SortOrder, error) {
	o := SortOrder(strings.ToLower(strings.TrimSpace(s)))
	if o == "" {
		return SortInput, nil
	}
	if err := o.Validate(); err != nil {
		return "", err
	}
	return o, nil
}

// Validate reports whether o is a known sort order. The zero value is valid.
func (o SortOrder) Validate() error {
	switch o {
	case "", SortInput, SortByChange, SortBySymbol:
		return nil
	default:
		return fmt.Errorf("unknown sort order %q", string(o))
	}
}

// sortRows sorts in place; all orders are stable so equal keys keep input order.
func sortRows(rows []Row, order SortOrder) {
	switch order {
	case SortByChange:
		slices.SortStableFunc(rows, func(a, b Row) int {
			if a.Failed() != b.Failed() {
				if a.Failed() {
					return 1
				}
				return -1
			}
			if a.Failed() {
				return 0
			}
			return cmp.Compare(math.Abs(b.ChangePct), math.Abs(a.ChangePct))
		})
	case SortBySymbol:
		slices.SortStableFunc(rows, func(a, b Row) int {
			return strings.Compare(a.Symbol, b.Symbol)
		})
	}
}
