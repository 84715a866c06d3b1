package fetcher

// Outcome is the result of fetching one symbol in one round.
// Exactly one of Quote (when Err is nil) or Err is meaningful.
type Outcome struct {
	// Symbol is the requested symbol, as given to the coordinator
	Symbol string

	// Quote is valid only when Err is nil
	Quote Quote

	// Err is the classified failure for this symbol, if any
	Err *FetchError
}

// OK reports whether the fetch succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}
