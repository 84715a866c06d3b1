package fetcher

import "context"

// Quote is a single real-time quote as returned by a Source.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previous_close"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Open          float64 `json:"open"`
}

//go:generate mockgen -package=mocks -destination=mocks/source.go -source=fetcher.go Source

// Source is the interface every quote provider must implement.
// Implementations must be safe for concurrent use: the coordinator calls
// Fetch from several goroutines at once with the same Source value.
type Source interface {
	// Fetch retrieves the current quote for symbol. The per-call timeout is
	// carried by the context deadline, and Fetch must return once ctx is done:
	// the coordinator stops waiting at the deadline, so a call that outlives
	// it keeps running beyond the concurrency limit. Errors should be *FetchError where the
	// provider can classify them; anything else is classified by AsFetchError.
	Fetch(ctx context.Context, symbol string) (Quote, error)

	// Name identifies the provider, e.g. "finnhub" or "alphavantage".
	Name() string
}
