package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"quotescanner/internal/fetcher"
)

// MockSource is a mock implementation of the fetcher.Source interface for testing
type MockSource struct {
	FetchFunc func(ctx context.Context, symbol string) (fetcher.Quote, error)
	NameFunc  func() string

	mu       sync.Mutex
	calls    []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

// Fetch implements the fetcher.Source interface
func (m *MockSource) Fetch(ctx context.Context, symbol string) (fetcher.Quote, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, symbol)
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, symbol)
	}
	return fetcher.Quote{Symbol: symbol}, nil
}

// Name implements the fetcher.Source interface
func (m *MockSource) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "mock"
}

// Calls returns the symbols passed to Fetch, in call order.
func (m *MockSource) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MaxInFlight returns the highest number of concurrent Fetch calls observed.
func (m *MockSource) MaxInFlight() int {
	return int(m.maxSeen.Load())
}

// NewQuoteSource creates a mock source serving fixed quotes keyed by symbol.
// A symbol with no entry fails with a not-found error.
func NewQuoteSource(quotes map[string]fetcher.Quote) *MockSource {
	return &MockSource{
		FetchFunc: func(ctx context.Context, symbol string) (fetcher.Quote, error) {
			q, ok := quotes[symbol]
			if !ok {
				return fetcher.Quote{}, fetcher.NewNotFoundError(0, symbol)
			}
			q.Symbol = symbol
			return q, nil
		},
	}
}

// NewFailingSource creates a mock source that always returns err.
func NewFailingSource(err error) *MockSource {
	if err == nil {
		err = errors.New("mock failure")
	}
	return &MockSource{
		FetchFunc: func(ctx context.Context, symbol string) (fetcher.Quote, error) {
			return fetcher.Quote{}, err
		},
	}
}

// Quote is shorthand for a quote with only price and previous close set.
func Quote(price, previousClose float64) fetcher.Quote {
	return fetcher.Quote{Price: price, PreviousClose: previousClose}
}
