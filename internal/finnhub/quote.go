package finnhub

import (
	"context"
	"fmt"

	"resty.dev/v3"

	"quotescanner/internal/fetcher"
	"quotescanner/internal/ratelimit"
)

// DefaultBaseURL is the production Finnhub REST endpoint
const DefaultBaseURL = "https://finnhub.io/api/v1"

// QuoteResponse represents the Finnhub API response for /quote
type QuoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	PercentChange float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// QuoteSource fetches real-time quotes from Finnhub
type QuoteSource struct {
	apiKey  string
	client  *resty.Client
	limiter *ratelimit.Limiter
}

// NewQuoteSource creates a new Finnhub quote source. limiter may be nil.
func NewQuoteSource(apiKey, baseURL string, limiter *ratelimit.Limiter, opts ...fetcher.ClientOption) *QuoteSource {
	return &QuoteSource{
		apiKey:  apiKey,
		client:  fetcher.NewHTTPClient(baseURL, opts...),
		limiter: limiter,
	}
}

// Name implements fetcher.Source
func (s *QuoteSource) Name() string {
	return string(ratelimit.APIFinnhub)
}

// Fetch retrieves the current quote for symbol
func (s *QuoteSource) Fetch(ctx context.Context, symbol string) (fetcher.Quote, error) {
	if err := s.limiter.Wait(ctx, ratelimit.APIFinnhub); err != nil {
		return fetcher.Quote{}, fetcher.ClassifyLimiterError(ctx, err)
	}

	var result QuoteResponse

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"token":  s.apiKey,
		}).
		SetResult(&result).
		Get("/quote")

	if err != nil {
		return fetcher.Quote{}, fetcher.AsFetchError(fmt.Errorf("fetch finnhub quote for %s: %w", symbol, err))
	}

	if !resp.IsSuccess() {
		return fetcher.Quote{}, fetcher.ClassifyHTTPError(resp.StatusCode(), symbol)
	}

	// Finnhub answers unknown symbols with an all-zero quote
	if result.Current == 0 && result.PreviousClose == 0 {
		return fetcher.Quote{}, fetcher.NewNotFoundError(0, symbol)
	}

	if result.Current < 0 || result.PreviousClose < 0 {
		return fetcher.Quote{}, fetcher.NewDecodeError(
			fmt.Sprintf("negative price in response for %s", symbol), nil)
	}

	return fetcher.Quote{
		Symbol:        symbol,
		Price:         result.Current,
		PreviousClose: result.PreviousClose,
		High:          result.High,
		Low:           result.Low,
		Open:          result.Open,
	}, nil
}
