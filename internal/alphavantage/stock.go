package alphavantage

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"resty.dev/v3"

	"quotescanner/internal/fetcher"
	"quotescanner/internal/ratelimit"
)

// DefaultBaseURL is the production AlphaVantage endpoint
const DefaultBaseURL = "https://www.alphavantage.co/query"

// GlobalQuoteResponse represents the AlphaVantage API response for stock quotes
type GlobalQuoteResponse struct {
	GlobalQuote struct {
		Symbol           string `json:"01. symbol"`
		Open             string `json:"02. open"`
		High             string `json:"03. high"`
		Low              string `json:"04. low"`
		Price            string `json:"05. price"`
		Volume           string `json:"06. volume"`
		LatestTradingDay string `json:"07. latest trading day"`
		PreviousClose    string `json:"08. previous close"`
		Change           string `json:"09. change"`
		ChangePercent    string `json:"10. change percent"`
	} `json:"Global Quote"`

	// Throttled requests get a 200 with one of these set instead of a quote
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

// QuoteSource fetches stock quotes from AlphaVantage
type QuoteSource struct {
	apiKey  string
	client  *resty.Client
	limiter *ratelimit.Limiter
}

// NewQuoteSource creates a new AlphaVantage quote source. limiter may be nil.
func NewQuoteSource(apiKey, baseURL string, limiter *ratelimit.Limiter, opts ...fetcher.ClientOption) *QuoteSource {
	return &QuoteSource{
		apiKey:  apiKey,
		client:  fetcher.NewHTTPClient(baseURL, opts...),
		limiter: limiter,
	}
}

// Name implements fetcher.Source
func (s *QuoteSource) Name() string {
	return string(ratelimit.APIAlphaVantage)
}

// Fetch retrieves the current quote for symbol
func (s *QuoteSource) Fetch(ctx context.Context, symbol string) (fetcher.Quote, error) {
	if err := s.limiter.Wait(ctx, ratelimit.APIAlphaVantage); err != nil {
		return fetcher.Quote{}, fetcher.ClassifyLimiterError(ctx, err)
	}

	var result GlobalQuoteResponse

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apikey":   s.apiKey,
			"function": "GLOBAL_QUOTE",
			"symbol":   symbol,
		}).
		SetResult(&result).
		Get("")

	if err != nil {
		return fetcher.Quote{}, fetcher.AsFetchError(fmt.Errorf("fetch stock quote for %s: %w", symbol, err))
	}

	if !resp.IsSuccess() {
		return fetcher.Quote{}, fetcher.ClassifyHTTPError(resp.StatusCode(), symbol)
	}

	if msg := result.Note + result.Information; msg != "" {
		return fetcher.Quote{}, fetcher.NewRateLimitError(0, msg)
	}

	gq := result.GlobalQuote
	if gq.Price == "" {
		return fetcher.Quote{}, fetcher.NewNotFoundError(0, symbol)
	}

	q := fetcher.Quote{Symbol: symbol}
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"price", gq.Price, &q.Price},
		{"previous close", gq.PreviousClose, &q.PreviousClose},
		{"high", gq.High, &q.High},
		{"low", gq.Low, &q.Low},
		{"open", gq.Open, &q.Open},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return fetcher.Quote{}, fetcher.NewDecodeError(
				fmt.Sprintf("failed to parse %s for %s", f.name, symbol), err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fetcher.Quote{}, fetcher.NewDecodeError(
				fmt.Sprintf("non-finite %s for %s", f.name, symbol), nil)
		}
		*f.dst = v
	}

	return q, nil
}
