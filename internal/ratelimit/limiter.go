package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// API represents the different quote providers we interact with
type API string

const (
	// APIFinnhub represents the Finnhub API
	APIFinnhub API = "finnhub"
	// APIAlphaVantage represents the AlphaVantage API
	APIAlphaVantage API = "alphavantage"
)

// Limiter manages client-side request rate limits per API.
// It complements the coordinator's batch pacing: batch pacing spaces out
// groups of calls, the limiter caps the sustained request rate a provider sees,
// retries included. A nil *Limiter allows everything.
type Limiter struct {
	limiters map[API]*rate.Limiter
	mu       sync.RWMutex
}

// New returns a Limiter with no limits configured.
func New() *Limiter {
	return &Limiter{
		limiters: make(map[API]*rate.Limiter),
	}
}

// SetPerMinute limits api to perMinute requests per minute with the given burst.
// A perMinute of zero or less removes the limit.
func (l *Limiter) SetPerMinute(api API, perMinute, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if perMinute <= 0 {
		delete(l.limiters, api)
		return
	}
	if burst < 1 {
		burst = 1
	}
	l.limiters[api] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}

// Wait blocks until the rate limiter permits an event for the given API
// It returns an error if the context is canceled before the event can proceed
func (l *Limiter) Wait(ctx context.Context, api API) error {
	limiter := l.get(api)
	if limiter == nil {
		// If no limiter exists for this API, allow the request without limiting
		return nil
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event for the given API may happen now
func (l *Limiter) Allow(api API) bool {
	limiter := l.get(api)
	if limiter == nil {
		return true
	}

	return limiter.Allow()
}

func (l *Limiter) get(api API) *rate.Limiter {
	if l == nil {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiters[api]
}
