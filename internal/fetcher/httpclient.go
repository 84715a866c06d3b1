package fetcher

import (
	"log/slog"
	"net/http"
	"time"

	"resty.dev/v3"
)

const (
	// Default retry configuration
	defaultRetryCount       = 2
	defaultRetryWaitTime    = 500 * time.Millisecond
	defaultRetryMaxWaitTime = 5 * time.Second

	userAgent = "quotescanner/1.0"
)

type clientOptions struct {
	retryCount       int
	retryWaitTime    time.Duration
	retryMaxWaitTime time.Duration
}

// ClientOption customizes the client built by NewHTTPClient.
type ClientOption func(*clientOptions)

// WithRetryCount sets how many times a failed request is retried. Zero disables retries.
func WithRetryCount(n int) ClientOption {
	return func(o *clientOptions) {
		if n >= 0 {
			o.retryCount = n
		}
	}
}

// WithRetryWait sets the initial and maximum backoff between retries.
func WithRetryWait(wait, maxWait time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.retryWaitTime = wait
		o.retryMaxWaitTime = maxWait
	}
}

// NewHTTPClient creates a new HTTP client with retry logic and exponential backoff.
// The client is safe for concurrent use and is shared by all calls of a source.
func NewHTTPClient(baseURL string, opts ...ClientOption) *resty.Client {
	o := clientOptions{
		retryCount:       defaultRetryCount,
		retryWaitTime:    defaultRetryWaitTime,
		retryMaxWaitTime: defaultRetryMaxWaitTime,
	}
	for _, opt := range opts {
		opt(&o)
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		SetRetryCount(o.retryCount).
		SetRetryWaitTime(o.retryWaitTime).
		SetRetryMaxWaitTime(o.retryMaxWaitTime).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook)

	return client
}

// retryCondition determines whether a request should be retried based on the response and error
func retryCondition(r *resty.Response, err error) bool {
	// Retry on network errors
	if err != nil {
		return true
	}

	switch code := r.StatusCode(); {
	case code >= 500:
		return true
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	default:
		// 404 and other client errors will not get better
		return false
	}
}

// retryHook logs retry attempts for observability
func retryHook(r *resty.Response, err error) {
	if err != nil {
		slog.Debug("retrying request due to error",
			"url", r.Request.URL,
			"attempt", r.Request.Attempt,
			"error", err.Error())
		return
	}

	slog.Debug("retrying request due to status code",
		"url", r.Request.URL,
		"attempt", r.Request.Attempt,
		"status_code", r.StatusCode())
}
