package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		wantType  ErrorType
		retryable bool
	}{
		{http.StatusNotFound, ErrorTypeNotFound, false},
		{http.StatusTooManyRequests, ErrorTypeRateLimit, true},
		{http.StatusRequestTimeout, ErrorTypeTimeout, true},
		{http.StatusInternalServerError, ErrorTypeTransport, true},
		{http.StatusBadGateway, ErrorTypeTransport, true},
		{http.StatusUnauthorized, ErrorTypeTransport, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := ClassifyHTTPError(tt.status, "AAPL")
			require.Equal(t, tt.wantType, err.Type)
			require.Equal(t, tt.retryable, err.Retryable)
			require.Equal(t, tt.status, err.StatusCode)
		})
	}
}

func TestFetchError_Error(t *testing.T) {
	require.Equal(t, "not_found error (status 404): no data for AAPL",
		NewNotFoundError(404, "AAPL").Error())
	require.Equal(t, "decode error: bad payload",
		NewDecodeError("bad payload", nil).Error())
}

func TestAsFetchError(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{}
	rateErr := NewRateLimitError(429, "")

	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"deadline", fmt.Errorf("get quote: %w", context.DeadlineExceeded), ErrorTypeTimeout},
		{"canceled", context.Canceled, ErrorTypeCanceled},
		{"json", fmt.Errorf("decode: %w", syntaxErr), ErrorTypeDecode},
		{"wrapped fetch error", fmt.Errorf("source: %w", rateErr), ErrorTypeRateLimit},
		{"other", errors.New("connection refused"), ErrorTypeTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AsFetchError(tt.err)
			require.NotNil(t, got)
			require.Equal(t, tt.want, got.Type)
		})
	}

	require.Nil(t, AsFetchError(nil))
	require.Same(t, rateErr, AsFetchError(rateErr))
}

func TestAsFetchError_KeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	got := AsFetchError(cause)
	require.ErrorIs(t, got, cause)
}

func TestFetchError_Detail(t *testing.T) {
	tests := []struct {
		name string
		err  *FetchError
		want string
	}{
		{"no cause", NewNotFoundError(0, "AAPL"), "no data for AAPL"},
		{"transport cause", NewTransportError(errors.New("dial tcp 127.0.0.1:1: connect: connection refused")),
			"network request failed: dial tcp 127.0.0.1:1: connect: connection refused"},
		{"timeout cause", NewTimeoutError(context.DeadlineExceeded), "request timed out: context deadline exceeded"},
		{"cause repeats message", AsFetchError(fmt.Errorf("decode: %w", &json.SyntaxError{})), "decode: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.err.Detail())
		})
	}
}

func TestClassifyLimiterError(t *testing.T) {
	refusal := errors.New("rate: Wait(n=1) would exceed context deadline")

	got := ClassifyLimiterError(context.Background(), refusal)
	require.Equal(t, ErrorTypeRateLimit, got.Type)
	require.ErrorIs(t, got, refusal)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got = ClassifyLimiterError(ctx, refusal)
	require.Equal(t, ErrorTypeCanceled, got.Type)
}
