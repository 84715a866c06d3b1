package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
)

// ErrorType represents the category of error that occurred during a fetch operation
type ErrorType string

const (
	// ErrorTypeTimeout indicates the call exceeded its deadline
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeNotFound indicates the provider does not know the symbol
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeRateLimit indicates the provider throttled the request (HTTP 429 or equivalent payload)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeTransport indicates a connectivity or protocol failure reaching the provider
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeDecode indicates the response could not be interpreted as a quote
	ErrorTypeDecode ErrorType = "decode"
	// ErrorTypeCanceled indicates the round was cancelled before the call was made
	ErrorTypeCanceled ErrorType = "canceled"
)

// FetchError represents a structured error from a fetch operation
type FetchError struct {
	Type       ErrorType
	Retryable  bool
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Detail returns Message followed by the underlying cause, if there is one
// that adds information.
func (e *FetchError) Detail() string {
	if e.Cause == nil {
		return e.Message
	}
	cause := e.Cause.Error()
	if cause == "" || cause == e.Message {
		return e.Message
	}
	return e.Message + ": " + cause
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a transport error
func NewTransportError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeTransport,
		Retryable: true,
		Message:   "network request failed",
		Cause:     cause,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(statusCode int, message string) *FetchError {
	if message == "" {
		message = "rate limit exceeded"
	}
	return &FetchError{
		Type:       ErrorTypeRateLimit,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewNotFoundError creates a not-found error for symbol
func NewNotFoundError(statusCode int, symbol string) *FetchError {
	return &FetchError{
		Type:       ErrorTypeNotFound,
		Retryable:  false,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("no data for %s", symbol),
	}
}

// NewDecodeError creates a decode error
func NewDecodeError(message string, cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeDecode,
		Retryable: false,
		Message:   message,
		Cause:     cause,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeTimeout,
		Retryable: true,
		Message:   "request timed out",
		Cause:     cause,
	}
}

// NewCanceledError creates an error for a call that was never issued
func NewCanceledError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeCanceled,
		Retryable: true,
		Message:   "round cancelled",
		Cause:     cause,
	}
}

// ClassifyHTTPError classifies an HTTP status code into an appropriate FetchError
func ClassifyHTTPError(statusCode int, symbol string) *FetchError {
	switch {
	case statusCode == http.StatusNotFound:
		return NewNotFoundError(statusCode, symbol)
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(statusCode, "")
	case statusCode == http.StatusRequestTimeout:
		return &FetchError{
			Type:       ErrorTypeTimeout,
			Retryable:  true,
			StatusCode: statusCode,
			Message:    "server timed out waiting for request",
		}
	case statusCode >= 500:
		return &FetchError{
			Type:       ErrorTypeTransport,
			Retryable:  true,
			StatusCode: statusCode,
			Message:    "server returned an error",
		}
	default:
		return &FetchError{
			Type:       ErrorTypeTransport,
			Retryable:  false,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		}
	}
}

// ClassifyLimiterError classifies a failed client-side limiter wait. Once ctx is
// done the context error decides the type; otherwise the limiter refused
// because its next token lies beyond the deadline, and no request was sent.
func ClassifyLimiterError(ctx context.Context, err error) *FetchError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return AsFetchError(ctxErr)
	}
	fe := NewRateLimitError(0, "client-side rate limit would exceed deadline")
	fe.Cause = err
	return fe
}

// AsFetchError converts any error returned by a Source into a *FetchError.
// Errors that already are (or wrap) a *FetchError are returned as is.
func AsFetchError(err error) *FetchError {
	if err == nil {
		return nil
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError(err)
	case errors.Is(err, context.Canceled):
		return NewCanceledError(err)
	}

	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		numErr    *strconv.NumError
	)
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.As(err, &numErr) {
		return NewDecodeError(err.Error(), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(err)
	}

	return NewTransportError(err)
}
