package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorType represents the category of error that occurred during a fetch operation
type ErrorType string

const (
	// ErrorTypeNetwork indicates a network-level error (connection refused, DNS, etc.)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout indicates the request timed out (connect or response)
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeRateLimit indicates the provider throttled the request (HTTP 429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeServer indicates a server error (HTTP 5xx)
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeClient indicates a client error (HTTP 4xx except 429), usually an unknown symbol
	ErrorTypeClient ErrorType = "client"
	// ErrorTypeDecode indicates the response was received but its shape was unexpected
	ErrorTypeDecode ErrorType = "decode"
	// ErrorTypeUnknown indicates an error of unknown type
	ErrorTypeUnknown ErrorType = "unknown"
)

// Retryable reports whether a later round may succeed for this type.
// Rounds retry every failure regardless; the flag feeds logs only.
func (t ErrorType) Retryable() bool {
	switch t {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeServer:
		return true
	}
	return false
}

// FetchError is the error of one failed work item
type FetchError struct {
	Type       ErrorType
	Retryable  bool
	StatusCode int
	Message    string
	Cause      error
}

func newError(t ErrorType, status int, message string, cause error) *FetchError {
	return &FetchError{
		Type:       t,
		Retryable:  t.Retryable(),
		StatusCode: status,
		Message:    message,
		Cause:      cause,
	}
}

// Error implements the error interface
func (e *FetchError) Error() string {
	var b []byte
	b = fmt.Appendf(b, "%s error", e.Type)
	if e.StatusCode > 0 {
		b = fmt.Appendf(b, " (status %d)", e.StatusCode)
	}
	b = fmt.Appendf(b, ": %s", e.Message)
	if e.Cause != nil {
		b = fmt.Appendf(b, ": %v", e.Cause)
	}
	return string(b)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// NewNetworkError creates a network error
func NewNetworkError(cause error) *FetchError {
	return newError(ErrorTypeNetwork, 0, "network request failed", cause)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(cause error) *FetchError {
	return newError(ErrorTypeTimeout, 0, "request timed out", cause)
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(statusCode int) *FetchError {
	return newError(ErrorTypeRateLimit, statusCode, "throttled by the provider", nil)
}

// NewServerError creates a server error
func NewServerError(statusCode int) *FetchError {
	return newError(ErrorTypeServer, statusCode, http.StatusText(statusCode), nil)
}

// NewClientError creates a client error
func NewClientError(statusCode int, message string) *FetchError {
	return newError(ErrorTypeClient, statusCode, message, nil)
}

// NewDecodeError creates a decode error for a response whose body could not
// be turned into a record
func NewDecodeError(message string, cause error) *FetchError {
	return newError(ErrorTypeDecode, 0, message, cause)
}

// ClassifyHTTPError maps a non-2xx status code to a FetchError
func ClassifyHTTPError(statusCode int) *FetchError {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(statusCode)
	case statusCode >= 500:
		return NewServerError(statusCode)
	case statusCode >= 400:
		return NewClientError(statusCode, http.StatusText(statusCode))
	default:
		return newError(ErrorTypeUnknown, statusCode, "unexpected status", nil)
	}
}

// ClassifyTransportError wraps an error returned by the HTTP client as a
// timeout or network FetchError.
func ClassifyTransportError(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(err)
	}
	return NewNetworkError(err)
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown when err is not
// a FetchError. It is used for log fields and metric labels only.
func TypeOf(err error) ErrorType {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Type
	}
	return ErrorTypeUnknown
}
