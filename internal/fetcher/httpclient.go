package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"
)

const (
	// DefaultUserAgent is sent with every request; the provider rejects
	// requests without a browser-like agent.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	// Default connect and response timeouts
	DefaultConnectTimeout  = 3050 * time.Millisecond
	DefaultResponseTimeout = 5 * time.Second

	// Default transport-level retry configuration. Round retries are driven
	// by the coordinator, so the HTTP client does not retry unless asked to.
	defaultRetryCount       = 0
	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 10 * time.Second
)

// SessionConfig configures the HTTP session shared by all fetch tasks of one
// download.
type SessionConfig struct {
	// ConnectTimeout bounds dialing. Zero keeps the transport default.
	ConnectTimeout time.Duration

	// ResponseTimeout bounds the wait for response headers after the
	// request is written. Zero means no limit.
	ResponseTimeout time.Duration

	// UserAgent overrides DefaultUserAgent when set
	UserAgent string

	// RetryCount is the number of transport-level retries per request
	RetryCount int

	// Logger receives retry notices at debug level
	Logger zerolog.Logger
}

// DefaultSessionConfig returns the timeouts the downloader uses when the
// caller does not set any.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ConnectTimeout:  DefaultConnectTimeout,
		ResponseTimeout: DefaultResponseTimeout,
		UserAgent:       DefaultUserAgent,
		RetryCount:      defaultRetryCount,
		Logger:          zerolog.Nop(),
	}
}

// NewSession creates the HTTP client shared by one download. The caller owns
// the client and must Close it when the download returns.
func NewSession(cfg SessionConfig) *resty.Client {
	if cfg.ConnectTimeout < 0 {
		cfg.ConnectTimeout = 0
	}
	if cfg.ResponseTimeout < 0 {
		cfg.ResponseTimeout = 0
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	client := resty.NewWithTransportSettings(&resty.TransportSettings{
		DialerTimeout:         cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ResponseTimeout,
	}).
		SetHeader("User-Agent", cfg.UserAgent).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(defaultRetryWaitTime).
		SetRetryMaxWaitTime(defaultRetryMaxWaitTime).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook(cfg.Logger))

	if cfg.ConnectTimeout > 0 && cfg.ResponseTimeout > 0 {
		// ceiling for the whole exchange, body read included
		client.SetTimeout(cfg.ConnectTimeout + 2*cfg.ResponseTimeout)
	}

	return client
}

// Get performs a GET request on the shared session and returns the raw body.
// Transport failures come back as timeout or network FetchErrors and non-2xx
// statuses as classified HTTP errors.
func Get(ctx context.Context, client *resty.Client, url string, query map[string]string) ([]byte, error) {
	req := client.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Get(url)
	if err != nil {
		return nil, ClassifyTransportError(err)
	}

	body := resp.Bytes()
	if !resp.IsSuccess() {
		return nil, ClassifyHTTPError(resp.StatusCode())
	}

	return body, nil
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
	case code == 429, code == 408:
		return true
	default:
		return false
	}
}

// retryHook logs retry attempts for observability
func retryHook(logger zerolog.Logger) resty.RetryHookFunc {
	return func(r *resty.Response, err error) {
		if r == nil || r.Request == nil {
			logger.Debug().Err(err).Msg("retrying request")
			return
		}
		if err != nil {
			logger.Debug().
				Str("url", r.Request.URL).
				Int("attempt", r.Request.Attempt).
				Err(err).
				Msg("retrying request due to error")
			return
		}

		logger.Debug().
			Str("url", r.Request.URL).
			Int("attempt", r.Request.Attempt).
			Int("status_code", r.StatusCode()).
			Msg("retrying request due to status code")
	}
}
