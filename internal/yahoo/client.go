// Package yahoo implements the unit fetchers and response decoders for the
// Yahoo Finance endpoints: chart (daily and minute bars), batch quote,
// quote page (company details) and screener listing pages.
package yahoo

import (
	"context"
	"strings"

	"resty.dev/v3"

	"github.com/stoneagemcc/yf-tools/internal/fetcher"
	"github.com/stoneagemcc/yf-tools/internal/ratelimit"
)

// Default endpoint URLs
const (
	DefaultChartURL     = "https://query1.finance.yahoo.com/v8/finance/chart/"
	DefaultQuoteURL     = "https://query1.finance.yahoo.com/v7/finance/quote"
	DefaultQuotePageURL = "https://finance.yahoo.com/quote/"
)

// Endpoints holds the base URLs of the provider endpoints. Tests point them
// at httptest servers.
type Endpoints struct {
	// Chart is joined with the symbol
	Chart string
	// Quote receives the symbols query
	Quote string
	// QuotePage is joined with the symbol
	QuotePage string
}

// DefaultEndpoints returns the production endpoints
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Chart:     DefaultChartURL,
		Quote:     DefaultQuoteURL,
		QuotePage: DefaultQuotePageURL,
	}
}

// withDefaults fills empty endpoints and makes the path bases end in a slash
func (e Endpoints) withDefaults() Endpoints {
	d := DefaultEndpoints()
	if e.Chart == "" {
		e.Chart = d.Chart
	}
	if e.Quote == "" {
		e.Quote = d.Quote
	}
	if e.QuotePage == "" {
		e.QuotePage = d.QuotePage
	}
	e.Chart = withSlash(e.Chart)
	e.QuotePage = withSlash(e.QuotePage)
	return e
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// Client bundles the session, the endpoint ceilings and the endpoints shared
// by every fetcher of one download.
type Client struct {
	http      *resty.Client
	limiter   *ratelimit.Limiter
	endpoints Endpoints
}

// NewClient creates a client on an existing session. A nil limiter does not
// limit; empty endpoints fall back to the defaults.
func NewClient(http *resty.Client, limiter *ratelimit.Limiter, endpoints Endpoints) *Client {
	return &Client{
		http:      http,
		limiter:   limiter,
		endpoints: endpoints.withDefaults(),
	}
}

// Endpoints returns the endpoints in use
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// get waits for the endpoint ceiling, then performs the request
func (c *Client) get(ctx context.Context, api ratelimit.API, url string, query map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, api); err != nil {
		return nil, fetcher.ClassifyTransportError(err)
	}
	return fetcher.Get(ctx, c.http, url, query)
}
