package yahoo

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stoneagemcc/yf-tools/internal/fetcher"
	"github.com/stoneagemcc/yf-tools/internal/ratelimit"
)

// newTestClient starts an httptest server with handler and returns a client
// whose endpoints all point at it
func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	session := fetcher.NewSession(fetcher.DefaultSessionConfig())
	t.Cleanup(func() { session.Close() })

	client := NewClient(session, ratelimit.Unlimited(), Endpoints{
		Chart:     server.URL + "/v8/finance/chart",
		Quote:     server.URL + "/v7/finance/quote",
		QuotePage: server.URL + "/quote",
	})
	return client, server
}

func wantFetchError(t *testing.T, err error, want fetcher.ErrorType) {
	t.Helper()

	var fe *fetcher.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if fe.Type != want {
		t.Errorf("error type = %q, want %q", fe.Type, want)
	}
}

func TestNewClient_DefaultEndpoints(t *testing.T) {
	c := NewClient(nil, nil, Endpoints{})
	if got := c.Endpoints(); got != DefaultEndpoints() {
		t.Errorf("Endpoints() = %+v, want %+v", got, DefaultEndpoints())
	}

	c = NewClient(nil, nil, Endpoints{Chart: "http://localhost/chart", QuotePage: "http://localhost/q/"})
	if got := c.Endpoints().Chart; got != "http://localhost/chart/" {
		t.Errorf("Chart = %q, want a trailing slash", got)
	}
	if got := c.Endpoints().QuotePage; got != "http://localhost/q/" {
		t.Errorf("QuotePage = %q, want %q", got, "http://localhost/q/")
	}
	if got := c.Endpoints().Quote; got != DefaultQuoteURL {
		t.Errorf("Quote = %q, want %q", got, DefaultQuoteURL)
	}
}
