package yahoo

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/stoneagemcc/yf-tools/internal/fetcher"
	"github.com/stoneagemcc/yf-tools/internal/ratelimit"
	"github.com/stoneagemcc/yf-tools/internal/table"
)

const (
	appStateMarker = "root.App.main ="
	summaryPath    = "context.dispatcher.stores.QuoteSummaryStore"
)

// DetailsFetcher downloads the quote page of one symbol per request and
// extracts the company details embedded in it
type DetailsFetcher struct {
	client *Client
}

// NewDetailsFetcher creates a company details fetcher
func NewDetailsFetcher(client *Client) *DetailsFetcher {
	return &DetailsFetcher{client: client}
}

// Kind implements the Fetcher interface
func (f *DetailsFetcher) Kind() string {
	return "detail"
}

// Fetch implements the Fetcher interface
func (f *DetailsFetcher) Fetch(ctx context.Context, symbol string) (table.Record, error) {
	body, err := f.client.get(ctx, ratelimit.APIQuotePage, f.client.endpoints.QuotePage+url.PathEscape(symbol), nil)
	if err != nil {
		return nil, err
	}

	rec, err := DecodeDetails(body)
	if err != nil {
		return nil, err
	}
	if rec.String("symbol") == "" {
		rec["symbol"] = symbol
	}
	return rec, nil
}

// DecodeDetails extracts the quote summary store from the application state
// embedded in a quote page. Every store is flattened into one record: scalar
// fields are kept, {raw, fmt} objects collapse to raw, empty objects, nested
// objects, lists and nulls are dropped. Later stores override earlier ones.
func DecodeDetails(page []byte) (table.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fetcher.NewDecodeError("parse quote page", err)
	}

	var state string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, appStateMarker) {
			state = extractAppState(text)
			return false
		}
		return true
	})
	if state == "" {
		return nil, fetcher.NewDecodeError("quote page has no application state", nil)
	}
	if !gjson.Valid(state) {
		return nil, fetcher.NewDecodeError("application state is not valid JSON", nil)
	}

	stores := gjson.Get(state, summaryPath)
	if !stores.IsObject() {
		return nil, fetcher.NewDecodeError("application state has no quote summary", nil)
	}

	rec := table.Record{}
	stores.ForEach(func(_, store gjson.Result) bool {
		if !store.IsObject() {
			return true
		}
		store.ForEach(func(key, v gjson.Result) bool {
			if val, ok := scalar(v); ok {
				rec[key.String()] = val
			}
			return true
		})
		return true
	})
	return rec, nil
}

// extractAppState cuts the JSON assigned to root.App.main out of a script
func extractAppState(script string) string {
	_, state, _ := strings.Cut(script, appStateMarker)
	state, _, _ = strings.Cut(state, "(this)")
	state, _, _ = strings.Cut(state, ";\n}")
	return strings.TrimSpace(state)
}

// scalar returns the value of a field that flattens to a non-null scalar
func scalar(v gjson.Result) (any, bool) {
	switch {
	case v.IsObject():
		raw := v.Get("raw")
		if !raw.Exists() || raw.IsObject() || raw.IsArray() || raw.Type == gjson.Null {
			return nil, false
		}
		return raw.Value(), true
	case v.IsArray(), v.Type == gjson.Null:
		return nil, false
	default:
		return v.Value(), true
	}
}

var _ fetcher.Fetcher[string, table.Record] = (*DetailsFetcher)(nil)
