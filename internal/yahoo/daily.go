package yahoo

import (
	"context"
	"net/url"
	"time"

	"github.com/stoneagemcc/yf-tools/internal/fetcher"
	"github.com/stoneagemcc/yf-tools/internal/ratelimit"
	"github.com/stoneagemcc/yf-tools/internal/table"
)

// DailyQuery describes the daily bars requested for every symbol
type DailyQuery struct {
	Start time.Time
	// End is exclusive
	End time.Time
	// IncludeActions adds dividend and split columns
	IncludeActions bool
	// IncludeAdjustedClose adds the adjusted close column
	IncludeAdjustedClose bool
}

// DailyFetcher downloads the daily bars of one symbol per request. Prices
// and volumes come back split-adjusted.
type DailyFetcher struct {
	client *Client
	query  DailyQuery
}

// NewDailyFetcher creates a daily bars fetcher
func NewDailyFetcher(client *Client, query DailyQuery) *DailyFetcher {
	return &DailyFetcher{client: client, query: query}
}

// Kind implements the Fetcher interface
func (f *DailyFetcher) Kind() string {
	return "daily"
}

// Fetch implements the Fetcher interface
func (f *DailyFetcher) Fetch(ctx context.Context, symbol string) (*table.Bars, error) {
	params := map[string]string{
		"interval": "1d",
		"period1":  unixParam(f.query.Start),
		"period2":  unixParam(f.query.End),
	}
	if f.query.IncludeActions {
		params["events"] = "splits,div"
	}

	body, err := f.client.get(ctx, ratelimit.APIChart, f.client.endpoints.Chart+url.PathEscape(symbol), params)
	if err != nil {
		return nil, err
	}

	bars, err := DecodeDaily(body, f.query.IncludeActions, f.query.IncludeAdjustedClose)
	if err != nil {
		return nil, err
	}
	bars.Symbol = symbol
	return bars, nil
}

// DecodeDaily decodes a daily chart response. Timestamps are normalized to
// their UTC date and repeated dates keep the first row. A missing adjusted
// close series falls back to the close.
func DecodeDaily(body []byte, actions, adjClose bool) (*table.Bars, error) {
	r, err := parseChart(body)
	if err != nil {
		return nil, err
	}

	rows := r.bars(time.UTC, true)

	if adjClose {
		var adj []*float64
		if len(r.Indicators.AdjClose) > 0 {
			adj = r.Indicators.AdjClose[0].AdjClose
		}
		for i := range rows {
			if adj != nil {
				rows[i].AdjClose = at(adj, i)
			} else {
				rows[i].AdjClose = rows[i].Close
			}
		}
	}

	if actions {
		divs := r.dividends()
		splits := make(map[time.Time]float64)
		for _, s := range r.splits() {
			splits[dateOf(time.Unix(s.Date, 0).UTC())] = s.ratio()
		}
		for i := range rows {
			if v, ok := divs[rows[i].Time]; ok {
				rows[i].Dividend = v
			}
			if v, ok := splits[rows[i].Time]; ok {
				rows[i].Split = v
			}
		}
	}

	bars := &table.Bars{
		Symbol: r.Meta.Symbol,
		Columns: table.Columns{
			AdjClose: adjClose,
			Dividend: actions,
			Split:    actions,
		},
		Layout: table.DateLayout,
		Rows:   rows,
	}
	bars.Normalize()
	return bars, nil
}

var _ fetcher.Fetcher[string, *table.Bars] = (*DailyFetcher)(nil)
