package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/stoneagemcc/yf-tools/internal/fetcher"
	"github.com/stoneagemcc/yf-tools/internal/ratelimit"
	"github.com/stoneagemcc/yf-tools/internal/table"
)

const (
	// WindowWidth is the widest range the chart endpoint serves at 1m
	WindowWidth = 7 * 24 * time.Hour

	// MinuteHistory is how far back minute bars are kept by the provider
	MinuteHistory = 32 * 24 * time.Hour

	// ProbeSymbol is requested to find the first day with minute data
	ProbeSymbol = "^GSPC"
)

// Window is a half-open time range [Start, End)
type Window struct {
	Start time.Time
	End   time.Time
}

// SplitWindows partitions [start, end) into consecutive windows of at most
// width. The last window ends at end.
func SplitWindows(start, end time.Time, width time.Duration) []Window {
	if !start.Before(end) || width <= 0 {
		return nil
	}

	var out []Window
	for s := start; s.Before(end); s = s.Add(width) {
		e := s.Add(width)
		if e.After(end) {
			e = end
		}
		out = append(out, Window{Start: s, End: e})
	}
	return out
}

// WindowKey is the work item of a minute download: one symbol over one
// window, identified by its index
type WindowKey struct {
	Symbol string
	Window int
}

// String renders the key as SYMBOL[index]
func (k WindowKey) String() string {
	return k.Symbol + "[" + strconv.Itoa(k.Window) + "]"
}

// MinuteQuery describes the minute bars requested for every symbol
type MinuteQuery struct {
	Windows []Window
	// IncludePrePost adds pre and post market bars
	IncludePrePost bool
	// IncludeSplit adds the split column
	IncludeSplit bool
}

// MinuteFetcher downloads one window of minute bars for one symbol per
// request. Prices come back as traded, not split-adjusted.
type MinuteFetcher struct {
	client *Client
	query  MinuteQuery
}

// NewMinuteFetcher creates a minute bars fetcher
func NewMinuteFetcher(client *Client, query MinuteQuery) *MinuteFetcher {
	return &MinuteFetcher{client: client, query: query}
}

// Kind implements the Fetcher interface
func (f *MinuteFetcher) Kind() string {
	return "minute"
}

// Fetch implements the Fetcher interface
func (f *MinuteFetcher) Fetch(ctx context.Context, key WindowKey) (*table.Bars, error) {
	if key.Window < 0 || key.Window >= len(f.query.Windows) {
		return nil, fmt.Errorf("window %d out of range [0, %d)", key.Window, len(f.query.Windows))
	}
	w := f.query.Windows[key.Window]

	bars, err := f.client.minute(ctx, key.Symbol, w, f.query.IncludePrePost, f.query.IncludeSplit)
	if err != nil {
		return nil, err
	}
	bars.Symbol = key.Symbol
	return bars, nil
}

func (c *Client) minute(ctx context.Context, symbol string, w Window, prePost, split bool) (*table.Bars, error) {
	params := map[string]string{
		"interval":       "1m",
		"period1":        unixParam(w.Start),
		"period2":        unixParam(w.End),
		"includePrePost": strconv.FormatBool(prePost),
		"events":         "splits",
	}

	body, err := c.get(ctx, ratelimit.APIChart, c.endpoints.Chart+url.PathEscape(symbol), params)
	if err != nil {
		return nil, err
	}
	return DecodeMinute(body, split)
}

// FirstMinuteDay returns the first business day from start on, before end,
// for which the provider serves minute bars of the probe symbol.
func (c *Client) FirstMinuteDay(ctx context.Context, start, end time.Time) (time.Time, error) {
	var lastErr error
	for day := start; day.Before(end); day = NextBusinessDay(day) {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		w := Window{Start: day, End: NextBusinessDay(day)}
		if _, err := c.minute(ctx, ProbeSymbol, w, false, false); err != nil {
			lastErr = err
			continue
		}
		return day, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("empty range")
	}
	return time.Time{}, fmt.Errorf("no minute data between %s and %s: %w",
		start.Format(time.DateOnly), end.Format(time.DateOnly), lastErr)
}

// DecodeMinute decodes a minute chart response. Times are in the exchange
// timezone. Prices of bars dated before a split are multiplied by the split
// ratio so the whole window is in traded terms; volumes are left as served.
func DecodeMinute(body []byte, includeSplit bool) (*table.Bars, error) {
	r, err := parseChart(body)
	if err != nil {
		return nil, err
	}

	loc := time.UTC
	if tz := r.Meta.ExchangeTimezoneName; tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, fetcher.NewDecodeError("unknown exchange timezone "+tz, err)
		}
	}

	rows := r.bars(loc, false)
	splits := r.splits()

	for _, s := range splits {
		when := time.Unix(s.Date, 0)
		cutoff := when.UTC().Format(time.DateOnly)
		ratio := s.ratio()
		for i := range rows {
			if rows[i].Time.Format(time.DateOnly) < cutoff {
				rows[i].Open *= ratio
				rows[i].High *= ratio
				rows[i].Low *= ratio
				rows[i].Close *= ratio
			}
			if includeSplit && rows[i].Time.Equal(when) {
				rows[i].Split = ratio
			}
		}
	}

	bars := &table.Bars{
		Symbol:  r.Meta.Symbol,
		Columns: table.Columns{Split: includeSplit},
		Layout:  table.MinuteLayout,
		Rows:    rows,
	}
	bars.Normalize()
	return bars, nil
}

// NextBusinessDay returns t moved to the next weekday, keeping the time of day
func NextBusinessDay(t time.Time) time.Time {
	t = t.AddDate(0, 0, 1)
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

var _ fetcher.Fetcher[WindowKey, *table.Bars] = (*MinuteFetcher)(nil)
