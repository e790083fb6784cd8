package yahoo

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
	_ "time/tzdata" // exchange timezones on hosts without a zoneinfo database

	"github.com/stoneagemcc/yf-tools/internal/fetcher"
	"github.com/stoneagemcc/yf-tools/internal/table"
)

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta       chartMeta       `json:"meta"`
	Timestamp  []int64         `json:"timestamp"`
	Events     *chartEvents    `json:"events"`
	Indicators chartIndicators `json:"indicators"`
}

type chartMeta struct {
	Symbol               string `json:"symbol"`
	Currency             string `json:"currency"`
	ExchangeTimezoneName string `json:"exchangeTimezoneName"`
}

type chartEvents struct {
	Dividends map[string]dividendEvent `json:"dividends"`
	Splits    map[string]splitEvent    `json:"splits"`
}

type dividendEvent struct {
	Amount float64 `json:"amount"`
	Date   int64   `json:"date"`
}

type splitEvent struct {
	Date        int64   `json:"date"`
	Numerator   float64 `json:"numerator"`
	Denominator float64 `json:"denominator"`
}

func (s splitEvent) ratio() float64 {
	return s.Numerator / s.Denominator
}

type chartIndicators struct {
	Quote    []chartQuote    `json:"quote"`
	AdjClose []chartAdjClose `json:"adjclose"`
}

type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

type chartAdjClose struct {
	AdjClose []*float64 `json:"adjclose"`
}

// parseChart returns the single result of a chart response
func parseChart(body []byte) (*chartResult, error) {
	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fetcher.NewDecodeError("parse chart response", err)
	}
	if e := resp.Chart.Error; e != nil {
		return nil, fetcher.NewDecodeError(fmt.Sprintf("chart error %s: %s", e.Code, e.Description), nil)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fetcher.NewDecodeError("chart response has no result", nil)
	}

	r := &resp.Chart.Result[0]
	if len(r.Timestamp) == 0 {
		return nil, fetcher.NewDecodeError("chart response has no bars", nil)
	}
	if len(r.Indicators.Quote) == 0 {
		return nil, fetcher.NewDecodeError("chart response has no quote indicators", nil)
	}
	return r, nil
}

// bars builds the OHLCV rows, one per timestamp, with times in loc
func (r *chartResult) bars(loc *time.Location, normalize bool) []table.Bar {
	q := r.Indicators.Quote[0]
	rows := make([]table.Bar, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		t := time.Unix(ts, 0).In(loc)
		if normalize {
			t = dateOf(t)
		}
		row := table.NewBar(t)
		row.Open = at(q.Open, i)
		row.High = at(q.High, i)
		row.Low = at(q.Low, i)
		row.Close = at(q.Close, i)
		row.Volume = at(q.Volume, i)
		rows[i] = row
	}
	return rows
}

// dividends maps UTC dates to dividend amounts
func (r *chartResult) dividends() map[time.Time]float64 {
	out := make(map[time.Time]float64)
	if r.Events == nil {
		return out
	}
	for _, d := range r.Events.Dividends {
		out[dateOf(time.Unix(d.Date, 0).UTC())] = d.Amount
	}
	return out
}

// splits returns the split events ordered by date
func (r *chartResult) splits() []splitEvent {
	if r.Events == nil {
		return nil
	}
	out := make([]splitEvent, 0, len(r.Events.Splits))
	for _, s := range r.Events.Splits {
		if s.Denominator == 0 {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func at(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return math.NaN()
	}
	return *values[i]
}

// dateOf truncates t to midnight in its own location
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func unixParam(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
