// Package table holds the in-memory tables produced by downloads: OHLCV bar
// series, keyed record sets and symbol lists, plus their CSV export and the
// split and dividend post-processing transforms.
package table

import (
	"math"
	"sort"
	"time"
)

// Time layouts used for the time column
const (
	DateLayout   = "2006-01-02"
	MinuteLayout = time.RFC3339
)

// Bar is one OHLCV row. Missing values are NaN.
type Bar struct {
	Time     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	AdjClose float64
	Dividend float64
	Split    float64
}

// NewBar returns a row at t with every value missing
func NewBar(t time.Time) Bar {
	nan := math.NaN()
	return Bar{
		Time:     t,
		Open:     nan,
		High:     nan,
		Low:      nan,
		Close:    nan,
		Volume:   nan,
		AdjClose: nan,
		Dividend: nan,
		Split:    nan,
	}
}

// Columns selects the optional columns of a Bars table
type Columns struct {
	AdjClose bool
	Dividend bool
	Split    bool
}

// Bars is the bar series of one symbol, ordered by time
type Bars struct {
	Symbol  string
	Columns Columns
	// Layout formats the time column, DateLayout when empty
	Layout string
	Rows   []Bar
}

// Len returns the number of rows
func (b *Bars) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Header returns the column names, time first
func (b *Bars) Header() []string {
	h := []string{"time", "open", "high", "low", "close", "volume"}
	if b.Columns.AdjClose {
		h = append(h, "adjclose")
	}
	if b.Columns.Dividend {
		h = append(h, "dividend")
	}
	if b.Columns.Split {
		h = append(h, "split")
	}
	return h
}

// Normalize sorts the rows by time and drops rows whose time repeats an
// earlier row, keeping the first occurrence.
func (b *Bars) Normalize() {
	sort.SliceStable(b.Rows, func(i, j int) bool {
		return b.Rows[i].Time.Before(b.Rows[j].Time)
	})

	out := b.Rows[:0]
	for i, row := range b.Rows {
		if i > 0 && row.Time.Equal(out[len(out)-1].Time) {
			continue
		}
		out = append(out, row)
	}
	b.Rows = out
}

// Concat joins parts in the given order into one series, then normalizes
// it. The symbol and layout come from the first non-nil part and the
// columns are the union of every part's columns.
func Concat(parts []*Bars) *Bars {
	out := &Bars{}
	first := true
	for _, p := range parts {
		if p == nil {
			continue
		}
		if first {
			out.Symbol = p.Symbol
			out.Layout = p.Layout
			first = false
		}
		out.Columns.AdjClose = out.Columns.AdjClose || p.Columns.AdjClose
		out.Columns.Dividend = out.Columns.Dividend || p.Columns.Dividend
		out.Columns.Split = out.Columns.Split || p.Columns.Split
		out.Rows = append(out.Rows, p.Rows...)
	}
	out.Normalize()
	return out
}

func (b *Bars) layout() string {
	if b.Layout == "" {
		return DateLayout
	}
	return b.Layout
}
