package table

import "math"

// RecoverFromSplit undoes the split adjustment of a daily series: prices and
// dividends before each split are multiplied by the product of every later
// split ratio, and volumes are divided by it. The result carries the price,
// volume and dividend columns only.
func RecoverFromSplit(b *Bars) *Bars {
	ratio := backwardProduct(len(b.Rows), func(i int) float64 {
		return b.Rows[i].Split
	})

	out := &Bars{
		Symbol:  b.Symbol,
		Columns: Columns{Dividend: b.Columns.Dividend},
		Layout:  b.Layout,
		Rows:    make([]Bar, len(b.Rows)),
	}
	for i, row := range b.Rows {
		r := ratio[i]
		rec := NewBar(row.Time)
		rec.Open = row.Open * r
		rec.High = row.High * r
		rec.Low = row.Low * r
		rec.Close = row.Close * r
		rec.Dividend = row.Dividend * r
		rec.Volume = row.Volume / r
		out.Rows[i] = rec
	}
	return out
}

// DividendAdjustment returns the backward multiplying factor for the prices
// of a split-adjusted series, assuming dividends are reinvested: the factor
// of row i is the product over later dividend rows j of 1 - dividend[j]/close[j-1].
func DividendAdjustment(b *Bars) []float64 {
	return backwardProduct(len(b.Rows), func(i int) float64 {
		return 1 - b.Rows[i].Dividend/b.Rows[i-1].Close
	})
}

// backwardProduct returns, for every row i, the product of value(j) over
// j in (i, n) where value(j) is not NaN. Rows without any later value get 1.
func backwardProduct(n int, value func(j int) float64) []float64 {
	out := make([]float64, n)
	acc := 1.0
	for i := n - 1; i >= 0; i-- {
		out[i] = acc
		if i == 0 {
			break
		}
		if v := value(i); !math.IsNaN(v) {
			acc *= v
		}
	}
	return out
}
