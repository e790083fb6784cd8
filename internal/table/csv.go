package table

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/gocarina/gocsv"
)

// WriteBars writes bar series in long format, one row per symbol and time,
// symbols in ascending order. Missing values are written as empty cells.
func WriteBars(w io.Writer, series map[string]*Bars) error {
	symbols := make([]string, 0, len(series))
	cols := Columns{}
	for sym, b := range series {
		if b == nil {
			continue
		}
		symbols = append(symbols, sym)
		cols.AdjClose = cols.AdjClose || b.Columns.AdjClose
		cols.Dividend = cols.Dividend || b.Columns.Dividend
		cols.Split = cols.Split || b.Columns.Split
	}
	sort.Strings(symbols)

	out := gocsv.DefaultCSVWriter(w)
	header := (&Bars{Columns: cols}).Header()
	if err := out.Write(append([]string{"symbol"}, header...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, sym := range symbols {
		b := series[sym]
		for _, row := range b.Rows {
			rec := []string{
				sym,
				row.Time.Format(b.layout()),
				formatFloat(row.Open),
				formatFloat(row.High),
				formatFloat(row.Low),
				formatFloat(row.Close),
				formatFloat(row.Volume),
			}
			if cols.AdjClose {
				rec = append(rec, formatFloat(row.AdjClose))
			}
			if cols.Dividend {
				rec = append(rec, formatFloat(row.Dividend))
			}
			if cols.Split {
				rec = append(rec, formatFloat(row.Split))
			}
			if err := out.Write(rec); err != nil {
				return fmt.Errorf("write %s row: %w", sym, err)
			}
		}
	}

	out.Flush()
	return out.Error()
}

// WriteRecords writes a record set with one row per key, the key column
// first, then the union of every record's fields in ascending order. A
// field named like the key column is left out.
func WriteRecords(w io.Writer, keyColumn string, records Records) error {
	fields := slices.DeleteFunc(records.Fields(), func(f string) bool { return f == keyColumn })

	out := gocsv.DefaultCSVWriter(w)
	if err := out.Write(append([]string{keyColumn}, fields...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, key := range records.Keys() {
		rec := records[key]
		row := make([]string, 0, len(fields)+1)
		row = append(row, key)
		for _, f := range fields {
			row = append(row, rec.String(f))
		}
		if err := out.Write(row); err != nil {
			return fmt.Errorf("write %s row: %w", key, err)
		}
	}

	out.Flush()
	return out.Error()
}

// symbolRow is the CSV shape of a symbol list
type symbolRow struct {
	Symbol string `csv:"symbol"`
}

// WriteSymbols writes a one-column symbol list
func WriteSymbols(w io.Writer, symbols []string) error {
	rows := make([]symbolRow, len(symbols))
	for i, s := range symbols {
		rows[i] = symbolRow{Symbol: s}
	}
	return gocsv.Marshal(rows, w)
}

// ReadSymbols reads a symbol list written by WriteSymbols
func ReadSymbols(r io.Reader) ([]string, error) {
	var rows []symbolRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("read symbols: %w", err)
	}

	symbols := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Symbol != "" {
			symbols = append(symbols, row.Symbol)
		}
	}
	return symbols, nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
