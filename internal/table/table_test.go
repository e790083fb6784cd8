package table

import (
	"bytes"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2020, 8, d, 0, 0, 0, 0, time.UTC)
}

func bar(t time.Time, close float64) Bar {
	b := NewBar(t)
	b.Open, b.High, b.Low, b.Close, b.Volume = close, close, close, close, 100
	return b
}

func TestNewBar_AllMissing(t *testing.T) {
	b := NewBar(day(3))
	for name, v := range map[string]float64{
		"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close,
		"volume": b.Volume, "adjclose": b.AdjClose, "dividend": b.Dividend, "split": b.Split,
	} {
		if !math.IsNaN(v) {
			t.Errorf("NewBar().%s = %v, want NaN", name, v)
		}
	}
}

func TestConcat_OrdersAndDedupes(t *testing.T) {
	first := &Bars{Symbol: "AAPL", Layout: MinuteLayout, Rows: []Bar{bar(day(3), 1), bar(day(4), 2)}}
	second := &Bars{Symbol: "AAPL", Columns: Columns{Split: true}, Rows: []Bar{bar(day(4), 99), bar(day(5), 3)}}
	earlier := &Bars{Symbol: "AAPL", Rows: []Bar{bar(day(1), 0)}}

	got := Concat([]*Bars{first, nil, second, earlier})

	if got.Symbol != "AAPL" || got.Layout != MinuteLayout {
		t.Errorf("Concat() symbol/layout = %q/%q, want AAPL/%q", got.Symbol, got.Layout, MinuteLayout)
	}
	if !got.Columns.Split {
		t.Error("Concat() dropped the split column")
	}

	var closes []float64
	for _, row := range got.Rows {
		closes = append(closes, row.Close)
	}
	if want := []float64{0, 1, 2, 3}; !reflect.DeepEqual(closes, want) {
		t.Errorf("Concat() closes = %v, want %v", closes, want)
	}
}

func TestConcat_Empty(t *testing.T) {
	got := Concat(nil)
	if got.Len() != 0 {
		t.Errorf("Concat(nil).Len() = %d, want 0", got.Len())
	}
}

func TestHeader(t *testing.T) {
	tests := []struct {
		cols Columns
		want string
	}{
		{Columns{}, "time,open,high,low,close,volume"},
		{Columns{AdjClose: true}, "time,open,high,low,close,volume,adjclose"},
		{Columns{AdjClose: true, Dividend: true, Split: true}, "time,open,high,low,close,volume,adjclose,dividend,split"},
		{Columns{Split: true}, "time,open,high,low,close,volume,split"},
	}
	for _, tt := range tests {
		b := &Bars{Columns: tt.cols}
		if got := strings.Join(b.Header(), ","); got != tt.want {
			t.Errorf("Header(%+v) = %q, want %q", tt.cols, got, tt.want)
		}
	}
}

func TestRecoverFromSplit(t *testing.T) {
	rows := []Bar{bar(day(27), 100), bar(day(28), 100), bar(day(31), 100), bar(day(31).AddDate(0, 0, 1), 100)}
	for i := range rows {
		rows[i].Dividend = math.NaN()
	}
	rows[1].Dividend = 0.5
	// 4-for-1 on the 31st, 2-for-1 on the next day
	rows[2].Split = 4
	rows[3].Split = 2

	got := RecoverFromSplit(&Bars{Symbol: "AAPL", Columns: Columns{Dividend: true, Split: true}, Rows: rows})

	wantRatio := []float64{8, 8, 2, 1}
	for i, row := range got.Rows {
		if row.Close != 100*wantRatio[i] {
			t.Errorf("row %d close = %v, want %v", i, row.Close, 100*wantRatio[i])
		}
		if row.Volume != 100/wantRatio[i] {
			t.Errorf("row %d volume = %v, want %v", i, row.Volume, 100/wantRatio[i])
		}
	}
	if got.Rows[1].Dividend != 4 {
		t.Errorf("dividend = %v, want 4", got.Rows[1].Dividend)
	}
	if got.Columns.Split || got.Columns.AdjClose || !got.Columns.Dividend {
		t.Errorf("columns = %+v, want dividend only", got.Columns)
	}
}

func TestDividendAdjustment(t *testing.T) {
	rows := []Bar{bar(day(3), 100), bar(day(4), 50), bar(day(5), 80), bar(day(6), 80)}
	for i := range rows {
		rows[i].Dividend = math.NaN()
	}
	rows[2].Dividend = 5 // paid against the previous close of 50

	got := DividendAdjustment(&Bars{Rows: rows})
	want := []float64{0.9, 0.9, 1, 1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("factor[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWriteBars(t *testing.T) {
	aapl := &Bars{Symbol: "AAPL", Columns: Columns{AdjClose: true}, Rows: []Bar{bar(day(3), 1.5)}}
	aapl.Rows[0].AdjClose = 1.25
	msft := &Bars{Symbol: "MSFT", Rows: []Bar{bar(day(3), 2)}}

	var buf bytes.Buffer
	if err := WriteBars(&buf, map[string]*Bars{"MSFT": msft, "AAPL": aapl}); err != nil {
		t.Fatalf("WriteBars() error = %v", err)
	}

	want := "symbol,time,open,high,low,close,volume,adjclose\n" +
		"AAPL,2020-08-03,1.5,1.5,1.5,1.5,100,1.25\n" +
		"MSFT,2020-08-03,2,2,2,2,100,\n"
	if buf.String() != want {
		t.Errorf("WriteBars() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteRecords(t *testing.T) {
	records := Records{
		"MSFT": {"symbol": "MSFT", "regularMarketPrice": 310.5},
		"AAPL": {"symbol": "AAPL", "regularMarketPrice": 184.25, "longName": "Apple Inc.", "dividendDate": nil},
	}

	var buf bytes.Buffer
	if err := WriteRecords(&buf, "key", records); err != nil {
		t.Fatalf("WriteRecords() error = %v", err)
	}

	want := "key,dividendDate,longName,regularMarketPrice,symbol\n" +
		"AAPL,,Apple Inc.,184.25,AAPL\n" +
		"MSFT,,,310.5,MSFT\n"
	if buf.String() != want {
		t.Errorf("WriteRecords() =\n%s\nwant\n%s", buf.String(), want)
	}

	buf.Reset()
	if err := WriteRecords(&buf, "symbol", records); err != nil {
		t.Fatalf("WriteRecords() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "symbol,dividendDate,longName,regularMarketPrice\n") {
		t.Errorf("WriteRecords() keyed by symbol repeats the key column:\n%s", buf.String())
	}
}

func TestSymbolsRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSymbols(&buf, []string{"AAPL", "BRK-B", "^GSPC"}); err != nil {
		t.Fatalf("WriteSymbols() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "symbol\nAAPL\n") {
		t.Errorf("WriteSymbols() = %q, want a symbol header", buf.String())
	}

	got, err := ReadSymbols(&buf)
	if err != nil {
		t.Fatalf("ReadSymbols() error = %v", err)
	}
	if want := []string{"AAPL", "BRK-B", "^GSPC"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ReadSymbols() = %v, want %v", got, want)
	}
}

func TestRecordString(t *testing.T) {
	r := Record{"a": "x", "b": 2.5, "c": nil, "d": true}
	tests := map[string]string{"a": "x", "b": "2.5", "c": "", "d": "true", "missing": ""}
	for field, want := range tests {
		if got := r.String(field); got != want {
			t.Errorf("String(%q) = %q, want %q", field, got, want)
		}
	}
}
