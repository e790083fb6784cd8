package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stoneagemcc/yf-tools/internal/coordinator"
	"github.com/stoneagemcc/yf-tools/internal/input"
	"github.com/stoneagemcc/yf-tools/internal/table"
	"github.com/stoneagemcc/yf-tools/internal/yahoo"
)

// DefaultDailyStart is the start of a daily download without a start date
var DefaultDailyStart = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// BarsResult holds the bar series downloaded per symbol
type BarsResult struct {
	Data map[string]*table.Bars

	// Failed lists the symbols that never succeeded
	Failed []string
}

// DailyOptions configures DailyBars
type DailyOptions struct {
	Options

	// Start and End accept a time.Time, a date string, epoch seconds or
	// nil. End is exclusive.
	Start any
	End   any

	// IncludeActions adds dividend and split columns
	IncludeActions bool

	// IncludeAdjustedClose adds the adjusted close column
	IncludeAdjustedClose bool
}

// DefaultDailyOptions returns the daily download defaults
func DefaultDailyOptions() DailyOptions {
	return DailyOptions{
		Options:              defaultOptions(),
		IncludeAdjustedClose: true,
	}
}

// DailyBars downloads split-adjusted daily bars for every symbol, one request
// per symbol. Without dates it covers 1900-01-01 up to tomorrow (UTC).
func DailyBars(ctx context.Context, symbols []string, opts DailyOptions) (*BarsResult, error) {
	o := opts.Options.normalize()
	log := o.logger("daily")

	syms := input.ParseSymbols(symbols, true)

	start, err := input.ParseTime("start", opts.Start)
	if err != nil {
		return nil, err
	}
	if start.IsZero() {
		start = DefaultDailyStart
	}

	end, err := input.ParseTime("end", opts.End)
	if err != nil {
		return nil, err
	}
	if end.IsZero() {
		end = utcDate(o.now()).AddDate(0, 0, 1)
	}
	if !start.Before(end) {
		return nil, &input.ConfigError{Field: "end", Value: opts.End, Err: fmt.Errorf("must be after start %s", start.Format(time.DateOnly))}
	}

	res := &BarsResult{Data: map[string]*table.Bars{}}
	if len(syms) == 0 {
		return res, nil
	}

	log.Info().
		Time("start", start).
		Time("end", end).
		Int("symbols", len(syms)).
		Dur("spacing", o.Spacing).
		Msg("downloading daily bars")

	sess, client := o.session(log)
	defer sess.Close()

	f := yahoo.NewDailyFetcher(client, yahoo.DailyQuery{
		Start:                start,
		End:                  end,
		IncludeActions:       opts.IncludeActions,
		IncludeAdjustedClose: opts.IncludeAdjustedClose,
	})
	out := coordinator.Run(ctx, syms, f, o.rounds(&log))

	res.Data = out.Successes
	res.Failed = out.Failed
	log.Info().Int("downloaded", len(res.Data)).Int("failed", len(res.Failed)).Msg("daily bars done")
	return res, cancelled(ctx)
}

// DailyBar is DailyBars for one symbol. It fails when the symbol could not
// be downloaded.
func DailyBar(ctx context.Context, symbol string, opts DailyOptions) (*table.Bars, error) {
	syms := input.ParseSymbols([]string{symbol}, true)
	if len(syms) != 1 {
		return nil, &input.ConfigError{Field: "symbol", Value: symbol, Err: errors.New("want exactly one symbol")}
	}

	res, err := DailyBars(ctx, syms, opts)
	if err != nil {
		return nil, err
	}
	bars, ok := res.Data[syms[0]]
	if !ok {
		return nil, fmt.Errorf("download daily bars of %s failed", syms[0])
	}
	return bars, nil
}

// MinuteResult holds the minute bars downloaded per symbol and the windows
// they were requested in
type MinuteResult struct {
	BarsResult

	// Windows are the request windows, indexed by WindowKey.Window
	Windows []yahoo.Window

	// FailedWindows lists every (symbol, window) that never succeeded.
	// A symbol with some failed windows still has the others in Data.
	FailedWindows []yahoo.WindowKey
}

// MinuteOptions configures MinuteBars
type MinuteOptions struct {
	Options

	// Start and End accept a time.Time, a date string, epoch seconds or
	// nil. End is exclusive.
	Start any
	End   any

	// IncludePrePost adds pre and post market bars
	IncludePrePost bool

	// IncludeSplit adds the split column
	IncludeSplit bool
}

// DefaultMinuteOptions returns the minute download defaults
func DefaultMinuteOptions() MinuteOptions {
	return MinuteOptions{Options: defaultOptions()}
}

// MinuteBars downloads raw minute bars for every symbol, one request per
// symbol and 7-day window. The provider keeps about a month of minute data:
// the start is clamped to 32 days before today, then moved forward one
// business day at a time until the probe symbol returns data.
func MinuteBars(ctx context.Context, symbols []string, opts MinuteOptions) (*MinuteResult, error) {
	o := opts.Options.normalize()
	log := o.logger("minute")

	syms := input.ParseSymbols(symbols, true)
	now := o.now().UTC()
	floor := utcDate(now).Add(-yahoo.MinuteHistory)

	start, err := input.ParseTime("start", opts.Start)
	if err != nil {
		return nil, err
	}
	if start.Before(floor) {
		start = floor
	}

	end, err := input.ParseTime("end", opts.End)
	if err != nil {
		return nil, err
	}
	if end.IsZero() {
		end = now
	}
	if !start.Before(end) {
		return nil, &input.ConfigError{Field: "end", Value: opts.End, Err: fmt.Errorf("must be after start %s", start.Format(time.DateTime))}
	}

	res := &MinuteResult{BarsResult: BarsResult{Data: map[string]*table.Bars{}}}
	if len(syms) == 0 {
		return res, nil
	}

	sess, client := o.session(log)
	defer sess.Close()

	first, err := client.FirstMinuteDay(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("find first minute day: %w", err)
	}
	if !first.Equal(start) {
		log.Info().Time("requested", start).Time("start", first).Msg("moved start to the first day with minute data")
	}

	res.Windows = yahoo.SplitWindows(first, end, yahoo.WindowWidth)
	items := make([]yahoo.WindowKey, 0, len(syms)*len(res.Windows))
	for _, sym := range syms {
		for j := range res.Windows {
			items = append(items, yahoo.WindowKey{Symbol: sym, Window: j})
		}
	}

	log.Info().
		Time("start", first).
		Time("end", end).
		Int("symbols", len(syms)).
		Int("windows", len(res.Windows)).
		Dur("spacing", o.Spacing).
		Msg("downloading minute bars")

	f := yahoo.NewMinuteFetcher(client, yahoo.MinuteQuery{
		Windows:        res.Windows,
		IncludePrePost: opts.IncludePrePost,
		IncludeSplit:   opts.IncludeSplit,
	})
	out := coordinator.Run(ctx, items, f, o.rounds(&log))

	res.Data = coordinator.AssembleWindows(out.Successes,
		func(k yahoo.WindowKey) (string, int) { return k.Symbol, k.Window },
		table.Concat)
	res.FailedWindows = out.Failed

	seen := make(map[string]bool)
	for _, k := range out.Failed {
		if !seen[k.Symbol] {
			seen[k.Symbol] = true
			res.Failed = append(res.Failed, k.Symbol)
		}
	}

	log.Info().Int("downloaded", len(res.Data)).Int("failed_windows", len(res.FailedWindows)).Msg("minute bars done")
	return res, cancelled(ctx)
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
