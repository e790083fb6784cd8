package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/stoneagemcc/yf-tools/internal/table"
	"github.com/stoneagemcc/yf-tools/pkg/download"
)

// --- Daily Command ---

func (a *app) dailyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daily [symbols...]",
		Short: "Download split-adjusted daily bars",
		Long: `Download daily OHLCV bars, one request per symbol. Without dates the
whole history up to today is downloaded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd, map[string]string{"spacing.daily": "spacing", "retries": "retries"}); err != nil {
				return err
			}
			symbols, err := a.symbols(cmd, args)
			if err != nil {
				return err
			}

			f := cmd.Flags()
			raw, _ := f.GetBool("raw")
			reinvest, _ := f.GetBool("reinvest")

			opts := download.DefaultDailyOptions()
			opts.Options = a.options(cmd, "spacing.daily", "retries")
			opts.Start, _ = f.GetString("start")
			opts.End, _ = f.GetString("end")
			opts.IncludeActions, _ = f.GetBool("actions")
			opts.IncludeAdjustedClose, _ = f.GetBool("adjclose")
			if raw || reinvest {
				opts.IncludeActions = true
			}

			res, err := download.DailyBars(cmd.Context(), symbols, opts)
			if res == nil {
				return err
			}

			for sym, b := range res.Data {
				switch {
				case raw:
					res.Data[sym] = table.RecoverFromSplit(b)
				case reinvest:
					applyFactors(b, table.DividendAdjustment(b))
				}
			}

			if werr := a.write(cmd, func(w io.Writer) error { return table.WriteBars(w, res.Data) }); werr != nil {
				return werr
			}
			a.reportFailed("symbols", res.Failed)
			return a.finish(cmd, err)
		},
	}

	f := cmd.Flags()
	f.String("start", "", "first date (YYYY-MM-DD or epoch seconds, default 1900-01-01)")
	f.String("end", "", "end date, exclusive (default tomorrow)")
	f.Bool("actions", false, "add dividend and split columns")
	f.Bool("adjclose", true, "add the adjusted close column")
	f.Bool("raw", false, "undo the split adjustment (implies --actions)")
	f.Bool("reinvest", false, "scale prices for reinvested dividends (implies --actions)")
	f.Duration("spacing", 0, "minimum interval between requests")
	f.Int("retries", 0, "retry rounds for failed symbols")
	cmd.MarkFlagsMutuallyExclusive("raw", "reinvest")
	return cmd
}

// applyFactors multiplies the prices of every row by its factor
func applyFactors(b *table.Bars, factors []float64) {
	for i := range b.Rows {
		r := &b.Rows[i]
		r.Open *= factors[i]
		r.High *= factors[i]
		r.Low *= factors[i]
		r.Close *= factors[i]
	}
}

// --- Minute Command ---

func (a *app) minuteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "minute [symbols...]",
		Short: "Download minute bars of the last month",
		Long: `Download raw minute bars in 7-day windows. Only about a month of minute
data is kept by the provider, so the start is clamped to 32 days ago and
moved to the first day that has data.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd, map[string]string{"spacing.minute": "spacing", "retries": "retries"}); err != nil {
				return err
			}
			symbols, err := a.symbols(cmd, args)
			if err != nil {
				return err
			}

			f := cmd.Flags()
			opts := download.DefaultMinuteOptions()
			opts.Options = a.options(cmd, "spacing.minute", "retries")
			opts.Start, _ = f.GetString("start")
			opts.End, _ = f.GetString("end")
			opts.IncludePrePost, _ = f.GetBool("prepost")
			opts.IncludeSplit, _ = f.GetBool("split")

			res, err := download.MinuteBars(cmd.Context(), symbols, opts)
			if res == nil {
				return err
			}

			if werr := a.write(cmd, func(w io.Writer) error { return table.WriteBars(w, res.Data) }); werr != nil {
				return werr
			}
			windows := make([]string, len(res.FailedWindows))
			for i, k := range res.FailedWindows {
				windows[i] = k.String()
			}
			a.reportFailed("windows", windows)
			return a.finish(cmd, err)
		},
	}

	f := cmd.Flags()
	f.String("start", "", "first time (default 32 days ago)")
	f.String("end", "", "end time, exclusive (default now)")
	f.Bool("prepost", false, "include pre and post market bars")
	f.Bool("split", false, "add the split column")
	f.Duration("spacing", 0, "minimum interval between requests")
	f.Int("retries", 0, "retry rounds for failed windows")
	return cmd
}

// --- Quotes Command ---

func (a *app) quotesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quotes [symbols...]",
		Short: "Download current quotes, many symbols per request",
		RunE: func(cmd *cobra.Command, args []string) error {
			bindings := map[string]string{
				"spacing.quote":  "spacing",
				"quote_retries":  "retries",
				"max_url_length": "max-url-length",
			}
			if err := a.setup(cmd, bindings); err != nil {
				return err
			}
			symbols, err := a.symbols(cmd, args)
			if err != nil {
				return err
			}

			opts := download.DefaultQuoteOptions()
			opts.Options = a.options(cmd, "spacing.quote", "quote_retries")
			opts.MaxURLLength = a.cfg.MaxURLLength

			res, err := download.Quotes(cmd.Context(), symbols, opts)
			if res == nil {
				return err
			}

			if werr := a.write(cmd, func(w io.Writer) error { return table.WriteRecords(w, "symbol", res.Data) }); werr != nil {
				return werr
			}
			a.reportFailed("symbols", res.Failed)
			return a.finish(cmd, err)
		},
	}

	f := cmd.Flags()
	f.Int("max-url-length", 0, "maximum request URL length")
	f.Duration("spacing", 0, "minimum interval between requests")
	f.Int("retries", 0, "retry rounds for failed requests")
	return cmd
}

// --- Details Command ---

func (a *app) detailsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "details [symbols...]",
		Short: "Download company details from quote pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd, map[string]string{"spacing.detail": "spacing", "retries": "retries"}); err != nil {
				return err
			}
			symbols, err := a.symbols(cmd, args)
			if err != nil {
				return err
			}

			opts := download.DefaultDetailOptions()
			opts.Options = a.options(cmd, "spacing.detail", "retries")

			res, err := download.CompanyDetails(cmd.Context(), symbols, opts)
			if res == nil {
				return err
			}

			if werr := a.write(cmd, func(w io.Writer) error { return table.WriteRecords(w, "symbol", res.Data) }); werr != nil {
				return werr
			}
			a.reportFailed("symbols", res.Failed)
			return a.finish(cmd, err)
		},
	}

	f := cmd.Flags()
	f.Duration("spacing", 0, "minimum interval between requests")
	f.Int("retries", 0, "retry rounds for failed symbols")
	return cmd
}

// --- Symbols Command ---

func (a *app) symbolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "symbols [screener-url]",
		Short: "List every symbol of a screener",
		Long: `List the symbols of a saved screener page by page. The URL is taken from
the argument or the screener_url setting.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindings := map[string]string{
				"spacing.listing": "spacing",
				"retries":         "retries",
				"page_size":       "page-size",
			}
			if err := a.setup(cmd, bindings); err != nil {
				return err
			}

			url := a.cfg.ScreenerURL
			if len(args) == 1 {
				url = args[0]
			}

			opts := download.DefaultListingOptions()
			opts.Options = a.options(cmd, "spacing.listing", "retries")
			opts.PageSize = a.cfg.PageSize

			res, err := download.SymbolUniverse(cmd.Context(), download.StaticURL(url), opts)
			if res == nil {
				return err
			}

			if werr := a.write(cmd, func(w io.Writer) error { return table.WriteSymbols(w, res.Symbols) }); werr != nil {
				return werr
			}
			offsets := make([]string, len(res.FailedOffsets))
			for i, off := range res.FailedOffsets {
				offsets[i] = fmt.Sprint(off)
			}
			a.reportFailed("page offsets", offsets)
			return a.finish(cmd, err)
		},
	}

	f := cmd.Flags()
	f.Int("page-size", 0, "rows per screener page (1-250)")
	f.Duration("spacing", 0, "minimum interval between requests")
	f.Int("retries", 0, "retry rounds for failed pages")
	return cmd
}

// symbols collects the symbols given as arguments and from --symbols-file
func (a *app) symbols(cmd *cobra.Command, args []string) ([]string, error) {
	symbols := append([]string(nil), args...)

	path, _ := cmd.Flags().GetString("symbols-file")
	if path != "" {
		r := a.stdin
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("open symbols file: %w", err)
			}
			defer f.Close()
			r = f
		}

		fromFile, err := table.ReadSymbols(r)
		if err != nil {
			return nil, fmt.Errorf("read symbols file: %w", err)
		}
		symbols = append(symbols, fromFile...)
	}

	if len(symbols) == 0 {
		return nil, errors.New("no symbols given: pass them as arguments or with --symbols-file")
	}
	return symbols, nil
}

// write renders the result to --output
func (a *app) write(cmd *cobra.Command, render func(io.Writer) error) error {
	path, _ := cmd.Flags().GetString("output")
	if path == "" || path == "-" {
		return render(a.stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// reportFailed prints the items that never succeeded
func (a *app) reportFailed(what string, failed []string) {
	if len(failed) == 0 {
		return
	}
	fmt.Fprintf(a.stderr, "failed %s (%d): %s\n", what, len(failed), strings.Join(failed, ", "))
}

// finish writes the metrics file when asked for and passes err through
func (a *app) finish(cmd *cobra.Command, err error) error {
	path, _ := cmd.Flags().GetString("metrics-out")
	if path != "" {
		if merr := writeMetrics(path, prometheus.DefaultGatherer); merr != nil {
			a.log.Error().Err(merr).Str("path", path).Msg("failed to write metrics")
		}
	}
	return err
}

// writeMetrics dumps every gathered family in the text exposition format
func writeMetrics(path string, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			f.Close()
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return f.Close()
}
