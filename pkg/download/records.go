package download

import (
	"context"
	"time"

	"github.com/stoneagemcc/yf-tools/internal/coordinator"
	"github.com/stoneagemcc/yf-tools/internal/input"
	"github.com/stoneagemcc/yf-tools/internal/table"
	"github.com/stoneagemcc/yf-tools/internal/yahoo"
)

// DefaultMaxURLLength bounds the length of a quote request URL
const DefaultMaxURLLength = 8000

// RecordsResult holds one flat record per symbol
type RecordsResult struct {
	Data table.Records

	// Failed lists the requested symbols whose request never succeeded
	Failed []string
}

// QuoteOptions configures Quotes
type QuoteOptions struct {
	Options

	// MaxURLLength bounds every request URL, values below 1 count as 1.
	// Symbols are packed into as few requests as fit.
	MaxURLLength int
}

// DefaultQuoteOptions returns the quote download defaults
func DefaultQuoteOptions() QuoteOptions {
	o := defaultOptions()
	o.Retries = 1
	return QuoteOptions{Options: o, MaxURLLength: DefaultMaxURLLength}
}

// Quotes downloads the current quote of every symbol, many symbols per
// request. Repeated symbols are requested as often as given. Records are
// keyed by the symbol the provider reports; symbols it does not know are
// absent without counting as failures.
func Quotes(ctx context.Context, symbols []string, opts QuoteOptions) (*RecordsResult, error) {
	o := opts.Options.normalize()
	log := o.logger("quote")

	syms := input.SplitSymbols(symbols, true)
	res := &RecordsResult{Data: table.Records{}}
	if len(syms) == 0 {
		return res, nil
	}

	sess, client := o.session(log)
	defer sess.Close()

	f := yahoo.NewQuoteFetcher(client)
	budget := max(opts.MaxURLLength, 1) - len(f.URLPrefix())
	groups := yahoo.GroupSymbols(syms, budget)

	log.Info().
		Int("symbols", len(syms)).
		Int("requests", len(groups)).
		Dur("spacing", o.Spacing).
		Msg("downloading quotes")

	out := coordinator.Run(ctx, groups, f, o.rounds(&log))

	merged := coordinator.AssembleGroups(out.Successes, groups, func(r table.Record) string {
		return r.String("symbol")
	})
	for k, rec := range merged {
		res.Data[k] = rec
	}
	for _, g := range out.Failed {
		res.Failed = append(res.Failed, g.Symbols()...)
	}

	log.Info().Int("downloaded", len(res.Data)).Int("failed", len(res.Failed)).Msg("quotes done")
	return res, cancelled(ctx)
}

// DefaultDetailSpacing is the default interval between quote page requests
const DefaultDetailSpacing = 250 * time.Millisecond

// DetailOptions configures CompanyDetails
type DetailOptions struct {
	Options
}

// DefaultDetailOptions returns the company details defaults
func DefaultDetailOptions() DetailOptions {
	o := defaultOptions()
	o.Spacing = DefaultDetailSpacing
	return DetailOptions{Options: o}
}

// CompanyDetails downloads the quote page of every symbol and extracts the
// company details embedded in it. Symbols are used as given.
func CompanyDetails(ctx context.Context, symbols []string, opts DetailOptions) (*RecordsResult, error) {
	o := opts.Options.normalize()
	log := o.logger("detail")

	syms := input.ParseSymbols(symbols, false)
	res := &RecordsResult{Data: table.Records{}}
	if len(syms) == 0 {
		return res, nil
	}

	log.Info().Int("symbols", len(syms)).Dur("spacing", o.Spacing).Msg("downloading company details")

	sess, client := o.session(log)
	defer sess.Close()

	out := coordinator.Run(ctx, syms, yahoo.NewDetailsFetcher(client), o.rounds(&log))

	for sym, rec := range out.Successes {
		res.Data[sym] = rec
	}
	res.Failed = out.Failed

	log.Info().Int("downloaded", len(res.Data)).Int("failed", len(res.Failed)).Msg("company details done")
	return res, cancelled(ctx)
}
