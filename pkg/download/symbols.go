package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stoneagemcc/yf-tools/internal/coordinator"
	"github.com/stoneagemcc/yf-tools/internal/yahoo"
)

// ListingURLProvider supplies the screener URL to list symbols from.
// Screener URLs expire, so providers may build a fresh one per call.
type ListingURLProvider interface {
	ListingURL(ctx context.Context) (string, error)
}

// StaticURL is a ListingURLProvider returning a fixed URL
type StaticURL string

// ListingURL implements ListingURLProvider
func (u StaticURL) ListingURL(ctx context.Context) (string, error) {
	if u == "" {
		return "", errors.New("empty screener URL")
	}
	return string(u), nil
}

// SymbolsResult holds a screener symbol list
type SymbolsResult struct {
	// Symbols are unique, in the order their pages were downloaded: pages
	// of earlier rounds first, by offset within a round
	Symbols []string

	// Total is the result count announced by the screener
	Total int

	// FailedOffsets lists the pages that never succeeded
	FailedOffsets []int
}

// DefaultListingSpacing is the default interval between screener page requests
const DefaultListingSpacing = 250 * time.Millisecond

// ListingOptions configures SymbolUniverse
type ListingOptions struct {
	Options

	// PageSize is the number of rows per page, clamped to [1, 250]
	PageSize int
}

// DefaultListingOptions returns the listing defaults
func DefaultListingOptions() ListingOptions {
	o := defaultOptions()
	o.Spacing = DefaultListingSpacing
	return ListingOptions{Options: o, PageSize: yahoo.MaxPageSize}
}

// SymbolUniverse lists every symbol of a screener. A first request learns
// the result count, then one request per page is made.
func SymbolUniverse(ctx context.Context, provider ListingURLProvider, opts ListingOptions) (*SymbolsResult, error) {
	o := opts.Options.normalize()
	log := o.logger("listing")
	pageSize := min(max(opts.PageSize, 1), yahoo.MaxPageSize)

	url, err := provider.ListingURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("get screener URL: %w", err)
	}

	sess, client := o.session(log)
	defer sess.Close()

	f := yahoo.NewListingFetcher(client, url, pageSize)
	total, err := f.Total(ctx)
	if err != nil {
		return nil, fmt.Errorf("read screener result count: %w", err)
	}

	offsets := f.Offsets(total)
	log.Info().
		Int("total", total).
		Int("pages", len(offsets)).
		Int("page_size", pageSize).
		Dur("spacing", o.Spacing).
		Msg("downloading screener pages")

	out := coordinator.Run(ctx, offsets, f, o.rounds(&log))

	res := &SymbolsResult{
		Symbols:       coordinator.AssembleOrdered(out.Successes, out.Succeeded),
		Total:         total,
		FailedOffsets: out.Failed,
	}
	log.Info().Int("symbols", len(res.Symbols)).Int("failed_pages", len(res.FailedOffsets)).Msg("screener listing done")
	return res, cancelled(ctx)
}
