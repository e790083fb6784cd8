package yahoo

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stoneagemcc/yf-tools/internal/fetcher"
	"github.com/stoneagemcc/yf-tools/internal/ratelimit"
	"github.com/stoneagemcc/yf-tools/internal/table"
)

// QuoteSymbolsParam is appended to the quote endpoint, before the symbols
const QuoteSymbolsParam = "?symbols="

// SymbolGroup is the work item of a quote download: comma-joined symbols
// requested together. Index tells apart groups holding the same symbols.
type SymbolGroup struct {
	Index  int
	Joined string
}

// Symbols splits the group back into its symbols
func (g SymbolGroup) Symbols() []string {
	if g.Joined == "" {
		return nil
	}
	return strings.Split(g.Joined, ",")
}

func (g SymbolGroup) String() string {
	return fmt.Sprintf("%d:%s", g.Index, g.Joined)
}

// GroupSymbols packs symbols, in order, into groups whose comma-joined
// length fits budget. A symbol longer than the budget gets a group of its own.
// Repeated symbols are kept, each in the group its position falls into.
func GroupSymbols(symbols []string, budget int) []SymbolGroup {
	var (
		groups []SymbolGroup
		cur    strings.Builder
		count  int
	)
	flush := func() {
		if count > 0 {
			groups = append(groups, SymbolGroup{Index: len(groups), Joined: cur.String()})
			cur.Reset()
			count = 0
		}
	}

	for _, s := range symbols {
		if count > 0 && cur.Len()+1+len(s) > budget {
			flush()
		}
		if count > 0 {
			cur.WriteByte(',')
		}
		cur.WriteString(s)
		count++
	}
	flush()
	return groups
}

// QuoteFetcher downloads the quotes of one symbol group per request
type QuoteFetcher struct {
	client *Client
}

// NewQuoteFetcher creates a quote fetcher
func NewQuoteFetcher(client *Client) *QuoteFetcher {
	return &QuoteFetcher{client: client}
}

// Kind implements the Fetcher interface
func (f *QuoteFetcher) Kind() string {
	return "quote"
}

// URLPrefix returns the part of a quote URL that precedes the symbols
func (f *QuoteFetcher) URLPrefix() string {
	return f.client.endpoints.Quote + QuoteSymbolsParam
}

// Fetch implements the Fetcher interface
func (f *QuoteFetcher) Fetch(ctx context.Context, group SymbolGroup) ([]table.Record, error) {
	body, err := f.client.get(ctx, ratelimit.APIQuote, f.URLPrefix()+group.Joined, nil)
	if err != nil {
		return nil, err
	}
	return DecodeQuotes(body)
}

// DecodeQuotes returns the records of quoteResponse.result. Symbols the
// provider does not know are simply absent, so an empty result is valid.
func DecodeQuotes(body []byte) ([]table.Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, fetcher.NewDecodeError("quote response is not valid JSON", nil)
	}

	if e := gjson.GetBytes(body, "quoteResponse.error"); e.Exists() && e.Type != gjson.Null {
		return nil, fetcher.NewDecodeError("quote error: "+e.Get("description").String(), nil)
	}

	result := gjson.GetBytes(body, "quoteResponse.result")
	if !result.IsArray() {
		return nil, fetcher.NewDecodeError("quote response has no result list", nil)
	}

	var records []table.Record
	result.ForEach(func(_, item gjson.Result) bool {
		if m, ok := item.Value().(map[string]any); ok {
			records = append(records, table.Record(m))
		}
		return true
	})
	return records, nil
}

var _ fetcher.Fetcher[SymbolGroup, []table.Record] = (*QuoteFetcher)(nil)
