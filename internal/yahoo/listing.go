package yahoo

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/stoneagemcc/yf-tools/internal/fetcher"
	"github.com/stoneagemcc/yf-tools/internal/ratelimit"
)

// MaxPageSize is the most rows a screener page serves
const MaxPageSize = 250

var (
	totalPattern  = regexp.MustCompile(` of ([0-9]+) results`)
	symbolPattern = regexp.MustCompile(`^[-^=.A-Z0-9]+$`)
)

// ListingFetcher downloads one screener page per request, identified by its
// row offset
type ListingFetcher struct {
	client   *Client
	url      string
	pageSize int
}

// NewListingFetcher creates a listing fetcher for a screener URL
func NewListingFetcher(client *Client, url string, pageSize int) *ListingFetcher {
	return &ListingFetcher{client: client, url: url, pageSize: pageSize}
}

// Kind implements the Fetcher interface
func (f *ListingFetcher) Kind() string {
	return "listing"
}

// Fetch implements the Fetcher interface
func (f *ListingFetcher) Fetch(ctx context.Context, offset int) ([]string, error) {
	body, err := f.client.get(ctx, ratelimit.APIScreener, f.url, map[string]string{
		"offset": strconv.Itoa(offset),
		"count":  strconv.Itoa(f.pageSize),
	})
	if err != nil {
		return nil, err
	}
	return DecodeListing(body)
}

// Total downloads the first screener page and returns the announced number
// of results
func (f *ListingFetcher) Total(ctx context.Context) (int, error) {
	body, err := f.client.get(ctx, ratelimit.APIScreener, f.url, nil)
	if err != nil {
		return 0, err
	}
	return DecodeTotal(body)
}

// Offsets returns the page offsets covering total rows
func (f *ListingFetcher) Offsets(total int) []int {
	var out []int
	for off := 0; off < total; off += f.pageSize {
		out = append(out, off)
	}
	return out
}

// DecodeTotal reads the "of N results" counter of a screener page
func DecodeTotal(page []byte) (int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return 0, fetcher.NewDecodeError("parse screener page", err)
	}

	m := totalPattern.FindStringSubmatch(doc.Text())
	if m == nil {
		return 0, fetcher.NewDecodeError("screener page has no result count", nil)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fetcher.NewDecodeError("bad result count "+m[1], err)
	}
	return n, nil
}

// DecodeListing returns the symbols of a screener page, in page order: the
// text of every link that is directly followed by a div and looks like a
// ticker. A page without symbols is an error.
func DecodeListing(page []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fetcher.NewDecodeError("parse screener page", err)
	}

	var symbols []string
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		text := a.Text()
		if !symbolPattern.MatchString(text) {
			return
		}
		next := a.Next()
		if goquery.NodeName(next) != "div" || !next.Is("[class]") {
			return
		}
		symbols = append(symbols, strings.TrimSpace(text))
	})

	if len(symbols) == 0 {
		return nil, fetcher.NewDecodeError("screener page has no symbols", nil)
	}
	return symbols, nil
}
