package fetcher

import "context"

// Fetcher is the core interface that every unit fetcher implements.
// A fetcher performs one network request for one unit of work (a symbol,
// a symbol window, a symbol group or a page offset) and decodes the response
// into a record. Implementations must be safe for concurrent use: all tasks
// of one download share a single session.
type Fetcher[K comparable, R any] interface {
	// Fetch retrieves and decodes the data for one work item.
	// Any returned error marks the item as failed for the current round.
	Fetch(ctx context.Context, item K) (R, error)

	// Kind names the data kind for logs and metrics.
	// Examples: daily, minute, quote, detail, listing
	Kind() string
}
