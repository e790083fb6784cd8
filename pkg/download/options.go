// Package download is the public entry point of yf-tools: bulk downloads of
// daily bars, minute bars, quotes, company details and screener symbol
// lists. Every call fans out one request per work item under a dispatch
// spacing, retries only the failed items for a bounded number of rounds and
// returns the merged successes together with the items that never succeeded.
package download

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"github.com/stoneagemcc/yf-tools/internal/coordinator"
	"github.com/stoneagemcc/yf-tools/internal/fetcher"
	"github.com/stoneagemcc/yf-tools/internal/ratelimit"
	"github.com/stoneagemcc/yf-tools/internal/yahoo"
)

// Endpoints are the provider base URLs
type Endpoints = yahoo.Endpoints

// Options are shared by every entry point. Start from the DefaultXOptions
// constructors: zero timeouts mean no limit and zero spacing means no
// throttling.
type Options struct {
	// Spacing is the minimum interval between two requests of a round
	Spacing time.Duration

	// Retries is the number of rounds after the first, each retrying only
	// the failed items
	Retries int

	// ConnectTimeout and ResponseTimeout bound every request
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration

	// MaxInFlight caps concurrent requests. Zero is unbounded.
	MaxInFlight int

	// RequestsPerSecond caps the request rate per endpoint across rounds.
	// Endpoints absent from the map are not capped.
	RequestsPerSecond map[ratelimit.API]float64

	// HTTPRetries is the number of transport-level retries per request
	HTTPRetries int

	// UserAgent overrides the default browser agent
	UserAgent string

	// Endpoints overrides the provider URLs. Empty fields keep the defaults.
	Endpoints Endpoints

	// Logger receives progress and failure reports. Nil disables logging.
	Logger *zerolog.Logger

	// Progress is called after each request of a round is sent
	Progress func(done, total int)

	// Clock drives the dispatch schedule and supplies "now" for default
	// dates. Nil means the wall clock.
	Clock ratelimit.Clock
}

func defaultOptions() Options {
	return Options{
		ConnectTimeout:  fetcher.DefaultConnectTimeout,
		ResponseTimeout: fetcher.DefaultResponseTimeout,
	}
}

// normalize clamps negative values to zero
func (o Options) normalize() Options {
	o.Spacing = max(o.Spacing, 0)
	o.Retries = max(o.Retries, 0)
	o.ConnectTimeout = max(o.ConnectTimeout, 0)
	o.ResponseTimeout = max(o.ResponseTimeout, 0)
	o.MaxInFlight = max(o.MaxInFlight, 0)
	o.HTTPRetries = max(o.HTTPRetries, 0)
	return o
}

func (o Options) logger(kind string) zerolog.Logger {
	l := zerolog.Nop()
	if o.Logger != nil {
		l = *o.Logger
	}
	return l.With().Str("kind", kind).Logger()
}

func (o Options) now() time.Time {
	if o.Clock != nil {
		return o.Clock.Now()
	}
	return time.Now()
}

// session opens the HTTP session and endpoint client of one call. The caller
// closes the returned session.
func (o Options) session(log zerolog.Logger) (*resty.Client, *yahoo.Client) {
	sess := fetcher.NewSession(fetcher.SessionConfig{
		ConnectTimeout:  o.ConnectTimeout,
		ResponseTimeout: o.ResponseTimeout,
		UserAgent:       o.UserAgent,
		RetryCount:      o.HTTPRetries,
		Logger:          log,
	})
	return sess, yahoo.NewClient(sess, ratelimit.NewLimiter(o.RequestsPerSecond), o.Endpoints)
}

func (o Options) rounds(log *zerolog.Logger) coordinator.Options {
	return coordinator.Options{
		Spacing:     o.Spacing,
		MaxRetries:  o.Retries,
		MaxInFlight: o.MaxInFlight,
		Clock:       o.Clock,
		Logger:      log,
		Progress:    o.Progress,
	}
}

// cancelled returns the cause of ctx once it is done
func cancelled(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return context.Cause(ctx)
}
