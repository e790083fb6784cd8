package coordinator

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/stoneagemcc/yf-tools/internal/fetcher"
	"github.com/stoneagemcc/yf-tools/internal/metrics"
	"github.com/stoneagemcc/yf-tools/internal/ratelimit"
)

// Options configures the rounds run by RunRound and Run
type Options struct {
	// Spacing is the minimum interval between consecutive dispatches in a
	// round. Zero dispatches everything at once.
	Spacing time.Duration

	// MaxRetries is the number of extra rounds after round 0
	MaxRetries int

	// MaxInFlight caps concurrently running fetch tasks. Zero is unbounded.
	MaxInFlight int

	// Clock drives the dispatch schedule. Nil means the wall clock.
	Clock ratelimit.Clock

	// Logger receives per-round progress. Nil means no logging.
	Logger *zerolog.Logger

	// Progress is called after every dispatch with the number of tasks
	// dispatched so far in the round and the round size.
	Progress func(done, total int)
}

func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

// RoundResult partitions the items of one round.
// Every input item appears in exactly one of Successes and Failures.
type RoundResult[K comparable, R any] struct {
	Successes map[K]R

	// Failures keeps input order
	Failures []K

	// Errors holds the error of every failed item
	Errors map[K]error
}

// Outcome is what Run returns once the retry loop has stopped
type Outcome[K comparable, R any] struct {
	// Successes accumulated over every round
	Successes map[K]R

	// Succeeded lists the keys of Successes by round, then by input order
	// within the round
	Succeeded []K

	// Failed lists the items that never succeeded, in last-round order
	Failed []K

	// Rounds is the number of rounds actually run
	Rounds int
}

// RunRound executes one round: item i is dispatched no earlier than
// t0 + spacing*i, every dispatched task is awaited once, then the results are
// split into successes and failures. A nil schedule is built from opts.
// Duplicate items collapse to their first position. When ctx is cancelled
// the remaining items are not dispatched and count as failures.
func RunRound[K comparable, R any](ctx context.Context, items []K, f fetcher.Fetcher[K, R], sched *ratelimit.Schedule, opts Options) RoundResult[K, R] {
	items = dedupe(items)
	if sched == nil {
		sched = ratelimit.NewSchedule(opts.Clock, opts.Spacing)
	}
	sched.Reset()

	results := make([]fetcher.Result[K, R], len(items))
	p := pool.New()
	if opts.MaxInFlight > 0 {
		p = p.WithMaxGoroutines(opts.MaxInFlight)
	}

	dispatched := 0
	for i, item := range items {
		if err := sched.Wait(ctx, i); err != nil {
			break
		}
		p.Go(func() {
			results[i] = runTask(ctx, f, item)
		})
		dispatched++
		if opts.Progress != nil {
			opts.Progress(dispatched, len(items))
		}
	}
	p.Wait()

	for i := dispatched; i < len(items); i++ {
		results[i] = fetcher.Result[K, R]{Item: items[i], Error: context.Cause(ctx)}
	}

	rr := RoundResult[K, R]{
		Successes: make(map[K]R, len(items)),
		Errors:    make(map[K]error),
	}
	for _, res := range results {
		if res.OK() {
			rr.Successes[res.Item] = res.Value
			continue
		}
		rr.Failures = append(rr.Failures, res.Item)
		rr.Errors[res.Item] = res.Error
	}
	return rr
}

// runTask performs one fetch and converts a panic into an error
func runTask[K comparable, R any](ctx context.Context, f fetcher.Fetcher[K, R], item K) fetcher.Result[K, R] {
	res := fetcher.Result[K, R]{Item: item}
	start := time.Now()

	if recovered := panics.Try(func() {
		res.Value, res.Error = f.Fetch(ctx, item)
	}); recovered != nil {
		var zero R
		res.Value = zero
		res.Error = recovered.AsError()
	}

	metrics.ObserveFetch(f.Kind(), time.Since(start), res.Error)
	return res
}

// Run drives rounds until every item succeeded or MaxRetries extra rounds
// were spent. Round 0 covers items, each later round only the previous
// round's failures. The schedule restarts every round, and one extra spacing
// slot is waited before a round that follows a partial failure.
func Run[K comparable, R any](ctx context.Context, items []K, f fetcher.Fetcher[K, R], opts Options) Outcome[K, R] {
	log := opts.logger().With().Str("kind", f.Kind()).Logger()
	retries := max(opts.MaxRetries, 0)
	sched := ratelimit.NewSchedule(opts.Clock, opts.Spacing)

	out := Outcome[K, R]{Successes: make(map[K]R, len(items))}
	pending := dedupe(items)

	for round := 0; len(pending) > 0 && round <= retries; round++ {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Int("round", round).Msg("download cancelled")
			break
		}

		log.Info().Int("round", round).Int("pending", len(pending)).Msg("starting round")
		rr := RunRound(ctx, pending, f, sched, opts)
		metrics.ObserveRound(f.Kind())
		out.Rounds++

		for _, k := range pending {
			v, ok := rr.Successes[k]
			if !ok {
				continue
			}
			if _, seen := out.Successes[k]; !seen {
				out.Successes[k] = v
				out.Succeeded = append(out.Succeeded, k)
			}
		}

		if len(rr.Failures) > 0 {
			ev := log.Info().
				Int("round", round).
				Int("succeeded", len(rr.Successes)).
				Int("failed", len(rr.Failures)).
				Interface("items", rr.Failures)
			if err := rr.Errors[rr.Failures[0]]; err != nil {
				t := fetcher.TypeOf(err)
				ev = ev.Str("first_error_type", string(t)).
					Bool("first_error_retryable", t.Retryable()).
					AnErr("first_error", err)
			}
			ev.Msg("round finished with failures")

			if round < retries {
				if err := sched.Drain(ctx, len(pending)); err != nil {
					pending = rr.Failures
					break
				}
			}
		}
		pending = rr.Failures
	}

	out.Failed = pending
	if len(out.Failed) > 0 {
		metrics.ObserveDropped(f.Kind(), len(out.Failed))
		log.Warn().
			Int("failed", len(out.Failed)).
			Interface("items", out.Failed).
			Msg("items dropped after the last round")
	}
	return out
}

// AssembleWindows groups multi-part successes by their parent key and merges
// each group's parts in ascending part index, whatever order they completed
// in. split returns the parent key and part index of a work item.
func AssembleWindows[K comparable, S comparable, R any](successes map[K]R, split func(K) (S, int), merge func([]R) R) map[S]R {
	type part struct {
		index int
		value R
	}

	grouped := make(map[S][]part)
	for k, v := range successes {
		parent, index := split(k)
		grouped[parent] = append(grouped[parent], part{index: index, value: v})
	}

	out := make(map[S]R, len(grouped))
	for parent, parts := range grouped {
		sort.Slice(parts, func(a, b int) bool { return parts[a].index < parts[b].index })
		values := make([]R, len(parts))
		for i, p := range parts {
			values[i] = p.value
		}
		out[parent] = merge(values)
	}
	return out
}

// AssembleGroups flattens the record lists of group successes into one map
// keyed by a field of each record. Groups are visited in the given order and
// the first record seen for a key wins.
func AssembleGroups[G comparable, T any](successes map[G][]T, order []G, key func(T) string) map[string]T {
	out := make(map[string]T)
	for _, g := range order {
		records, ok := successes[g]
		if !ok {
			continue
		}
		for _, rec := range records {
			k := key(rec)
			if k == "" {
				continue
			}
			if _, seen := out[k]; !seen {
				out[k] = rec
			}
		}
	}
	return out
}

// AssembleOrdered concatenates list successes in the given key order,
// keeping the first occurrence of each element.
func AssembleOrdered[K comparable, T comparable](successes map[K][]T, order []K) []T {
	seen := make(map[T]bool)
	var out []T
	for _, k := range order {
		for _, v := range successes[k] {
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func dedupe[K comparable](items []K) []K {
	seen := make(map[K]bool, len(items))
	out := make([]K, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
