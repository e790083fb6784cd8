package coordinator

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/stoneagemcc/yf-tools/internal/fetcher"
	"github.com/stoneagemcc/yf-tools/internal/metrics"
	"github.com/stoneagemcc/yf-tools/internal/ratelimit"
	"github.com/stoneagemcc/yf-tools/internal/testutil"
)

var epoch = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

func lengthOf(s string) int { return len(s) }

func TestRunRound_Partition(t *testing.T) {
	tests := []struct {
		name    string
		items   []string
		failing []string
	}{
		{name: "all succeed", items: []string{"AAPL", "MSFT", "GOOG"}},
		{name: "some fail", items: []string{"AAPL", "BAD1", "MSFT", "BAD2"}, failing: []string{"BAD1", "BAD2"}},
		{name: "all fail", items: []string{"BAD1", "BAD2"}, failing: []string{"BAD1", "BAD2"}},
		{name: "empty", items: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testutil.NewMockFetcher(lengthOf, tt.failing...)
			rr := RunRound(context.Background(), tt.items, f, nil, Options{})

			if got := len(rr.Successes) + len(rr.Failures); got != len(tt.items) {
				t.Errorf("successes+failures = %d, want %d", got, len(tt.items))
			}
			for _, item := range rr.Failures {
				if _, ok := rr.Successes[item]; ok {
					t.Errorf("item %q is both a success and a failure", item)
				}
				if !errors.Is(rr.Errors[item], testutil.ErrMockFetch) {
					t.Errorf("Errors[%q] = %v, want %v", item, rr.Errors[item], testutil.ErrMockFetch)
				}
			}
			if !reflect.DeepEqual(nonNil(rr.Failures), nonNil(tt.failing)) {
				t.Errorf("Failures = %v, want %v", rr.Failures, tt.failing)
			}
			for item, v := range rr.Successes {
				if v != len(item) {
					t.Errorf("Successes[%q] = %d, want %d", item, v, len(item))
				}
			}
		})
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func TestRunRound_DuplicatesCollapse(t *testing.T) {
	f := testutil.NewMockFetcher(lengthOf)
	rr := RunRound(context.Background(), []string{"A", "B", "A", "A"}, f, nil, Options{})

	if len(rr.Successes) != 2 {
		t.Errorf("len(Successes) = %d, want 2", len(rr.Successes))
	}
	if got := f.CallCount("A"); got != 1 {
		t.Errorf("CallCount(A) = %d, want 1", got)
	}
}

func TestRunRound_DispatchSchedule(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	spacing := 250 * time.Millisecond

	var mu sync.Mutex
	dispatchedAt := make(map[int]time.Time)
	f := &testutil.MockFetcher[int, int]{
		FetchFunc: func(ctx context.Context, item int) (int, error) {
			mu.Lock()
			dispatchedAt[item] = clock.Now()
			mu.Unlock()
			return item, nil
		},
	}

	items := []int{0, 1, 2, 3, 4, 5, 6, 7}
	rr := RunRound(context.Background(), items, f, nil, Options{Spacing: spacing, Clock: clock})
	if len(rr.Failures) != 0 {
		t.Fatalf("Failures = %v, want none", rr.Failures)
	}

	for i := range items {
		earliest := epoch.Add(spacing * time.Duration(i))
		if dispatchedAt[i].Before(earliest) {
			t.Errorf("item %d dispatched at %v, want >= %v", i, dispatchedAt[i], earliest)
		}
	}

	if got, want := clock.Now().Sub(epoch), spacing*time.Duration(len(items)-1); got != want {
		t.Errorf("round took %v on the fake clock, want %v", got, want)
	}
}

func TestRunRound_ZeroSpacingDoesNotSleep(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	f := testutil.NewMockFetcher(lengthOf)

	RunRound(context.Background(), []string{"A", "B", "C"}, f, nil, Options{Clock: clock})

	for _, d := range clock.Sleeps() {
		if d != 0 {
			t.Errorf("slept %v with zero spacing", d)
		}
	}
	if !clock.Now().Equal(epoch) {
		t.Errorf("clock moved to %v, want %v", clock.Now(), epoch)
	}
}

func TestRunRound_PanicIsFailure(t *testing.T) {
	f := &testutil.MockFetcher[string, int]{
		FetchFunc: func(ctx context.Context, item string) (int, error) {
			if item == "BOOM" {
				panic("decoder exploded")
			}
			return 1, nil
		},
	}

	rr := RunRound(context.Background(), []string{"OK", "BOOM"}, f, nil, Options{})

	if len(rr.Failures) != 1 || rr.Failures[0] != "BOOM" {
		t.Fatalf("Failures = %v, want [BOOM]", rr.Failures)
	}
	if err := rr.Errors["BOOM"]; err == nil || !strings.Contains(err.Error(), "decoder exploded") {
		t.Errorf("Errors[BOOM] = %v, want the panic value", err)
	}
	if _, ok := rr.Successes["OK"]; !ok {
		t.Error("OK missing from Successes")
	}
}

func TestRunRound_MaxInFlight(t *testing.T) {
	var inFlight, peak atomic.Int32
	f := &testutil.MockFetcher[int, int]{
		FetchFunc: func(ctx context.Context, item int) (int, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return item, nil
		},
	}

	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}
	rr := RunRound(context.Background(), items, f, nil, Options{MaxInFlight: 2})

	if len(rr.Successes) != len(items) {
		t.Errorf("len(Successes) = %d, want %d", len(rr.Successes), len(items))
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", p)
	}
}

func TestRunRound_Progress(t *testing.T) {
	var calls [][2]int
	opts := Options{Progress: func(done, total int) {
		calls = append(calls, [2]int{done, total})
	}}

	RunRound(context.Background(), []string{"A", "B", "C"}, testutil.NewMockFetcher(lengthOf), nil, opts)

	want := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("progress calls = %v, want %v", calls, want)
	}
}

func TestRunRound_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := testutil.NewMockFetcher(lengthOf)
	rr := RunRound(ctx, []string{"A", "B"}, f, nil, Options{Spacing: time.Second, Clock: testutil.NewFakeClock(epoch)})

	if len(rr.Failures) != 2 {
		t.Errorf("Failures = %v, want both items", rr.Failures)
	}
	if len(f.Calls()) != 0 {
		t.Errorf("fetch called %d times after cancel, want 0", len(f.Calls()))
	}
	if !errors.Is(rr.Errors["A"], context.Canceled) {
		t.Errorf("Errors[A] = %v, want context.Canceled", rr.Errors["A"])
	}
}

func TestRun_Converges(t *testing.T) {
	items := []string{"AAPL", "MSFT", "BAD1", "GOOG", "BAD2"}
	failing := []string{"BAD1", "BAD2"}

	for _, retries := range []int{0, 1, 3} {
		f := testutil.NewMockFetcher(lengthOf, failing...)
		out := Run(context.Background(), items, f, Options{MaxRetries: retries})

		want := map[string]int{"AAPL": 4, "MSFT": 4, "GOOG": 4}
		if !reflect.DeepEqual(out.Successes, want) {
			t.Errorf("retries=%d: Successes = %v, want %v", retries, out.Successes, want)
		}
		if !reflect.DeepEqual(out.Failed, failing) {
			t.Errorf("retries=%d: Failed = %v, want %v", retries, out.Failed, failing)
		}
		if out.Rounds != retries+1 {
			t.Errorf("retries=%d: Rounds = %d, want %d", retries, out.Rounds, retries+1)
		}
		if got := f.CallCount("BAD1"); got != retries+1 {
			t.Errorf("retries=%d: CallCount(BAD1) = %d, want %d", retries, got, retries+1)
		}
		if got := f.CallCount("AAPL"); got != 1 {
			t.Errorf("retries=%d: CallCount(AAPL) = %d, want 1", retries, got)
		}
	}
}

func TestRun_RetriesOnlyFailures(t *testing.T) {
	var mu sync.Mutex
	attempts := make(map[string]int)
	f := &testutil.MockFetcher[string, int]{
		FetchFunc: func(ctx context.Context, item string) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts[item]++
			if item == "FLAKY" && attempts[item] == 1 {
				return 0, fetcher.NewServerError(503)
			}
			return len(item), nil
		},
	}

	out := Run(context.Background(), []string{"A", "FLAKY", "B"}, f, Options{MaxRetries: 2})

	if len(out.Failed) != 0 {
		t.Errorf("Failed = %v, want none", out.Failed)
	}
	if out.Rounds != 2 {
		t.Errorf("Rounds = %d, want 2", out.Rounds)
	}
	if want := []string{"A", "B", "FLAKY"}; !reflect.DeepEqual(out.Succeeded, want) {
		t.Errorf("Succeeded = %v, want %v", out.Succeeded, want)
	}
	if got := f.Calls(); !reflect.DeepEqual(got[len(got)-1:], []string{"FLAKY"}) || len(got) != 4 {
		t.Errorf("Calls = %v, want three first-round calls then FLAKY", got)
	}
}

func TestRun_ZeroRetriesIsOneAttempt(t *testing.T) {
	f := testutil.NewMockFetcher(lengthOf, "X")
	out := Run(context.Background(), []string{"X"}, f, Options{MaxRetries: -5})

	if got := f.CallCount("X"); got != 1 {
		t.Errorf("CallCount(X) = %d, want 1", got)
	}
	if !reflect.DeepEqual(out.Failed, []string{"X"}) {
		t.Errorf("Failed = %v, want [X]", out.Failed)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	f := testutil.NewMockFetcher(lengthOf)
	out := Run(context.Background(), nil, f, Options{MaxRetries: 3})

	if len(out.Successes) != 0 || len(out.Failed) != 0 || out.Rounds != 0 {
		t.Errorf("Run(nil) = %+v, want empty outcome", out)
	}
}

func TestRun_Idempotent(t *testing.T) {
	items := []string{"A", "BB", "CCC", "BAD"}
	f := testutil.NewMockFetcher(lengthOf, "BAD")

	first := Run(context.Background(), items, f, Options{MaxRetries: 1})
	second := Run(context.Background(), items, f, Options{MaxRetries: 1})

	if !reflect.DeepEqual(first.Successes, second.Successes) {
		t.Errorf("Successes differ: %v vs %v", first.Successes, second.Successes)
	}
	if !reflect.DeepEqual(first.Failed, second.Failed) {
		t.Errorf("Failed differ: %v vs %v", first.Failed, second.Failed)
	}
}

func TestRun_DrainsBetweenRounds(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	f := testutil.NewMockFetcher(lengthOf, "BAD")

	Run(context.Background(), []string{"A", "B", "BAD"}, f, Options{
		Spacing:    time.Second,
		MaxRetries: 1,
		Clock:      clock,
	})

	// round 0 spans 2s, the drain slot adds 1s, round 1 has a single item
	if got := clock.Now().Sub(epoch); got != 3*time.Second {
		t.Errorf("elapsed = %v, want 3s", got)
	}
}

func TestRun_NoDrainAfterLastRound(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	f := testutil.NewMockFetcher(lengthOf, "BAD")

	Run(context.Background(), []string{"A", "BAD"}, f, Options{Spacing: time.Second, Clock: clock})

	if got := clock.Now().Sub(epoch); got != time.Second {
		t.Errorf("elapsed = %v, want 1s", got)
	}
}

func TestRun_Metrics(t *testing.T) {
	kind := "coordinator_metrics_test"
	f := testutil.NewMockFetcher(lengthOf, "BAD")
	f.KindName = kind

	Run(context.Background(), []string{"A", "B", "BAD"}, f, Options{MaxRetries: 2})

	if got := promtest.ToFloat64(metrics.RoundsTotal.WithLabelValues(kind)); got != 3 {
		t.Errorf("rounds = %v, want 3", got)
	}
	if got := promtest.ToFloat64(metrics.ItemsTotal.WithLabelValues(kind, metrics.OutcomeSuccess)); got != 2 {
		t.Errorf("successes = %v, want 2", got)
	}
	if got := promtest.ToFloat64(metrics.ItemsTotal.WithLabelValues(kind, metrics.OutcomeFailure)); got != 3 {
		t.Errorf("failures = %v, want 3", got)
	}
	if got := promtest.ToFloat64(metrics.DroppedTotal.WithLabelValues(kind)); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
}

type window struct {
	symbol string
	index  int
}

func TestAssembleWindows_OrderIndependentOfCompletion(t *testing.T) {
	// later windows finish first
	f := &testutil.MockFetcher[window, []int]{
		FetchFunc: func(ctx context.Context, w window) ([]int, error) {
			time.Sleep(time.Duration(5-w.index) * 3 * time.Millisecond)
			return []int{w.index * 10, w.index*10 + 1}, nil
		},
	}

	var items []window
	for _, sym := range []string{"AAPL", "MSFT"} {
		for i := 0; i < 5; i++ {
			items = append(items, window{symbol: sym, index: i})
		}
	}

	out := Run(context.Background(), items, f, Options{})
	merged := AssembleWindows(out.Successes,
		func(w window) (string, int) { return w.symbol, w.index },
		func(parts [][]int) []int {
			var all []int
			for _, p := range parts {
				all = append(all, p...)
			}
			return all
		})

	want := []int{0, 1, 10, 11, 20, 21, 30, 31, 40, 41}
	for _, sym := range []string{"AAPL", "MSFT"} {
		if !reflect.DeepEqual(merged[sym], want) {
			t.Errorf("merged[%s] = %v, want %v", sym, merged[sym], want)
		}
	}
}

func TestAssembleWindows_MissingPart(t *testing.T) {
	successes := map[window]string{
		{"AAPL", 2}: "c",
		{"AAPL", 0}: "a",
	}
	merged := AssembleWindows(successes,
		func(w window) (string, int) { return w.symbol, w.index },
		func(parts []string) string { return strings.Join(parts, "") })

	if merged["AAPL"] != "ac" {
		t.Errorf("merged[AAPL] = %q, want %q", merged["AAPL"], "ac")
	}
}

type quote struct {
	Symbol string
	Price  float64
}

func TestAssembleGroups(t *testing.T) {
	successes := map[string][]quote{
		"AAPL,MSFT": {{"AAPL", 1}, {"MSFT", 2}},
		"GOOG":      {{"GOOG", 3}, {"AAPL", 99}},
		"NOPE":      {},
	}
	order := []string{"AAPL,MSFT", "GOOG", "NOPE", "MISSING"}

	got := AssembleGroups(successes, order, func(q quote) string { return q.Symbol })

	keys := make([]string, 0, len(got))
	for k := range got {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if !reflect.DeepEqual(keys, []string{"AAPL", "GOOG", "MSFT"}) {
		t.Errorf("keys = %v, want [AAPL GOOG MSFT]", keys)
	}
	if got["AAPL"].Price != 1 {
		t.Errorf("AAPL price = %v, want 1 (first group wins)", got["AAPL"].Price)
	}
}

func TestAssembleOrdered(t *testing.T) {
	successes := map[int][]string{
		250: {"MSFT", "AAPL", "TSLA"},
		0:   {"AAPL", "GOOG"},
	}
	got := AssembleOrdered(successes, []int{0, 250, 500})

	want := []string{"AAPL", "GOOG", "MSFT", "TSLA"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AssembleOrdered = %v, want %v", got, want)
	}
}

func TestRunRound_SharedSchedule(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	sched := ratelimit.NewSchedule(clock, time.Second)
	clock.Advance(10 * time.Second)

	// Reset moves t0 so the first item is not delayed by stale time
	RunRound(context.Background(), []string{"A", "B"}, testutil.NewMockFetcher(lengthOf), sched, Options{})

	if !sched.Start().Equal(epoch.Add(10 * time.Second)) {
		t.Errorf("schedule start = %v, want %v", sched.Start(), epoch.Add(10*time.Second))
	}
	if got := clock.Now().Sub(epoch); got != 11*time.Second {
		t.Errorf("elapsed = %v, want 11s", got)
	}
}
