package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stoneagemcc/yf-tools/internal/fetcher"
)

// ErrMockFetch is returned by mock fetchers for items scripted to fail
var ErrMockFetch = errors.New("mock fetch failed")

// MockFetcher is a mock implementation of the Fetcher interface for testing.
// It records every call so tests can assert how often an item was fetched.
type MockFetcher[K comparable, R any] struct {
	FetchFunc func(ctx context.Context, item K) (R, error)
	KindName  string

	mu    sync.Mutex
	calls []K
}

// Fetch implements the Fetcher interface
func (m *MockFetcher[K, R]) Fetch(ctx context.Context, item K) (R, error) {
	m.mu.Lock()
	m.calls = append(m.calls, item)
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, item)
	}
	var zero R
	return zero, nil
}

// Kind implements the Fetcher interface
func (m *MockFetcher[K, R]) Kind() string {
	if m.KindName != "" {
		return m.KindName
	}
	return "mock"
}

// Calls returns the items fetched so far, in call order
func (m *MockFetcher[K, R]) Calls() []K {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]K(nil), m.calls...)
}

// CallCount returns how many times item was fetched
func (m *MockFetcher[K, R]) CallCount(item K) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.calls {
		if c == item {
			n++
		}
	}
	return n
}

// NewMockFetcher creates a mock fetcher that fails for every item in failing
// and returns value(item) for the rest.
func NewMockFetcher[K comparable, R any](value func(K) R, failing ...K) *MockFetcher[K, R] {
	fail := make(map[K]bool, len(failing))
	for _, item := range failing {
		fail[item] = true
	}

	return &MockFetcher[K, R]{
		FetchFunc: func(ctx context.Context, item K) (R, error) {
			if fail[item] {
				var zero R
				return zero, ErrMockFetch
			}
			return value(item), nil
		},
	}
}

var _ fetcher.Fetcher[string, int] = (*MockFetcher[string, int])(nil)

// FakeClock is a manually driven clock. Sleep returns immediately and
// advances the clock by the requested duration.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewFakeClock creates a fake clock set to start
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the clock by d
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

// Advance moves the clock forward without recording a sleep
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns every duration passed to Sleep
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
