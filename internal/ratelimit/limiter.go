package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// API represents the different provider endpoints we interact with
type API string

const (
	// APIChart represents the v8 chart endpoint (daily and minute bars)
	APIChart API = "chart"
	// APIQuote represents the v7 batch quote endpoint
	APIQuote API = "quote"
	// APIQuotePage represents the HTML quote page carrying company details
	APIQuotePage API = "quote_page"
	// APIScreener represents the screener listing pages
	APIScreener API = "screener"
)

// Limiter caps the request rate per endpoint across every round of a
// download. It sits below the per-round Schedule: the schedule spaces
// dispatches, the limiter is a hard ceiling for the endpoint.
type Limiter struct {
	limiters map[API]*rate.Limiter
	mu       sync.RWMutex
}

// NewLimiter creates a limiter from requests-per-second ceilings.
// Endpoints with a non-positive ceiling, or absent from the map, are
// not limited.
func NewLimiter(perSecond map[API]float64) *Limiter {
	l := &Limiter{
		limiters: make(map[API]*rate.Limiter),
	}
	for api, rps := range perSecond {
		l.Set(api, rps)
	}
	return l
}

// Unlimited returns a limiter that never blocks
func Unlimited() *Limiter {
	return NewLimiter(nil)
}

// Set installs or replaces the ceiling for one endpoint
func (l *Limiter) Set(api API, perSecond float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if perSecond <= 0 {
		delete(l.limiters, api)
		return
	}
	l.limiters[api] = rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Wait blocks until the rate limiter permits an event for the given API
// It returns an error if the context is canceled before the event can proceed
func (l *Limiter) Wait(ctx context.Context, api API) error {
	if l == nil {
		return nil
	}

	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		// If no limiter exists for this API, allow the request without limiting
		return nil
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event for the given API may happen now
func (l *Limiter) Allow(api API) bool {
	if l == nil {
		return true
	}

	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		return true
	}

	return limiter.Allow()
}
