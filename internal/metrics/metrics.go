// Package metrics holds the Prometheus collectors for bulk downloads.
//
// Metrics:
//   - yf_rounds_total{kind} (Counter): rounds run by the retry loop
//   - yf_items_total{kind, outcome} (Counter): fetch outcomes, success or failure
//   - yf_items_dropped_total{kind} (Counter): items still failing after the last round
//   - yf_fetch_duration_seconds{kind} (Histogram): duration of single fetch tasks
//
// All collectors are registered on the default registerer via promauto.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// RoundsTotal counts rounds by data kind
	RoundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yf_rounds_total",
		Help: "Total number of download rounds by data kind",
	}, []string{"kind"})

	// ItemsTotal counts fetch outcomes by data kind
	ItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yf_items_total",
		Help: "Total number of fetched work items by data kind and outcome",
	}, []string{"kind", "outcome"})

	// DroppedTotal counts items that never succeeded
	DroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yf_items_dropped_total",
		Help: "Total number of work items dropped after the retry budget was exhausted",
	}, []string{"kind"})

	// FetchDuration observes single fetch durations
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yf_fetch_duration_seconds",
		Help:    "Duration of single fetch tasks by data kind",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"kind"})
)

// ObserveFetch records the outcome and duration of one fetch task
func ObserveFetch(kind string, d time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	ItemsTotal.WithLabelValues(kind, outcome).Inc()
	FetchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveRound records one round of the retry loop
func ObserveRound(kind string) {
	RoundsTotal.WithLabelValues(kind).Inc()
}

// ObserveDropped records n residual failures
func ObserveDropped(kind string, n int) {
	if n <= 0 {
		return
	}
	DroppedTotal.WithLabelValues(kind).Add(float64(n))
}
