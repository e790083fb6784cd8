package fetcher

// Result represents the outcome of one fetch task.
// Worker goroutines write one Result per dispatched work item; the
// coordinator turns them into successes and failures once the round ends.
type Result[K comparable, R any] struct {
	// Item is the work item this result belongs to
	Item K

	// Value is the decoded record.
	// If Error is not nil, Value should be considered invalid.
	Value R

	// Error contains any error (or recovered panic) raised by the fetch.
	Error error
}

// OK reports whether the fetch succeeded.
func (r Result[K, R]) OK() bool {
	return r.Error == nil
}
