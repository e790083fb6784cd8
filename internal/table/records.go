package table

import (
	"sort"

	"github.com/spf13/cast"
)

// Record is one flat row of named fields, as decoded from a quote or
// company details payload. Values are JSON scalars or nil.
type Record map[string]any

// String returns field as a string, or "" when it is missing or null
func (r Record) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	return cast.ToString(v)
}

// Records is a record set keyed by symbol
type Records map[string]Record

// Keys returns the record keys in ascending order
func (rs Records) Keys() []string {
	keys := make([]string, 0, len(rs))
	for k := range rs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fields returns the union of field names over every record, sorted
func (rs Records) Fields() []string {
	seen := make(map[string]bool)
	for _, rec := range rs {
		for f := range rec {
			seen[f] = true
		}
	}
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
