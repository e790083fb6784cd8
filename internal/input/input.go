// Package input normalizes caller input for the download entry points:
// symbol lists and date-like values.
package input

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// ConfigError reports caller input that cannot be coerced. It is returned
// before any network activity.
type ConfigError struct {
	Field string
	Value any
	Err   error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %v: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %v", e.Field, e.Value)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *ConfigError) Unwrap() error {
	return e.Err
}

var separators = regexp.MustCompile(`[\s,|;]+`)

// SplitSymbols splits every element on whitespace, commas, pipes and
// semicolons and drops empty fragments. With upper set, symbols are
// upper-cased. Order and repeats are kept.
func SplitSymbols(inputs []string, upper bool) []string {
	var out []string
	for _, in := range inputs {
		for _, s := range separators.Split(in, -1) {
			if s == "" {
				continue
			}
			if upper {
				s = strings.ToUpper(s)
			}
			out = append(out, s)
		}
	}
	return out
}

// ParseSymbols is SplitSymbols with repeats dropped
func ParseSymbols(inputs []string, upper bool) []string {
	split := SplitSymbols(inputs, upper)
	seen := make(map[string]bool, len(split))
	var out []string
	for _, s := range split {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

var digits = regexp.MustCompile(`^-?[0-9]+$`)

// ParseTime coerces a date-like value to a UTC time. It accepts
// time.Time, date and date-time strings, epoch seconds as integers, floats
// or digit strings, and nil, which yields the zero time so the caller can
// apply its default.
func ParseTime(field string, v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case float64:
		return fromFloat(field, v, x)
	case float32:
		return fromFloat(field, v, float64(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, nil
		}
		if digits.MatchString(s) {
			secs, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return time.Time{}, &ConfigError{Field: field, Value: v, Err: err}
			}
			return time.Unix(secs, 0).UTC(), nil
		}
		v = s
	}

	t, err := cast.ToTimeInDefaultLocationE(v, time.UTC)
	if err != nil {
		return time.Time{}, &ConfigError{Field: field, Value: v, Err: err}
	}
	return t.UTC(), nil
}

func fromFloat(field string, raw any, f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, &ConfigError{Field: field, Value: raw, Err: fmt.Errorf("not a finite epoch")}
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}
