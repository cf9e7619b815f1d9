// Package cron parses standard 5-field cron expressions into explicit value
// sets and computes next execution times from them.
//
// Supported per-field syntax: "*", lists "a,b,c", ranges "a-b", and steps
// "*/n" or "a-b/n". Whole-expression shorthands (@hourly, @daily, @weekly,
// @monthly, @yearly and their aliases) expand to their 5-field equivalents.
package cron

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Special shorthand expressions and their 5-field equivalents.
var specials = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

type fieldSpec struct {
	name string
	min  int
	max  int
}

// Field order: minute hour day month weekday. Weekday 0 is Sunday.
var fieldSpecs = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6},
}

var safeChars = regexp.MustCompile(`^[0-9*,\-/\s]+$`)

// Set is an ordered set of allowed values for one cron field.
type Set []int

// Contains reports whether v is a member of the set.
func (s Set) Contains(v int) bool {
	for _, m := range s {
		if m == v {
			return true
		}
		if m > v {
			return false
		}
	}
	return false
}

// Expression is an immutable, validated cron expression.
// Every member of every set lies within its field's bounds.
type Expression struct {
	Minute  Set
	Hour    Set
	Day     Set
	Month   Set
	Weekday Set

	// Source is the original text, kept for diagnostics.
	Source string
}

func (e *Expression) String() string { return e.Source }

// Parse parses a cron expression.
func Parse(text string) (*Expression, error) {
	src := strings.TrimSpace(text)
	if src == "" {
		return nil, errors.New("empty cron expression")
	}

	expanded := src
	if strings.HasPrefix(expanded, "@") {
		repl, ok := specials[expanded]
		if !ok {
			return nil, fmt.Errorf("unknown special expression: %s", expanded)
		}
		expanded = repl
	}

	if !safeChars.MatchString(expanded) {
		return nil, fmt.Errorf("invalid characters in cron expression: %s", expanded)
	}

	fields := strings.Fields(expanded)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression must have exactly 5 fields, got %d", len(fields))
	}

	var sets [5]Set
	for i, field := range fields {
		spec := fieldSpecs[i]
		set, err := parseField(field, spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field %q: %w", spec.name, field, err)
		}
		sets[i] = set
	}

	return &Expression{
		Minute:  sets[0],
		Hour:    sets[1],
		Day:     sets[2],
		Month:   sets[3],
		Weekday: sets[4],
		Source:  src,
	}, nil
}

// Validate reports whether text is a parseable cron expression.
// It never returns an error.
func Validate(text string) bool {
	_, err := Parse(text)
	return err == nil
}

func parseField(field string, min, max int) (Set, error) {
	if field == "*" {
		return fullRange(min, max, 1), nil
	}

	seen := map[int]struct{}{}
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		step := 1
		if idx := strings.Index(part, "/"); idx >= 0 {
			stepStr := part[idx+1:]
			part = part[:idx]
			n, err := strconv.Atoi(stepStr)
			if err != nil {
				return nil, fmt.Errorf("invalid step value %q", stepStr)
			}
			if n <= 0 {
				return nil, fmt.Errorf("step must be positive, got %d", n)
			}
			step = n
		}

		switch {
		case strings.Contains(part, "-"):
			startStr, endStr, _ := strings.Cut(part, "-")
			start, err := rangeBound(startStr, min)
			if err != nil {
				return nil, fmt.Errorf("invalid range format %q", part)
			}
			end, err := rangeBound(endStr, max)
			if err != nil {
				return nil, fmt.Errorf("invalid range format %q", part)
			}
			if start > end {
				return nil, fmt.Errorf("invalid range: %d-%d", start, end)
			}
			if start < min || end > max {
				return nil, fmt.Errorf("range %d-%d out of bounds [%d-%d]", start, end, min, max)
			}
			for v := start; v <= end; v += step {
				seen[v] = struct{}{}
			}

		case part == "*":
			for v := min; v <= max; v += step {
				seen[v] = struct{}{}
			}

		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q", part)
			}
			if v < min || v > max {
				return nil, fmt.Errorf("value %d out of range [%d-%d]", v, min, max)
			}
			seen[v] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil, errors.New("no values parsed")
	}

	set := make(Set, 0, len(seen))
	for v := min; v <= max; v++ {
		if _, ok := seen[v]; ok {
			set = append(set, v)
		}
	}
	return set, nil
}

func rangeBound(s string, wildcard int) (int, error) {
	if s == "*" {
		return wildcard, nil
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

func fullRange(min, max, step int) Set {
	set := make(Set, 0, (max-min)/step+1)
	for v := min; v <= max; v += step {
		set = append(set, v)
	}
	return set
}
