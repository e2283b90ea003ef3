// Package cron parses 5-field calendar expressions and computes the next
// fire instant for a parsed schedule.
//
// The expression form is `minute hour day-of-month month day-of-week`,
// where each field is an integer in its natural range, `*`, or a step
// `*/k`. Next-fire computation honors the minute and hour fields
// (including step forms); expressions that constrain day-of-month, month,
// or day-of-week are rejected at parse time with ErrUnsupportedField
// rather than silently ignored.
package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidExpr indicates a malformed calendar expression.
	ErrInvalidExpr = errors.New("cron: invalid expression")
	// ErrUnsupportedField indicates a field constraint the next-fire
	// computation does not honor.
	ErrUnsupportedField = errors.New("cron: unsupported field constraint")
)

// wildcard is the sentinel for an unconstrained field value.
const wildcard = -1

// Field is a single parsed expression field: an exact value, a wildcard,
// or a wildcard with a step.
type Field struct {
	Value int // exact value, or wildcard (-1)
	Step  int // step for the */k form, 0 otherwise
}

// Wild reports whether the field matches every value.
func (f Field) Wild() bool { return f.Value == wildcard && f.Step == 0 }

func (f Field) matches(v int) bool {
	if f.Step > 0 {
		return v%f.Step == 0
	}
	if f.Value == wildcard {
		return true
	}
	return v == f.Value
}

// Schedule is a parsed calendar expression.
type Schedule struct {
	Minute     Field
	Hour       Field
	DayOfMonth Field
	Month      Field
	DayOfWeek  Field
}

// Parse parses a 5-field calendar expression.
func Parse(expr string) (Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidExpr, len(fields))
	}

	var s Schedule
	defs := []struct {
		name     string
		raw      string
		min, max int
		dst      *Field
	}{
		{"minute", fields[0], 0, 59, &s.Minute},
		{"hour", fields[1], 0, 23, &s.Hour},
		{"day-of-month", fields[2], 1, 31, &s.DayOfMonth},
		{"month", fields[3], 1, 12, &s.Month},
		{"day-of-week", fields[4], 0, 6, &s.DayOfWeek},
	}
	for _, def := range defs {
		f, err := parseField(def.raw, def.min, def.max)
		if err != nil {
			return Schedule{}, fmt.Errorf("%s: %w", def.name, err)
		}
		*def.dst = f
	}

	// Day-level fields are parsed and range-checked but not honored by
	// Next; reject anything that would constrain them.
	for _, dayField := range []struct {
		name string
		f    Field
	}{
		{"day-of-month", s.DayOfMonth},
		{"month", s.Month},
		{"day-of-week", s.DayOfWeek},
	} {
		if !dayField.f.Wild() {
			return Schedule{}, fmt.Errorf("%w: %s", ErrUnsupportedField, dayField.name)
		}
	}

	return s, nil
}

func parseField(raw string, min, max int) (Field, error) {
	if raw == "*" {
		return Field{Value: wildcard}, nil
	}
	if step, ok := strings.CutPrefix(raw, "*/"); ok {
		k, err := strconv.Atoi(step)
		if err != nil {
			return Field{}, fmt.Errorf("%w: bad step %q", ErrInvalidExpr, raw)
		}
		if k < 1 || k > max {
			return Field{}, fmt.Errorf("%w: step %d out of range [1-%d]", ErrInvalidExpr, k, max)
		}
		return Field{Value: wildcard, Step: k}, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return Field{}, fmt.Errorf("%w: bad value %q", ErrInvalidExpr, raw)
	}
	if v < min || v > max {
		return Field{}, fmt.Errorf("%w: value %d out of range [%d-%d]", ErrInvalidExpr, v, min, max)
	}
	return Field{Value: v}, nil
}

// Next returns the first wall-clock instant strictly after the given time
// whose minute and hour match the schedule. The result is always greater
// than the input, so a scheduler rearming from Next cannot busy-fire.
func (s Schedule) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)

	// Minute and hour constraints always match within 24h of minutes.
	for i := 0; i < 24*60+1; i++ {
		if s.Minute.matches(t.Minute()) && s.Hour.matches(t.Hour()) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return t
}
