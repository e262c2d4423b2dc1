package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// field is one parsed cron field.
type field struct {
	any    bool
	values map[int]bool
}

func (f field) matches(v int) bool { return f.any || f.values[v] }

// Schedule is a five-field cron expression ("minute hour dom month dow")
// evaluated in a fixed location. Fields accept "*", numbers, comma lists,
// ranges ("1-5") and steps ("*/15", "0-30/10").
type Schedule struct {
	expr   string
	loc    *time.Location
	fields [5]field
}

var fieldBounds = [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}

// ParseSchedule parses expr; a nil loc means UTC.
func ParseSchedule(expr string, loc *time.Location) (Schedule, error) {
	if loc == nil {
		loc = time.UTC
	}
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Schedule{}, fmt.Errorf("pipeline: cron %q: want 5 fields, got %d", expr, len(parts))
	}
	s := Schedule{expr: expr, loc: loc}
	for i, p := range parts {
		f, err := parseField(p, fieldBounds[i][0], fieldBounds[i][1])
		if err != nil {
			return Schedule{}, fmt.Errorf("pipeline: cron %q field %d: %w", expr, i+1, err)
		}
		s.fields[i] = f
	}
	return s, nil
}

func parseField(raw string, lo, hi int) (field, error) {
	if raw == "*" {
		return field{any: true}, nil
	}
	f := field{values: make(map[int]bool)}
	for _, part := range strings.Split(raw, ",") {
		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return field{}, fmt.Errorf("bad step %q", part)
			}
			step, part = n, base
		}

		from, to := lo, hi
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err1, err2 error
			from, err1 = strconv.Atoi(a)
			to, err2 = strconv.Atoi(b)
			if err1 != nil || err2 != nil {
				return field{}, fmt.Errorf("bad range %q", part)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return field{}, fmt.Errorf("bad value %q", part)
			}
			from, to = v, v
		}
		if from < lo || to > hi || from > to {
			return field{}, fmt.Errorf("%q out of range %d-%d", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			f.values[v] = true
		}
	}
	return f, nil
}

func (s Schedule) matches(t time.Time) bool {
	return s.fields[0].matches(t.Minute()) &&
		s.fields[1].matches(t.Hour()) &&
		s.fields[2].matches(t.Day()) &&
		s.fields[3].matches(int(t.Month())) &&
		s.fields[4].matches(int(t.Weekday()))
}

// Next returns the first matching minute strictly after t. It searches one
// year ahead and returns the zero time when nothing matches.
func (s Schedule) Next(t time.Time) time.Time {
	c := t.In(s.loc).Truncate(time.Minute).Add(time.Minute)
	limit := c.Add(366 * 24 * time.Hour)
	for ; c.Before(limit); c = c.Add(time.Minute) {
		if s.matches(c) {
			return c
		}
	}
	return time.Time{}
}

func (s Schedule) String() string { return s.expr }
