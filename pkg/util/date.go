package util

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Layouts carrying an explicit offset. Fractional seconds are accepted by
// time.Parse after the seconds field even when the layout omits them.
var zonedLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02T15:04:05Z07",
	"2006-01-02 15:04:05Z07",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
}

// Layouts without offset information.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

var (
	ErrUnrecognizedTimestamp = errors.New("unrecognized timestamp")
	// ErrNonexistentLocalTime marks a wall time skipped by a forward offset change.
	ErrNonexistentLocalTime = errors.New("local time does not exist")
	// ErrAmbiguousLocalTime marks a wall time repeated by a backward offset change.
	ErrAmbiguousLocalTime = errors.New("local time is ambiguous")
)

// ParseTimestamp parses s as an absolute timestamp, or as a naive one in
// naive. zoned reports whether s carried its own offset. Unix seconds (or
// milliseconds above 1e11) count as absolute. Naive values that do not name
// exactly one instant in naive are rejected.
func ParseTimestamp(s string, naive *time.Location) (t time.Time, zoned bool, ok bool) {
	t, zoned, err := ResolveTimestamp(s, naive)
	return t, zoned, err == nil
}

// ResolveTimestamp is ParseTimestamp with the reason for a rejection.
func ResolveTimestamp(s string, naive *time.Location) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, ErrUnrecognizedTimestamp
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true, nil
		}
	}
	if naive == nil {
		naive = time.UTC
	}
	for _, layout := range naiveLayouts {
		if wall, err := time.Parse(layout, s); err == nil {
			t, err := LocalTime(wall, naive)
			return t, false, err
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts > 1e11 { // ms
			return time.UnixMilli(ts), true, nil
		}
		return time.Unix(ts, 0), true, nil
	}
	return time.Time{}, false, ErrUnrecognizedTimestamp
}

// LocalTime returns the instant whose wall clock in loc reads the date and
// clock fields of wall. The location of wall is ignored.
func LocalTime(wall time.Time, loc *time.Location) (time.Time, error) {
	y, mo, d := wall.Date()
	h, mi, sec := wall.Clock()
	if loc == time.UTC {
		return time.Date(y, mo, d, h, mi, sec, wall.Nanosecond(), time.UTC), nil
	}
	// Wall fields read as if UTC. Subtracting an offset valid near that
	// moment gives a candidate, which holds only if loc agrees on the offset.
	asUTC := time.Date(y, mo, d, h, mi, sec, wall.Nanosecond(), time.UTC)
	var found []time.Time
	tried := make(map[int]bool, 2)
	for _, near := range []time.Time{asUTC.Add(-24 * time.Hour), asUTC, asUTC.Add(24 * time.Hour)} {
		_, off := near.In(loc).Zone()
		if tried[off] {
			continue
		}
		tried[off] = true
		c := asUTC.Add(-time.Duration(off) * time.Second)
		if _, got := c.In(loc).Zone(); got == off {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return time.Time{}, ErrNonexistentLocalTime
	case 1:
		return found[0].In(loc), nil
	default:
		return time.Time{}, ErrAmbiguousLocalTime
	}
}

// ParseTime parses s treating naive values as UTC. Returns (t, true) if any layout worked.
func ParseTime(s string) (time.Time, bool) {
	t, _, ok := ParseTimestamp(s, time.UTC)
	return t, ok
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// TruncateHourIn truncates t to the start of its hour in loc.
func TruncateHourIn(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return l.Add(-time.Duration(l.Minute())*time.Minute - time.Duration(l.Second())*time.Second - time.Duration(l.Nanosecond()))
}
