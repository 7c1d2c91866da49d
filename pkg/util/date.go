package util

import (
	"time"
)

// Day truncates a time to UTC midnight. All bar and snapshot keys use this
// normalization so date equality is a plain Equal.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date. Returns (t, true) if it worked.
func ParseDay(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseDayDefault parses a date or returns the default if empty/invalid.
func ParseDayDefault(s string, def time.Time) time.Time {
	if t, ok := ParseDay(s); ok {
		return t
	}
	return Day(def)
}

// DaysBetween returns every calendar day in [from, to] inclusive.
func DaysBetween(from, to time.Time) []time.Time {
	from, to = Day(from), Day(to)
	if to.Before(from) {
		return nil
	}
	days := make([]time.Time, 0, int(to.Sub(from).Hours()/24)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// IsWeekend reports Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
