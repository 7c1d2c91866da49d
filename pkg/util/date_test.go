package util

import (
	"testing"
	"time"
)

func TestDayTruncates(t *testing.T) {
	got := Day(time.Date(2026, 2, 2, 15, 30, 45, 12, time.UTC))
	want := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("unexpected day %v", got)
	}
}

func TestParseDay(t *testing.T) {
	got, ok := ParseDay("2026-02-02")
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Format("2006-01-02") != "2026-02-02" {
		t.Fatalf("unexpected date %v", got)
	}
	if _, ok := ParseDay("not-a-date"); ok {
		t.Fatalf("expected parse failure")
	}
}

func TestParseDayDefault(t *testing.T) {
	def := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	got := ParseDayDefault("", def)
	if !got.Equal(Day(def)) {
		t.Fatalf("expected default day")
	}
}

func TestDaysBetween(t *testing.T) {
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	days := DaysBetween(from, from.AddDate(0, 0, 4))
	if len(days) != 5 {
		t.Fatalf("expected 5 days, got %d", len(days))
	}
	if !days[0].Equal(from) || !days[4].Equal(from.AddDate(0, 0, 4)) {
		t.Fatalf("unexpected bounds %v %v", days[0], days[4])
	}
	if DaysBetween(from, from.AddDate(0, 0, -1)) != nil {
		t.Fatalf("expected nil for inverted range")
	}
}

func TestIsWeekend(t *testing.T) {
	sat := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)
	mon := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	if !IsWeekend(sat) {
		t.Fatalf("saturday should be weekend")
	}
	if IsWeekend(mon) {
		t.Fatalf("monday should not be weekend")
	}
}
