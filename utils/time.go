package utils

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO 8601 calendar date format used in files, URLs and payloads.
const DateLayout = "2006-01-02"

// TimeProvider interface for time operations
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider implements TimeProvider using actual system time
type RealTimeProvider struct{}

func (p RealTimeProvider) Now() time.Time {
	return time.Now()
}

// FixedTimeProvider always returns the same instant. Used by tests and dry runs.
type FixedTimeProvider struct {
	T time.Time
}

func (p FixedTimeProvider) Now() time.Time {
	return p.T
}

// Range modes accepted by ResolveRange.
const (
	ModeHistory   = "history"
	ModeFull      = "full"
	ModeToday     = "today"
	ModeYesterday = "yesterday"
	ModeRange     = "range"
)

// DateRange is an inclusive range of calendar dates, both ends at midnight UTC.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Contains(d time.Time) bool {
	d = Truncate(d)
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(DateLayout), r.End.Format(DateLayout))
}

// Truncate drops the clock part of t, keeping its calendar date in t's location.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string. Longer timestamps are cut to their date part.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// ResolveRange turns a range mode into concrete dates. now is converted to loc
// first so "today" means the exchange's calendar day, not the host's.
func ResolveRange(mode, inception, start, end string, now time.Time, loc *time.Location) (DateRange, error) {
	if loc != nil {
		now = now.In(loc)
	}
	today := Truncate(now)

	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeHistory, ModeFull, "":
		from, err := ParseDate(inception)
		if err != nil {
			return DateRange{}, fmt.Errorf("inception date: %w", err)
		}
		return checkedRange(from, today)
	case ModeToday:
		return DateRange{Start: today, End: today}, nil
	case ModeYesterday:
		yesterday := today.AddDate(0, 0, -1)
		return DateRange{Start: yesterday, End: yesterday}, nil
	case ModeRange:
		from, err := ParseDate(start)
		if err != nil {
			return DateRange{}, fmt.Errorf("start date: %w", err)
		}
		to, err := ParseDate(end)
		if err != nil {
			return DateRange{}, fmt.Errorf("end date: %w", err)
		}
		return checkedRange(from, to)
	default:
		return DateRange{}, fmt.Errorf("unknown range mode %q", mode)
	}
}

func checkedRange(from, to time.Time) (DateRange, error) {
	if from.After(to) {
		return DateRange{}, fmt.Errorf("start date %s is after end date %s", from.Format(DateLayout), to.Format(DateLayout))
	}
	return DateRange{Start: from, End: to}, nil
}
