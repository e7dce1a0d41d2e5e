package scraper

import (
	"fmt"
	"time"

	"github.com/citylore/server/internal/domain/events"
)

// Time range tokens accepted by scrape requests.
const (
	RangeToday     = "today"
	RangeTomorrow  = "tomorrow"
	RangeThisWeek  = "this_week"
	RangeNextWeek  = "next_week"
	RangeThisMonth = "this_month"
	RangeNextMonth = "next_month"
	RangeCustom    = "custom"
	RangeAll       = "all"
)

// Window is a closed calendar-date interval. A zero Window (All) matches
// everything.
type Window struct {
	Start time.Time
	End   time.Time
	All   bool
}

// ResolveWindow maps a time range token to a date window evaluated "now"
// in the given location. Weeks run Monday through Sunday.
func ResolveWindow(timeRange string, now time.Time, loc *time.Location, customStart, customEnd *time.Time) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	today := civilDate(now.In(loc))

	switch timeRange {
	case RangeToday, "":
		return Window{Start: today, End: today}, nil
	case RangeTomorrow:
		t := today.AddDate(0, 0, 1)
		return Window{Start: t, End: t}, nil
	case RangeThisWeek:
		start := startOfWeek(today)
		return Window{Start: start, End: start.AddDate(0, 0, 6)}, nil
	case RangeNextWeek:
		start := startOfWeek(today).AddDate(0, 0, 7)
		return Window{Start: start, End: start.AddDate(0, 0, 6)}, nil
	case RangeThisMonth:
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Window{Start: start, End: start.AddDate(0, 1, -1)}, nil
	case RangeNextMonth:
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		return Window{Start: start, End: start.AddDate(0, 1, -1)}, nil
	case RangeCustom:
		if customStart == nil || customEnd == nil {
			return Window{}, fmt.Errorf("custom time range requires both start and end dates")
		}
		return Window{Start: civilDate(*customStart), End: civilDate(*customEnd)}, nil
	case RangeAll:
		return Window{All: true}, nil
	default:
		return Window{}, fmt.Errorf("unknown time range %q", timeRange)
	}
}

// Contains reports whether a candidate with the given dates falls inside
// the window. Exhibitions match when their run overlaps the window; every
// other type matches by start date containment.
func (w Window) Contains(eventType string, startDate time.Time, endDate *time.Time) bool {
	if w.All {
		return true
	}
	start := civilDate(startDate)
	if eventType == events.TypeExhibition {
		end := start
		if endDate != nil {
			end = civilDate(*endDate)
		}
		return !start.After(w.End) && !end.Before(w.Start)
	}
	return !start.Before(w.Start) && !start.After(w.End)
}

// ValidTimeRange reports whether token is a recognized time range.
func ValidTimeRange(token string) bool {
	switch token {
	case RangeToday, RangeTomorrow, RangeThisWeek, RangeNextWeek,
		RangeThisMonth, RangeNextMonth, RangeCustom, RangeAll, "":
		return true
	}
	return false
}

// civilDate truncates to a bare calendar date at UTC midnight.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// startOfWeek returns the Monday of the week containing d.
func startOfWeek(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}
