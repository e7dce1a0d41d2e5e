// Package timeparse parses the mixed US/ISO date and time formats that show
// up on venue pages into date and floating wall-clock time values.
//
// Times are floating: they are never converted to UTC here. A timezone only
// attaches when an event is rendered through its owning city.
package timeparse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"
)

// DateLayout is the canonical date serialization used across the pipeline.
const DateLayout = "2006-01-02"

// TimeLayout is the canonical floating time serialization ("HH:MM").
const TimeLayout = "15:04"

// LateEnd is the default end time for music and performance events that
// publish only a start time.
const LateEnd = "23:59"

var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
}

var rangeSeparators = regexp.MustCompile(`\s*(?:–|—|\bto\b|\bthrough\b)\s*|\s+-\s+`)

// ParseDate parses a single date literal. The returned time is a bare date
// (midnight, UTC location) used only as a calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil(t), nil
		}
	}
	// Free-text fallback ("Saturday, April 10th 2026", "10 avril 2026", ...).
	d, err := dateparser.Parse(&dateparser.Configuration{DateOrder: dateparser.MDY}, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q: %w", s, err)
	}
	return civil(d.Time), nil
}

// ParseDateRange splits "start – end" style ranges and parses both sides.
// A single date yields an equal start and nil end.
func ParseDateRange(s string) (time.Time, *time.Time, error) {
	s = strings.TrimSpace(s)
	parts := rangeSeparators.Split(s, 2)
	start, err := ParseDate(parts[0])
	if err != nil {
		return time.Time{}, nil, err
	}
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return start, nil, nil
	}
	end, err := ParseDate(parts[1])
	if err != nil {
		// A malformed end date does not invalidate the start.
		return start, nil, nil
	}
	if end.Before(start) {
		return start, nil, nil
	}
	return start, &end, nil
}

var time12 = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)$`)
var time24 = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::\d{2})?$`)

// ParseTime parses "HH:MM", "HH:MM:SS", or 12-hour "h:MM am/pm" into the
// canonical "HH:MM" floating form.
func ParseTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty time")
	}
	if m := time24.FindStringSubmatch(s); m != nil {
		var h, min int
		fmt.Sscanf(m[1], "%d", &h)
		fmt.Sscanf(m[2], "%d", &min)
		if h > 23 || min > 59 {
			return "", fmt.Errorf("time out of range %q", s)
		}
		return fmt.Sprintf("%02d:%02d", h, min), nil
	}
	if m := time12.FindStringSubmatch(s); m != nil {
		var h, min int
		fmt.Sscanf(m[1], "%d", &h)
		if m[2] != "" {
			fmt.Sscanf(m[2], "%d", &min)
		}
		if h < 1 || h > 12 || min > 59 {
			return "", fmt.Errorf("time out of range %q", s)
		}
		meridiem := strings.ToLower(strings.ReplaceAll(m[3], ".", ""))
		if meridiem == "pm" && h != 12 {
			h += 12
		}
		if meridiem == "am" && h == 12 {
			h = 0
		}
		return fmt.Sprintf("%02d:%02d", h, min), nil
	}
	return "", fmt.Errorf("unparseable time %q", s)
}

// ParseTimeRange parses "7 pm – 9 pm" style ranges. A single time yields a
// start and empty end.
func ParseTimeRange(s string) (string, string, error) {
	parts := rangeSeparators.Split(strings.TrimSpace(s), 2)
	start, err := ParseTime(parts[0])
	if err != nil {
		return "", "", err
	}
	if len(parts) < 2 {
		return start, "", nil
	}
	end, err := ParseTime(parts[1])
	if err != nil {
		return start, "", nil
	}
	return start, end, nil
}

// DefaultEndTime applies the venue-specific default: concerts and
// performances without a published end run late, so they get 23:59. Other
// types keep whatever end was parsed (possibly empty).
func DefaultEndTime(eventType, startTime, endTime string) string {
	if endTime != "" {
		return endTime
	}
	if startTime == "" {
		return ""
	}
	switch eventType {
	case "music", "performance":
		return LateEnd
	}
	return endTime
}

// IsAllDayType reports whether the event type produces all-day records when
// no times were published.
func IsAllDayType(eventType string) bool {
	return eventType == "exhibition" || eventType == "festival"
}

// civil truncates t to a bare calendar date.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
