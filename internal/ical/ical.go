// Package ical serializes events to the iCalendar wire format and parses
// uploaded calendars back into candidates. Dates stay bare calendar
// dates; timed events carry the city zone as a TZID parameter instead of
// being converted to UTC.
package ical

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/venues"
)

const (
	prodID = "-//CityLore//Event Calendar//EN"

	dateLayout     = "20060102"
	dateTimeLayout = "20060102T150405"
)

// recurringMarkerRe finds the recurrence rule embedded in a description,
// e.g. "[RECURRING: FREQ=WEEKLY;BYDAY=SA]".
var recurringMarkerRe = regexp.MustCompile(`\[RECURRING:\s*([^\]]+)\]`)

// fallbackAddresses are last-resort venue addresses for locations whose
// sites never publish one in scrapable form.
var fallbackAddresses = map[string]string{
	"national gallery of art": "Constitution Ave NW, Washington, DC 20565",
	"hirshhorn museum":        "Independence Ave SW &, 7th St SW, Washington, DC 20560",
	"webster's":               "133 E Beaver Ave, State College, PA 16801",
}

// ExportEvent pairs an event with the context needed to render it.
type ExportEvent struct {
	Event    *events.Event
	Venue    *venues.Venue // optional
	CityName string
	Timezone string // IANA zone for timed events; empty means UTC
}

// Export renders the events as one VCALENDAR document.
func Export(items []ExportEvent) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(prodID)

	for _, item := range items {
		if item.Event == nil {
			continue
		}
		addEvent(cal, item)
	}
	return cal.Serialize()
}

func addEvent(cal *ics.Calendar, item ExportEvent) {
	e := item.Event
	uid := e.ULID
	if uid == "" {
		uid = fmt.Sprintf("event-%d", e.ID)
	}
	ev := cal.AddEvent(uid + "@citylore")
	ev.SetDtStampTime(time.Now().UTC())
	ev.SetSummary(e.Title)

	description, rule := splitRecurringMarker(e.Description)
	if description != "" {
		ev.SetDescription(description)
	}
	if rule != "" {
		ev.SetProperty(ics.ComponentPropertyRrule, rule)
	}
	if e.URL != "" {
		ev.SetURL(e.URL)
	}
	if loc := eventLocation(item); loc != "" {
		ev.SetLocation(loc)
	}

	if e.StartTime == nil {
		addAllDay(ev, e)
		return
	}
	addTimed(ev, e, item.Timezone)
}

// addAllDay emits VALUE=DATE properties. DTEND is exclusive, so the end
// date moves forward one day.
func addAllDay(ev *ics.VEvent, e *events.Event) {
	ev.SetProperty(ics.ComponentPropertyDtStart, e.StartDate.Format(dateLayout),
		&ics.KeyValues{Key: "VALUE", Value: []string{"DATE"}})

	end := e.StartDate
	if e.EndDate != nil {
		end = *e.EndDate
	}
	ev.SetProperty(ics.ComponentPropertyDtEnd, end.AddDate(0, 0, 1).Format(dateLayout),
		&ics.KeyValues{Key: "VALUE", Value: []string{"DATE"}})
}

// addTimed emits local timestamps qualified by the city zone. The stored
// clock strings are floating, so no UTC conversion happens here.
func addTimed(ev *ics.VEvent, e *events.Event, tz string) {
	if tz == "" {
		tz = "UTC"
	}
	tzid := &ics.KeyValues{Key: "TZID", Value: []string{tz}}

	ev.SetProperty(ics.ComponentPropertyDtStart,
		e.StartDate.Format(dateLayout)+"T"+clockToStamp(*e.StartTime), tzid)

	endDate := e.StartDate
	if e.EndDate != nil {
		endDate = *e.EndDate
	}
	endClock := *e.StartTime
	if e.EndTime != nil {
		endClock = *e.EndTime
	}
	ev.SetProperty(ics.ComponentPropertyDtEnd,
		endDate.Format(dateLayout)+"T"+clockToStamp(endClock), tzid)
}

// eventLocation builds the LOCATION value: venue address, then venue name
// with city, then the event's own start location.
func eventLocation(item ExportEvent) string {
	if v := item.Venue; v != nil {
		if v.Address != "" {
			return v.Address
		}
		if addr := fallbackAddress(v.Name); addr != "" {
			return addr
		}
		if v.Name != "" {
			if item.CityName != "" {
				return v.Name + ", " + item.CityName
			}
			return v.Name
		}
	}
	return item.Event.StartLocation
}

func fallbackAddress(venueName string) string {
	name := strings.ToLower(venueName)
	for marker, addr := range fallbackAddresses {
		if strings.Contains(name, marker) {
			return addr
		}
	}
	return ""
}

// splitRecurringMarker pulls the recurrence rule out of a description.
func splitRecurringMarker(description string) (string, string) {
	m := recurringMarkerRe.FindStringSubmatch(description)
	if m == nil {
		return description, ""
	}
	cleaned := strings.TrimSpace(recurringMarkerRe.ReplaceAllString(description, ""))
	return cleaned, strings.TrimSpace(m[1])
}

// clockToStamp turns "HH:MM" into the HHMMSS wire form.
func clockToStamp(clock string) string {
	return strings.ReplaceAll(clock, ":", "") + "00"
}

// ImportedEvent is one VEVENT parsed back into domain shape.
type ImportedEvent struct {
	Title       string
	Description string
	Location    string
	URL         string

	StartDate time.Time
	EndDate   *time.Time
	StartTime *string
	EndTime   *string

	// RRule carries a recurrence rule verbatim when present.
	RRule string
}

// Import parses a calendar stream. Events without a parsable DTSTART are
// skipped rather than failing the whole upload.
func Import(r io.Reader) ([]ImportedEvent, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	var out []ImportedEvent
	for _, ev := range cal.Events() {
		imported, ok := importEvent(ev)
		if !ok {
			continue
		}
		out = append(out, imported)
	}
	return out, nil
}

func importEvent(ev *ics.VEvent) (ImportedEvent, bool) {
	var imported ImportedEvent

	if p := ev.GetProperty(ics.ComponentPropertySummary); p != nil {
		imported.Title = p.Value
	}
	if p := ev.GetProperty(ics.ComponentPropertyDescription); p != nil {
		imported.Description = p.Value
	}
	if p := ev.GetProperty(ics.ComponentPropertyLocation); p != nil {
		imported.Location = p.Value
	}
	if p := ev.GetProperty(ics.ComponentPropertyUrl); p != nil {
		imported.URL = p.Value
	}
	if p := ev.GetProperty(ics.ComponentPropertyRrule); p != nil {
		imported.RRule = p.Value
	}

	start := ev.GetProperty(ics.ComponentPropertyDtStart)
	if start == nil {
		return imported, false
	}

	startDate, startClock, ok := parseStamp(start.Value)
	if !ok {
		return imported, false
	}
	imported.StartDate = startDate
	imported.StartTime = startClock

	if end := ev.GetProperty(ics.ComponentPropertyDtEnd); end != nil {
		endDate, endClock, ok := parseStamp(end.Value)
		if ok {
			if startClock == nil {
				// All-day DTEND is exclusive; undo the one-day shift.
				endDate = endDate.AddDate(0, 0, -1)
			}
			if !endDate.Equal(startDate) {
				imported.EndDate = &endDate
			}
			imported.EndTime = endClock
		}
	}
	return imported, true
}

// parseStamp reads either a bare date or a local date-time value. The
// clock is returned as a floating "HH:MM" string, nil for dates.
func parseStamp(value string) (time.Time, *string, bool) {
	value = strings.TrimSuffix(value, "Z")
	if t, err := time.ParseInLocation(dateTimeLayout, value, time.UTC); err == nil {
		date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		clock := fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
		return date, &clock, true
	}
	if t, err := time.ParseInLocation(dateLayout, value, time.UTC); err == nil {
		return t, nil, true
	}
	return time.Time{}, nil, false
}
