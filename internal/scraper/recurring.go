package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/metrics"
	"github.com/citylore/server/internal/normalize"
	"github.com/citylore/server/internal/timeparse"
)

// scheduleHintRe pairs a weekday with the first clock time mentioned in
// the same sentence ("Story time every Saturday at 10:30 am").
var scheduleHintRe = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)s?\b[^.!?\n]{0,80}?(\d{1,2}(?::\d{2})?\s*(?:a\.?m\.?|p\.?m\.?))`)

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// RecurringRequest materializes a weekly program page into dated
// candidates across a window.
type RecurringRequest struct {
	Venue   *venues.Venue
	BaseURL string
	Window  Window

	// Overrides. Empty values fall back to what the page provides.
	Title       string
	Description string
	EventType   string

	// EveryWeekday emits one candidate per weekday when the page has no
	// recognizable schedule hint.
	EveryWeekday bool
}

// RecurringExpander turns a single recurring-program URL into one
// candidate per occurrence.
type RecurringExpander struct {
	fetcher *Fetcher
	logger  zerolog.Logger
}

func NewRecurringExpander(fetcher *Fetcher, logger zerolog.Logger) *RecurringExpander {
	return &RecurringExpander{fetcher: fetcher, logger: logger}
}

// Expand fetches the page once, reads its weekly schedule hints, and
// emits one candidate per matching date in the window.
func (e *RecurringExpander) Expand(ctx context.Context, req RecurringRequest) ([]events.Candidate, error) {
	if req.Window.All {
		return nil, fmt.Errorf("recurring expansion requires a bounded date window")
	}
	if req.Window.End.Before(req.Window.Start) {
		return nil, fmt.Errorf("recurring window end precedes start")
	}

	body, err := e.fetcher.Fetch(ctx, req.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("fetching recurring program page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing recurring program page: %w", err)
	}

	title := req.Title
	if title == "" {
		title = pageTitle(doc)
	}
	if title == "" {
		return nil, fmt.Errorf("no title for recurring program at %s", req.BaseURL)
	}

	hints := scheduleHints(doc.Text())
	onePerWeekday := false
	if len(hints) == 0 {
		if !req.EveryWeekday {
			e.logger.Warn().Str("url", req.BaseURL).Msg("no schedule hint on recurring page")
			return nil, nil
		}
		// No hint: one representative candidate per weekday, dated at
		// that weekday's first occurrence in the window.
		onePerWeekday = true
		for day := time.Sunday; day <= time.Saturday; day++ {
			hints[day] = ""
		}
	}

	origin := Origin{
		VenueID:    &req.Venue.ID,
		CityID:     &req.Venue.CityID,
		Venue:      req.Venue,
		SourceName: "recurring",
		SourceURL:  req.BaseURL,
	}

	var out []events.Candidate
	emitted := make(map[time.Weekday]bool)
	for d := req.Window.Start; !d.After(req.Window.End); d = d.AddDate(0, 0, 1) {
		clock, ok := hints[d.Weekday()]
		if !ok {
			continue
		}
		if onePerWeekday {
			if emitted[d.Weekday()] {
				continue
			}
			emitted[d.Weekday()] = true
		}
		c, err := BuildCandidate(RawEvent{
			Title:       title,
			Description: req.Description,
			URL:         req.BaseURL,
			StartDate:   d.Format("2006-01-02"),
			StartTime:   clock,
			EventType:   req.EventType,
		}, origin)
		if err != nil {
			continue
		}
		out = append(out, c)
	}

	if len(out) > 0 {
		metrics.ScrapedEventsTotal.WithLabelValues("recurring").Add(float64(len(out)))
	}
	return out, nil
}

// scheduleHints maps each mentioned weekday to its clock time in HH:MM.
// The first hint for a weekday wins.
func scheduleHints(text string) map[time.Weekday]string {
	hints := make(map[time.Weekday]string)
	for _, m := range scheduleHintRe.FindAllStringSubmatch(text, -1) {
		day, ok := weekdayNames[strings.ToLower(m[1])]
		if !ok {
			continue
		}
		if _, seen := hints[day]; seen {
			continue
		}
		clock, err := timeparse.ParseTime(m[2])
		if err != nil {
			continue
		}
		hints[day] = clock
	}
	return hints
}

func pageTitle(doc *goquery.Document) string {
	if h1 := normalize.CleanText(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	title := doc.Find("title").First().Text()
	// Strip a trailing "| Site Name" suffix.
	if idx := strings.IndexAny(title, "|–"); idx > 0 {
		title = title[:idx]
	}
	return normalize.CleanText(title)
}
