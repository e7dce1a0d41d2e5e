package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Heuristic extraction for pages with no structured markup. Container
// classes are matched against common listing-page naming, then a bag of
// regexes pulls dates and times out of the block text.

var (
	containerClassRe = regexp.MustCompile(`(?i)\b(event|events|listing|exhibition|calendar|program|whats?-?on|tribe-events|eventlist)[\w-]*\b`)

	// Month-name dates: "September 12, 2026", "12 September 2026",
	// "Sep 12" and date ranges joined by - / – / "to" / "through".
	textDateRe = regexp.MustCompile(`(?i)\b(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+\d{1,2}(?:\s*[-–]\s*\d{1,2})?(?:,?\s*\d{4})?|\b\d{1,2}\s+(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?(?:,?\s*\d{4})?|\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b`)

	textDateRangeRe = regexp.MustCompile(`(?i)(` + monthDayPattern + `)\s*(?:[-–—]|to|through|thru)\s*(` + monthDayPattern + `)`)

	textTimeRe = regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s*(?:a\.?m\.?|p\.?m\.?)|\b\d{1,2}:\d{2}\b`)

	titleSelectors = []string{"h1", "h2", "h3", "h4", ".title", ".event-title", ".name", "a"}

	locationSelectors = []string{".location", ".venue", ".event-location", ".place", ".where"}

	typeClassHints = []struct {
		hint string
		typ  string
	}{
		{"exhibition", "exhibition"},
		{"concert", "music"},
		{"music", "music"},
		{"performance", "performance"},
		{"theatre", "performance"},
		{"theater", "performance"},
		{"workshop", "workshop"},
		{"class", "class"},
		{"tour", "tour"},
		{"festival", "festival"},
		{"market", "market"},
	}
)

const monthDayPattern = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+\d{1,2}(?:,?\s*\d{4})?`

// ExtractHeuristic scans for repeated listing containers and mines each
// block's text for event fields. Only containers whose class matches a
// listing naming pattern and that repeat at least twice are considered;
// a page-level wrapper that happens to match is not a listing.
func ExtractHeuristic(doc *goquery.Document, pageURL string) []RawEvent {
	blocks := findListingBlocks(doc)
	if len(blocks) == 0 {
		return nil
	}

	var events []RawEvent
	for _, block := range blocks {
		ev := extractFromBlock(block, pageURL)
		if ev.Title == "" || ev.StartDate == "" {
			continue
		}
		events = append(events, ev)
	}
	return events
}

// findListingBlocks groups class-matched elements by their signature and
// returns the members of the largest repeating group.
func findListingBlocks(doc *goquery.Document) []*goquery.Selection {
	groups := make(map[string][]*goquery.Selection)

	doc.Find("article[class], li[class], div[class], section[class]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		if !containerClassRe.MatchString(class) {
			return
		}
		// Skip wrappers that contain other matched containers.
		if s.Find("article[class], li[class], div[class]").FilterFunction(func(_ int, inner *goquery.Selection) bool {
			innerClass, _ := inner.Attr("class")
			return containerClassRe.MatchString(innerClass)
		}).Length() > 0 {
			return
		}
		key := goquery.NodeName(s) + "." + containerClassRe.FindString(class)
		groups[key] = append(groups[key], s)
	})

	var best []*goquery.Selection
	for _, members := range groups {
		if len(members) >= 2 && len(members) > len(best) {
			best = members
		}
	}
	return best
}

func extractFromBlock(block *goquery.Selection, pageURL string) RawEvent {
	ev := RawEvent{}

	for _, sel := range titleSelectors {
		if title := strings.TrimSpace(block.Find(sel).First().Text()); title != "" {
			ev.Title = title
			break
		}
	}

	if href, ok := block.Find("a[href]").First().Attr("href"); ok {
		ev.URL = absoluteURL(pageURL, href)
	}
	if src, ok := block.Find("img[src]").First().Attr("src"); ok {
		ev.ImageURL = absoluteURL(pageURL, src)
	}

	for _, sel := range locationSelectors {
		if loc := strings.TrimSpace(block.Find(sel).First().Text()); loc != "" {
			ev.Location = loc
			break
		}
	}

	// Prefer a machine-readable <time datetime> when present.
	text := block.Text()
	if dt, ok := block.Find("time[datetime]").First().Attr("datetime"); ok {
		ev.StartDate, ev.StartTime = splitSchemaDateTime(dt)
	} else if m := textDateRangeRe.FindStringSubmatch(text); m != nil {
		ev.StartDate = strings.TrimSpace(m[1])
		ev.EndDate = strings.TrimSpace(m[2])
	} else if m := textDateRe.FindString(text); m != "" {
		ev.StartDate = strings.TrimSpace(m)
	}

	if ev.StartTime == "" {
		times := textTimeRe.FindAllString(text, 2)
		if len(times) > 0 {
			ev.StartTime = strings.TrimSpace(times[0])
		}
		if len(times) > 1 {
			ev.EndTime = strings.TrimSpace(times[1])
		}
	}

	class, _ := block.Attr("class")
	ev.EventType = typeFromClassHints(class + " " + ev.Title)

	if desc := strings.TrimSpace(block.Find("p, .description, .summary").First().Text()); desc != "" {
		ev.Description = desc
	}

	return ev
}

// typeFromClassHints maps class names and title words onto the internal
// type set. No hint means the generic type, decided downstream.
func typeFromClassHints(s string) string {
	lower := strings.ToLower(s)
	for _, hint := range typeClassHints {
		if strings.Contains(lower, hint.hint) {
			return hint.typ
		}
	}
	return ""
}

func absoluteURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return ref
	}
	abs, err := parsed.Parse(ref)
	if err != nil {
		return ref
	}
	return abs.String()
}
