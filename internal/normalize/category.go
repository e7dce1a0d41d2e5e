package normalize

import (
	"regexp"
	"strings"
)

// categoryHeadings are navigation and section labels that venue pages render
// in the same markup as event titles. An exact (case-insensitive) match here
// must never persist as an event.
var categoryHeadings = map[string]bool{
	"events":               true,
	"exhibitions":          true,
	"past exhibitions":     true,
	"current exhibitions":  true,
	"upcoming exhibitions": true,
	"upcoming events":      true,
	"past events":          true,
	"today's events":       true,
	"calendar":             true,
	"what's on":            true,
	"whats on":             true,
	"tour":                 true,
	"tours":                true,
	"programs":             true,
	"programs & events":    true,
	"visit":                true,
	"plan your visit":      true,
	"tickets":              true,
	"news":                 true,
	"loading":              true,
	"more":                 true,
	"see all":              true,
	"view all":             true,
	"search results":       true,
}

// categoryPatterns catch heading variants that an exact list cannot keep up
// with ("Exhibitions & Events", "Exhibition and Events", "Results", ...).
var categoryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^exhibitions?\s*(&|and)?\s*events?$`),
	regexp.MustCompile(`(?i)^results?$`),
	regexp.MustCompile(`(?i)^(all|more|other)\s+(events?|exhibitions?|programs?)$`),
	regexp.MustCompile(`(?i)^events?\s+(calendar|listings?)$`),
	regexp.MustCompile(`(?i)^(this|next)\s+(week|month)$`),
	regexp.MustCompile(`(?i)^page\s+\d+$`),
}

// IsCategoryHeading reports whether title is a navigation or section label
// rather than an actual event title.
func IsCategoryHeading(title string) bool {
	t := strings.ToLower(CleanText(title))
	if t == "" {
		return true
	}
	if categoryHeadings[t] {
		return true
	}
	for _, re := range categoryPatterns {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}
