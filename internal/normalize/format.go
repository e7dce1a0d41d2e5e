package normalize

import "strings"

// acronyms are kept fully uppercase (or in their house style) by the
// Format* helpers regardless of how the source cased them.
var acronyms = map[string]string{
	"nyc":  "NYC",
	"dc":   "DC",
	"nga":  "NGA",
	"saam": "SAAM",
	"moma": "MoMA",
	"v&a":  "V&A",
	"usa":  "USA",
	"uk":   "UK",
	"us":   "US",
}

// lowercaseWords stay lowercased mid-name ("Museum of the Moving Image").
var lowercaseWords = map[string]bool{
	"of": true, "the": true, "and": true, "at": true, "on": true,
	"in": true, "for": true, "de": true, "du": true, "la": true,
}

// FormatCityName title-cases a free-text city name, preserving acronyms.
func FormatCityName(name string) string {
	return titleCase(CleanText(name))
}

// FormatCountryName title-cases a country name, preserving acronyms like
// "USA" and "UK".
func FormatCountryName(name string) string {
	return titleCase(CleanText(name))
}

// FormatVenueName title-cases a venue name, preserving acronyms and keeping
// connective words lowercase except in first position.
func FormatVenueName(name string) string {
	return titleCase(CleanText(name))
}

func titleCase(s string) string {
	if s == "" {
		return ""
	}
	words := strings.Split(s, " ")
	for i, w := range words {
		lower := strings.ToLower(w)
		if a, ok := acronyms[lower]; ok {
			words[i] = a
			continue
		}
		if i > 0 && lowercaseWords[lower] {
			words[i] = lower
			continue
		}
		words[i] = capitalize(lower)
	}
	return strings.Join(words, " ")
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	// Handle hyphenated parts ("Winston-Salem") without touching the rest.
	if i := strings.IndexByte(w, '-'); i > 0 && i < len(w)-1 {
		return capitalize(w[:i]) + "-" + capitalize(w[i+1:])
	}
	r := []rune(w)
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}
