// Package sanitize scrubs scraped and admin-supplied strings before they
// reach storage. Everything the pipeline persists is plain text: titles,
// descriptions, locations, and keywords must survive being rendered
// anywhere without escaping.
package sanitize

import "github.com/microcosm-cc/bluemonday"

// textPolicy strips every tag and attribute. Scraped markup frequently
// carries script fragments and tracking pixels inside what looks like an
// event title; none of it is wanted.
var textPolicy = bluemonday.StrictPolicy()

// Text reduces input to plain text, dropping all HTML.
func Text(input string) string {
	return textPolicy.Sanitize(input)
}

// TextSlice applies Text to every element. A nil slice stays nil.
func TextSlice(inputs []string) []string {
	if inputs == nil {
		return nil
	}
	out := make([]string, len(inputs))
	for i, input := range inputs {
		out[i] = Text(input)
	}
	return out
}
