package events

import "strings"

// babyKeywords flag an event as baby-friendly when any of them appears in
// the title or description. Matching is case-insensitive and substring
// based; the list is fixed so detection stays stable across runs.
var babyKeywords = []string{
	"baby",
	"babies",
	"toddler",
	"infant",
	"ages 0-2",
	"ages 0–2",
	"stroller",
	"family program",
	"family day",
	"little ones",
	"storytime",
	"story time",
	"sensory friendly",
	"sensory-friendly",
}

// DetectBabyFriendly reports whether title or description mentions any
// baby-friendly keyword. Deterministic: the same text always yields the
// same flag.
func DetectBabyFriendly(title, description string) bool {
	haystack := strings.ToLower(title + " " + description)
	for _, kw := range babyKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
