// Package normalize canonicalizes scraped field values before they enter the
// ingestion pipeline. All functions are pure and idempotent: no I/O, no
// process state, safe to call from concurrent extractors.
package normalize

import (
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var collapseSpaces = regexp.MustCompile(`\s+`)

// trackingParams are query parameters stripped by CleanURL. The list covers
// the trackers we actually see on venue and ticketing pages.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
	"mc_cid":       true,
	"mc_eid":       true,
	"ref":          true,
}

// CleanText trims s and collapses internal whitespace runs to a single
// space. Empty or whitespace-only input yields "".
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return collapseSpaces.ReplaceAllString(s, " ")
}

// CleanURL validates and canonicalizes a URL: scheme must be http or https,
// host is lowercased, known tracking parameters are stripped, and any
// remaining query is preserved in its original order. Returns "" when the
// input is not a usable absolute URL.
func CleanURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Host == "" {
		return ""
	}
	u.Host = strings.ToLower(u.Host)

	if u.RawQuery != "" {
		kept := make([]string, 0, 4)
		for _, pair := range strings.Split(u.RawQuery, "&") {
			key := pair
			if i := strings.IndexByte(pair, '='); i >= 0 {
				key = pair[:i]
			}
			if trackingParams[strings.ToLower(key)] {
				continue
			}
			kept = append(kept, pair)
		}
		u.RawQuery = strings.Join(kept, "&")
	}
	return u.String()
}

// CleanEmail parses s as an address, returning the bare address or "" when
// it does not parse. Display names are discarded.
func CleanEmail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return ""
	}
	return addr.Address
}

var phoneStrip = regexp.MustCompile(`[^\d+]`)

// CleanPhone keeps digits and a leading "+", rejecting anything with fewer
// than 7 digits. Best effort: formatting is not validated beyond length.
func CleanPhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	cleaned := phoneStrip.ReplaceAllString(s, "")
	digits := strings.TrimPrefix(cleaned, "+")
	if len(digits) < 7 {
		return ""
	}
	return cleaned
}

// CleanNumeric parses a float out of s, tolerating currency symbols,
// commas, and surrounding text like "from $12.50". Returns nil on failure;
// parse failures are non-fatal by contract.
func CleanNumeric(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	m := numericPattern.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &f
}

var numericPattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

// CleanInteger parses an integer out of s the same way CleanNumeric does,
// truncating any fractional part.
func CleanInteger(s string) *int {
	f := CleanNumeric(s)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

// Truncate shortens s to at most max runes. It exists for legacy import
// paths that still carry historical column widths; the live schema uses
// unbounded text columns.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
