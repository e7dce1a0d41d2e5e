package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"trims whitespace", "  Finding Awe  ", "Finding Awe"},
		{"collapses internal runs", "Finding\t\n  Awe", "Finding Awe"},
		{"empty stays empty", "", ""},
		{"whitespace only", "   \t ", ""},
		{"already clean", "Finding Awe", "Finding Awe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanText(tt.input))
		})
	}
}

func TestCleanTextIdempotent(t *testing.T) {
	once := CleanText("  a   b  c ")
	assert.Equal(t, once, CleanText(once))
}

func TestCleanURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"strips utm params", "https://nga.gov/events?utm_source=x&utm_medium=y", "https://nga.gov/events"},
		{"keeps meaningful query", "https://nga.gov/events?page=2&utm_source=x", "https://nga.gov/events?page=2"},
		{"lowercases host", "https://NGA.GOV/Events", "https://nga.gov/Events"},
		{"rejects missing scheme", "nga.gov/events", ""},
		{"rejects javascript scheme", "javascript:alert(1)", ""},
		{"rejects empty", "", ""},
		{"strips fbclid", "https://example.org/a?fbclid=abc123", "https://example.org/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanURL(tt.input))
		})
	}
}

func TestCleanEmail(t *testing.T) {
	assert.Equal(t, "info@nga.gov", CleanEmail(" info@nga.gov "))
	assert.Equal(t, "info@nga.gov", CleanEmail("Info Desk <info@nga.gov>"))
	assert.Equal(t, "", CleanEmail("not an email"))
	assert.Equal(t, "", CleanEmail(""))
}

func TestCleanPhone(t *testing.T) {
	assert.Equal(t, "+12025551234", CleanPhone("+1 (202) 555-1234"))
	assert.Equal(t, "2025551234", CleanPhone("202.555.1234"))
	assert.Equal(t, "", CleanPhone("call us"))
	assert.Equal(t, "", CleanPhone("123"))
}

func TestCleanNumeric(t *testing.T) {
	v := CleanNumeric("from $12.50")
	require.NotNil(t, v)
	assert.InDelta(t, 12.5, *v, 0.0001)

	v = CleanNumeric("1,200")
	require.NotNil(t, v)
	assert.InDelta(t, 1200, *v, 0.0001)

	assert.Nil(t, CleanNumeric("free admission"))
	assert.Nil(t, CleanNumeric(""))
}

func TestCleanInteger(t *testing.T) {
	v := CleanInteger("about 45 minutes")
	require.NotNil(t, v)
	assert.Equal(t, 45, *v)
	assert.Nil(t, CleanInteger("none"))
}

func TestIsCategoryHeading(t *testing.T) {
	headings := []string{
		"Past Exhibitions",
		"Today's Events",
		"Tour",
		"Exhibitions & Events",
		"exhibition and events",
		"Results",
		"What's On",
		"View All",
		"  Upcoming Events  ",
		"Page 3",
		"",
	}
	for _, h := range headings {
		assert.True(t, IsCategoryHeading(h), "expected heading: %q", h)
	}

	titles := []string{
		"Finding Awe",
		"Jazz in the Garden",
		"Tour of the West Building Highlights",
		"Exhibition Opening: Mark Rothko",
	}
	for _, title := range titles {
		assert.False(t, IsCategoryHeading(title), "expected real title: %q", title)
	}
}

func TestFormatNames(t *testing.T) {
	assert.Equal(t, "Washington", FormatCityName("washington"))
	assert.Equal(t, "New York", FormatCityName("NEW YORK"))
	assert.Equal(t, "NYC", FormatCityName("nyc"))
	assert.Equal(t, "USA", FormatCountryName("usa"))
	assert.Equal(t, "United Kingdom", FormatCountryName("united kingdom"))
	assert.Equal(t, "NGA", FormatVenueName("nga"))
	assert.Equal(t, "MoMA", FormatVenueName("moma"))
	assert.Equal(t, "Museum of the Moving Image", FormatVenueName("museum OF THE moving image"))
	assert.Equal(t, "Winston-Salem", FormatCityName("winston-salem"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 200))
	assert.Equal(t, "ab", Truncate("abcd", 2))
	assert.Equal(t, "abcd", Truncate("abcd", 0))
}
