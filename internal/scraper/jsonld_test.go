package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func ldPage(blocks ...string) string {
	var b strings.Builder
	b.WriteString("<html><head>")
	for _, block := range blocks {
		b.WriteString(`<script type="application/ld+json">`)
		b.WriteString(block)
		b.WriteString(`</script>`)
	}
	b.WriteString("</head><body></body></html>")
	return b.String()
}

func TestExtractJSONLDSingleEvent(t *testing.T) {
	doc := docFromHTML(t, ldPage(`{
		"@context": "https://schema.org",
		"@type": "Event",
		"name": "Jazz in the Garden",
		"description": "Free outdoor concert.",
		"url": "https://example.org/jazz",
		"image": "https://example.org/jazz.jpg",
		"startDate": "2026-06-19T17:00:00-04:00",
		"endDate": "2026-06-19T20:30:00-04:00",
		"location": {"@type": "Place", "name": "Sculpture Garden"}
	}`))

	events := ExtractJSONLD(doc)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "Jazz in the Garden", ev.Title)
	assert.Equal(t, "https://example.org/jazz", ev.URL)
	assert.Equal(t, "https://example.org/jazz.jpg", ev.ImageURL)
	assert.Equal(t, "2026-06-19", ev.StartDate)
	assert.Equal(t, "17:00", ev.StartTime)
	assert.Equal(t, "2026-06-19", ev.EndDate)
	assert.Equal(t, "20:30", ev.EndTime)
	assert.Equal(t, "Sculpture Garden", ev.Location)
}

func TestExtractJSONLDGraph(t *testing.T) {
	doc := docFromHTML(t, ldPage(`{
		"@context": "https://schema.org",
		"@graph": [
			{"@type": "Organization", "name": "The Museum"},
			{"@type": "Event", "name": "Late Night Opening", "startDate": "2026-10-02"},
			{"@type": "ExhibitionEvent", "name": "Impressionists", "startDate": "2026-09-01", "endDate": "2027-01-10"}
		]
	}`))

	events := ExtractJSONLD(doc)
	require.Len(t, events, 2)
	assert.Equal(t, "Late Night Opening", events[0].Title)
	assert.Equal(t, "Impressionists", events[1].Title)
	assert.Equal(t, "exhibition", events[1].EventType)
	assert.Empty(t, events[1].EndTime)
}

func TestExtractJSONLDItemList(t *testing.T) {
	doc := docFromHTML(t, ldPage(`{
		"@type": "ItemList",
		"itemListElement": [
			{"@type": "ListItem", "position": 1, "item": {"@type": "Event", "name": "Walking Tour", "startDate": "2026-09-12"}},
			{"@type": "ListItem", "position": 2, "item": {"@type": "WebPage", "name": "About"}}
		]
	}`))

	events := ExtractJSONLD(doc)
	require.Len(t, events, 1)
	assert.Equal(t, "Walking Tour", events[0].Title)
}

func TestExtractJSONLDTopLevelArray(t *testing.T) {
	doc := docFromHTML(t, ldPage(`[
		{"@type": "MusicEvent", "name": "String Quartet", "startDate": "2026-09-20T19:30:00"},
		{"@type": "BreadcrumbList", "name": "nav"}
	]`))

	events := ExtractJSONLD(doc)
	require.Len(t, events, 1)
	assert.Equal(t, "String Quartet", events[0].Title)
	assert.Equal(t, "music", events[0].EventType)
	assert.Equal(t, "19:30", events[0].StartTime)
}

func TestExtractJSONLDMalformedBlockSkipped(t *testing.T) {
	doc := docFromHTML(t, ldPage(
		`{"@type": "Event", "name": "Good One", "startDate": "2026-09-12"`,
		`{"@type": "Event", "name": "Still Works", "startDate": "2026-09-13"}`,
	))

	events := ExtractJSONLD(doc)
	require.Len(t, events, 1)
	assert.Equal(t, "Still Works", events[0].Title)
}

func TestExtractJSONLDImageVariants(t *testing.T) {
	doc := docFromHTML(t, ldPage(`{
		"@type": "Event",
		"name": "Array Image",
		"startDate": "2026-09-12",
		"image": ["https://example.org/a.jpg", "https://example.org/b.jpg"]
	}`, `{
		"@type": "Event",
		"name": "Object Image",
		"startDate": "2026-09-13",
		"image": {"@type": "ImageObject", "url": "https://example.org/c.jpg"}
	}`))

	events := ExtractJSONLD(doc)
	require.Len(t, events, 2)
	assert.Equal(t, "https://example.org/a.jpg", events[0].ImageURL)
	assert.Equal(t, "https://example.org/c.jpg", events[1].ImageURL)
}

func TestExtractJSONLDOnlineAndOffers(t *testing.T) {
	doc := docFromHTML(t, ldPage(`{
		"@type": "Event",
		"name": "Virtual Lecture",
		"startDate": "2026-09-12T18:00:00",
		"eventAttendanceMode": "https://schema.org/OnlineEventAttendanceMode",
		"offers": [{"@type": "Offer", "url": "https://tickets.example.org/123"}]
	}`))

	events := ExtractJSONLD(doc)
	require.Len(t, events, 1)
	assert.True(t, events[0].IsOnline)
	assert.Equal(t, "https://tickets.example.org/123", events[0].RegistrationURL)
}

func TestExtractJSONLDAddressFallback(t *testing.T) {
	doc := docFromHTML(t, ldPage(`{
		"@type": "Event",
		"name": "Street Fair",
		"startDate": "2026-09-12",
		"location": {"@type": "Place", "address": {"streetAddress": "700 Pennsylvania Ave", "addressLocality": "Washington"}}
	}`))

	events := ExtractJSONLD(doc)
	require.Len(t, events, 1)
	assert.Equal(t, "700 Pennsylvania Ave, Washington", events[0].Location)
}

func TestSplitSchemaDateTime(t *testing.T) {
	tests := []struct {
		in        string
		wantDate  string
		wantClock string
	}{
		{"2026-09-12", "2026-09-12", ""},
		{"2026-09-12T19:30:00", "2026-09-12", "19:30"},
		{"2026-09-12T19:30:00-04:00", "2026-09-12", "19:30"},
		{"2026-09-12T19:30:00Z", "2026-09-12", "19:30"},
		{"", "", ""},
	}
	for _, tt := range tests {
		gotDate, gotClock := splitSchemaDateTime(tt.in)
		assert.Equal(t, tt.wantDate, gotDate, tt.in)
		assert.Equal(t, tt.wantClock, gotClock, tt.in)
	}
}
