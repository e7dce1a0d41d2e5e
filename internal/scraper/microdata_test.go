package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMicrodata(t *testing.T) {
	doc := docFromHTML(t, `<html><body>
		<div itemscope itemtype="https://schema.org/Event">
			<h2 itemprop="name">Family Day</h2>
			<meta itemprop="startDate" content="2026-09-12T10:00:00">
			<meta itemprop="endDate" content="2026-09-12T16:00:00">
			<a itemprop="url" href="https://museum.example.org/family-day">Details</a>
			<img itemprop="image" src="https://museum.example.org/fd.jpg">
			<div itemprop="location" itemscope itemtype="https://schema.org/Place">
				<span itemprop="name">East Building</span>
			</div>
			<p itemprop="description">Hands-on art for all ages.</p>
		</div>
		<div itemscope itemtype="https://schema.org/Organization">
			<span itemprop="name">The Museum</span>
		</div>
	</body></html>`)

	events := ExtractMicrodata(doc)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "Family Day", ev.Title)
	assert.Equal(t, "2026-09-12", ev.StartDate)
	assert.Equal(t, "10:00", ev.StartTime)
	assert.Equal(t, "16:00", ev.EndTime)
	assert.Equal(t, "https://museum.example.org/family-day", ev.URL)
	assert.Equal(t, "https://museum.example.org/fd.jpg", ev.ImageURL)
	assert.Equal(t, "East Building", ev.Location)
	assert.Equal(t, "Hands-on art for all ages.", ev.Description)
}

func TestExtractMicrodataTimeElement(t *testing.T) {
	doc := docFromHTML(t, `<html><body>
		<article itemscope itemtype="http://schema.org/MusicEvent">
			<span itemprop="name">Organ Recital</span>
			<time itemprop="startDate" datetime="2026-11-01T15:00:00">Nov 1 at 3pm</time>
		</article>
	</body></html>`)

	events := ExtractMicrodata(doc)
	require.Len(t, events, 1)
	assert.Equal(t, "Organ Recital", events[0].Title)
	assert.Equal(t, "2026-11-01", events[0].StartDate)
	assert.Equal(t, "15:00", events[0].StartTime)
	assert.Equal(t, "music", events[0].EventType)
}

func TestExtractMicrodataIgnoresUnnamed(t *testing.T) {
	doc := docFromHTML(t, `<html><body>
		<div itemscope itemtype="https://schema.org/Event">
			<meta itemprop="startDate" content="2026-09-12">
		</div>
	</body></html>`)

	assert.Empty(t, ExtractMicrodata(doc))
}
