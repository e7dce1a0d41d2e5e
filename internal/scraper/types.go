// Package scraper turns venue pages, aggregator APIs, and recurring
// program pages into candidate events. Extraction is best effort: a page
// that yields nothing is a logged warning, never a failure that aborts a
// run.
package scraper

// RawEvent is the unnormalized output of one extraction strategy. All
// fields are as found on the page; parsing and cleanup happen when the
// raw event is turned into a candidate.
type RawEvent struct {
	Title       string
	Description string
	URL         string
	ImageURL    string

	StartDate string
	EndDate   string
	StartTime string
	EndTime   string

	Location        string
	EventType       string
	RegistrationURL string
	IsOnline        bool
}
