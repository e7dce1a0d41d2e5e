package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractMicrodata returns schema.org Events marked up with HTML
// microdata (itemscope/itemtype/itemprop attributes).
func ExtractMicrodata(doc *goquery.Document) []RawEvent {
	var events []RawEvent

	doc.Find(`[itemscope][itemtype]`).Each(func(_ int, scope *goquery.Selection) {
		itemType, _ := scope.Attr("itemtype")
		if !isEventType(stripSchemaPrefix(strings.TrimSpace(itemType))) {
			return
		}

		ev := RawEvent{
			Title:       microprop(scope, "name"),
			Description: microprop(scope, "description"),
			URL:         micropropAttr(scope, "url", "href"),
			ImageURL:    micropropAttr(scope, "image", "src"),
			Location:    microLocation(scope),
		}
		ev.StartDate, ev.StartTime = splitSchemaDateTime(micropropAttr(scope, "startDate", "content", "datetime"))
		ev.EndDate, ev.EndTime = splitSchemaDateTime(micropropAttr(scope, "endDate", "content", "datetime"))
		ev.EventType = eventTypeFromSchema(stripSchemaPrefix(strings.TrimSpace(itemType)))

		if ev.Title == "" {
			return
		}
		events = append(events, ev)
	})

	return events
}

// microprop returns the text of the first itemprop match inside scope,
// excluding props that belong to a nested itemscope.
func microprop(scope *goquery.Selection, name string) string {
	sel := findOwnProp(scope, name)
	if sel == nil {
		return ""
	}
	if content, ok := sel.Attr("content"); ok && strings.TrimSpace(content) != "" {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(sel.Text())
}

// micropropAttr prefers the named attributes over text content, trying
// them in order.
func micropropAttr(scope *goquery.Selection, name string, attrs ...string) string {
	sel := findOwnProp(scope, name)
	if sel == nil {
		return ""
	}
	for _, attr := range attrs {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if content, ok := sel.Attr("content"); ok && strings.TrimSpace(content) != "" {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(sel.Text())
}

// microLocation reads the location prop, descending into a nested Place
// scope for its name when present.
func microLocation(scope *goquery.Selection) string {
	sel := findOwnProp(scope, "location")
	if sel == nil {
		return ""
	}
	if _, nested := sel.Attr("itemscope"); nested {
		if name := strings.TrimSpace(sel.Find(`[itemprop="name"]`).First().Text()); name != "" {
			return name
		}
	}
	return strings.TrimSpace(sel.Text())
}

// findOwnProp locates the first itemprop=name element that belongs to
// this scope rather than to a nested event scope.
func findOwnProp(scope *goquery.Selection, name string) *goquery.Selection {
	var found *goquery.Selection
	scope.Find(`[itemprop="` + name + `"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		parentScope := s.ParentsFiltered(`[itemscope]`).First()
		if parentScope.Length() > 0 && !sameNode(parentScope, scope) {
			// Belongs to a nested scope (for location, the nested Place
			// scope is the direct child of this event scope).
			grand := parentScope.ParentsFiltered(`[itemscope]`).First()
			if name != "location" || !sameNode(grand, scope) {
				return true
			}
		}
		found = s
		return false
	})
	return found
}

func sameNode(a, b *goquery.Selection) bool {
	if a.Length() == 0 || b.Length() == 0 {
		return false
	}
	return a.Nodes[0] == b.Nodes[0]
}
