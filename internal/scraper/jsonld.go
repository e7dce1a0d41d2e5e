package scraper

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/piprate/json-gold/ld"
)

const schemaOrgBase = "http://schema.org/"

// ExtractJSONLD returns every schema.org Event found in the document's
// JSON-LD script blocks, mapped to RawEvents. Blocks that fail direct
// extraction are retried through JSON-LD expansion, which normalizes
// exotic context usage into absolute IRIs.
func ExtractJSONLD(doc *goquery.Document) []RawEvent {
	var events []RawEvent

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}

		extracted, err := extractEventObjects([]byte(raw))
		if err != nil || len(extracted) == 0 {
			// Malformed or context-heavy block. Expansion handles remote
			// contexts and prefixed types the raw walk cannot.
			extracted = expandAndExtract([]byte(raw))
		}
		for _, obj := range extracted {
			if ev, ok := mapJSONLDEvent(obj); ok {
				events = append(events, ev)
			}
		}
	})

	return events
}

// extractEventObjects inspects a single JSON-LD block and returns all
// schema.org Event / EventSeries objects found within it, handling the
// following shapes:
//
//   - Single top-level Event or EventSeries object
//   - Top-level JSON array of objects
//   - Object with an @graph array
//   - ItemList with itemListElement containing ListItem→item Events
func extractEventObjects(data []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		return extractFromArray(data)
	}
	return extractFromObject(data)
}

func extractFromArray(data []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}

	var events []json.RawMessage
	for _, item := range items {
		extracted, err := extractFromObject(item)
		if err != nil {
			return nil, err
		}
		events = append(events, extracted...)
	}
	return events, nil
}

// extractFromObject dispatches on @type and the presence of @graph or
// itemListElement.
func extractFromObject(data []byte) ([]json.RawMessage, error) {
	var envelope struct {
		Type            json.RawMessage   `json:"@type"`
		Graph           []json.RawMessage `json:"@graph"`
		ItemListElement []json.RawMessage `json:"itemListElement"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	if len(envelope.Graph) > 0 {
		return extractFromGraphArray(envelope.Graph)
	}

	typStr := jsonTypeString(envelope.Type)

	if typStr == "ItemList" && len(envelope.ItemListElement) > 0 {
		return extractFromItemList(envelope.ItemListElement)
	}

	if isEventType(typStr) {
		return []json.RawMessage{json.RawMessage(data)}, nil
	}

	return nil, nil
}

func extractFromGraphArray(items []json.RawMessage) ([]json.RawMessage, error) {
	var events []json.RawMessage
	for _, item := range items {
		extracted, err := extractFromObject(item)
		if err != nil {
			return nil, err
		}
		events = append(events, extracted...)
	}
	return events, nil
}

func extractFromItemList(elements []json.RawMessage) ([]json.RawMessage, error) {
	var events []json.RawMessage
	for _, elem := range elements {
		var listItem struct {
			Item json.RawMessage `json:"item"`
		}
		if err := json.Unmarshal(elem, &listItem); err != nil {
			return nil, err
		}
		if len(listItem.Item) == 0 {
			continue
		}
		extracted, err := extractFromObject(listItem.Item)
		if err != nil {
			return nil, err
		}
		events = append(events, extracted...)
	}
	return events, nil
}

// jsonTypeString returns the string value of a @type field, handling both
// a plain string ("Event") and a JSON array (["Event"]).
func jsonTypeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return stripSchemaPrefix(s)
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return stripSchemaPrefix(arr[0])
	}
	return ""
}

func stripSchemaPrefix(s string) string {
	for _, prefix := range []string{"https://schema.org/", "http://schema.org/", "schema:"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			return after
		}
	}
	return s
}

// isEventType matches Event, EventSeries, and the common Event subtypes
// venues publish directly.
func isEventType(typStr string) bool {
	switch typStr {
	case "Event", "EventSeries", "ExhibitionEvent", "MusicEvent",
		"TheaterEvent", "ComedyEvent", "DanceEvent", "Festival",
		"SocialEvent", "EducationEvent", "ChildrensEvent", "VisualArtsEvent":
		return true
	}
	return false
}

// expandAndExtract runs JSON-LD expansion on a block and collects nodes
// typed as schema.org Event (or a subtype), compacting their properties
// back to bare keys so mapJSONLDEvent can read them.
func expandAndExtract(data []byte) []json.RawMessage {
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil
	}

	proc := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions("")
	// Remote contexts are never fetched during scraping. Blocks that
	// need one fail expansion and are dropped.
	opts.DocumentLoader = offlineLoader{}

	expanded, err := proc.Expand(parsed, opts)
	if err != nil {
		return nil
	}

	var events []json.RawMessage
	var walk func(node any)
	walk = func(node any) {
		switch n := node.(type) {
		case []any:
			for _, item := range n {
				walk(item)
			}
		case map[string]any:
			if expandedNodeIsEvent(n) {
				if raw, err := json.Marshal(compactExpandedNode(n)); err == nil {
					events = append(events, raw)
				}
			}
			for key, value := range n {
				if strings.HasPrefix(key, "@") {
					continue
				}
				walk(value)
			}
		}
	}
	walk(expanded)
	return events
}

func expandedNodeIsEvent(node map[string]any) bool {
	types, ok := node["@type"].([]any)
	if !ok {
		return false
	}
	for _, t := range types {
		if s, ok := t.(string); ok && isEventType(stripSchemaPrefix(s)) {
			return true
		}
	}
	return false
}

// compactExpandedNode rewrites an expanded node's IRI keys back to bare
// schema.org property names and unwraps @value/@id wrappers.
func compactExpandedNode(node map[string]any) map[string]any {
	out := make(map[string]any, len(node))
	for key, value := range node {
		if key == "@type" {
			if types, ok := value.([]any); ok && len(types) > 0 {
				if s, ok := types[0].(string); ok {
					out["@type"] = stripSchemaPrefix(s)
				}
			}
			continue
		}
		if strings.HasPrefix(key, "@") {
			continue
		}
		name := key
		if idx := strings.LastIndexAny(name, "/#"); idx >= 0 {
			name = name[idx+1:]
		}
		out[name] = unwrapExpandedValue(value)
	}
	return out
}

func unwrapExpandedValue(value any) any {
	switch v := value.(type) {
	case []any:
		if len(v) == 1 {
			return unwrapExpandedValue(v[0])
		}
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, unwrapExpandedValue(item))
		}
		return out
	case map[string]any:
		if inner, ok := v["@value"]; ok {
			return inner
		}
		if id, ok := v["@id"]; ok && len(v) == 1 {
			return id
		}
		return compactExpandedNode(v)
	default:
		return value
	}
}

// offlineLoader refuses every remote context fetch.
type offlineLoader struct{}

func (offlineLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	return nil, fmt.Errorf("remote context %q not available offline", u)
}

// jsonldEvent mirrors the schema.org Event properties the mapper reads.
// Fields that may be a string, an object, or an array are kept raw.
type jsonldEvent struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	URL             string          `json:"url"`
	Image           json.RawMessage `json:"image"`
	StartDate       string          `json:"startDate"`
	EndDate         string          `json:"endDate"`
	Location        json.RawMessage `json:"location"`
	Type            json.RawMessage `json:"@type"`
	AttendanceMode  string          `json:"eventAttendanceMode"`
	Offers          json.RawMessage `json:"offers"`
	EventScheduleID json.RawMessage `json:"eventSchedule"`
}

// mapJSONLDEvent converts one schema.org Event object into a RawEvent.
// Returns false when the object has no usable title.
func mapJSONLDEvent(data json.RawMessage) (RawEvent, bool) {
	var src jsonldEvent
	if err := json.Unmarshal(data, &src); err != nil {
		return RawEvent{}, false
	}
	if strings.TrimSpace(src.Name) == "" {
		return RawEvent{}, false
	}

	ev := RawEvent{
		Title:       src.Name,
		Description: src.Description,
		URL:         src.URL,
		ImageURL:    firstImageURL(src.Image),
		Location:    locationName(src.Location),
		EventType:   eventTypeFromSchema(jsonTypeString(src.Type)),
	}

	// startDate/endDate may carry a time component (ISO 8601). Split it
	// off so date and time parse independently downstream.
	ev.StartDate, ev.StartTime = splitSchemaDateTime(src.StartDate)
	ev.EndDate, ev.EndTime = splitSchemaDateTime(src.EndDate)

	if strings.Contains(src.AttendanceMode, "Online") {
		ev.IsOnline = true
	}
	if offerURL := firstOfferURL(src.Offers); offerURL != "" {
		ev.RegistrationURL = offerURL
	}
	return ev, true
}

// splitSchemaDateTime separates an ISO 8601 value into date and clock
// parts. Bare dates pass through with an empty time.
func splitSchemaDateTime(s string) (date, clock string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	if idx := strings.IndexByte(s, 'T'); idx > 0 {
		date = s[:idx]
		rest := s[idx+1:]
		// Drop any zone designator; venue times are floating local times.
		for _, sep := range []string{"+", "-", "Z", "z"} {
			if cut := strings.Index(rest, sep); cut >= 0 {
				rest = rest[:cut]
			}
		}
		if len(rest) >= 5 {
			clock = rest[:5]
		}
		return date, clock
	}
	return s, ""
}

// eventTypeFromSchema maps schema.org Event subtypes onto the internal
// type set. Unknown subtypes fall through to the generic type.
func eventTypeFromSchema(typ string) string {
	switch typ {
	case "ExhibitionEvent", "VisualArtsEvent":
		return "exhibition"
	case "MusicEvent":
		return "music"
	case "TheaterEvent", "ComedyEvent", "DanceEvent":
		return "performance"
	case "EducationEvent":
		return "class"
	case "Festival":
		return "festival"
	default:
		return ""
	}
}

// firstImageURL handles image as a string, an array, or an ImageObject.
func firstImageURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return firstImageURL(arr[0])
	}
	var obj struct {
		URL        string `json:"url"`
		ContentURL string `json:"contentUrl"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.URL != "" {
			return obj.URL
		}
		return obj.ContentURL
	}
	return ""
}

// locationName handles location as a string, a Place, or an array of
// either. Place names win over bare addresses.
func locationName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return locationName(arr[0])
	}
	var place struct {
		Name    string          `json:"name"`
		Address json.RawMessage `json:"address"`
	}
	if err := json.Unmarshal(raw, &place); err != nil {
		return ""
	}
	if place.Name != "" {
		return place.Name
	}
	return addressText(place.Address)
}

func addressText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var addr struct {
		Street   string `json:"streetAddress"`
		Locality string `json:"addressLocality"`
	}
	if err := json.Unmarshal(raw, &addr); err != nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if addr.Street != "" {
		parts = append(parts, addr.Street)
	}
	if addr.Locality != "" {
		parts = append(parts, addr.Locality)
	}
	return strings.Join(parts, ", ")
}

// firstOfferURL pulls the first offer url, handling single object and
// array forms.
func firstOfferURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) == 0 {
			return ""
		}
		return firstOfferURL(arr[0])
	}
	var offer struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &offer); err != nil {
		return ""
	}
	return offer.URL
}
