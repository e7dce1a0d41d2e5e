package imagery

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/citylore/server/internal/domain/cities"
	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/normalize"
	"github.com/citylore/server/internal/timeparse"
)

// SocialMedia is the poster's provenance when it came from a social
// post.
type SocialMedia struct {
	Platform string
	Handle   string
	PageName string
	PostedBy string
	URL      string
}

// Extraction is the structured result of one image. The caller (the
// admin surface) decides whether to commit the candidate.
type Extraction struct {
	Candidate events.Candidate
	ImagePath string
	OCRText   string
	Social    *SocialMedia

	// MatchedVenue is set when the well-known venue registry attached a
	// venue the model did not name.
	MatchedVenue string
}

// Extractor runs the image-to-event pipeline.
type Extractor struct {
	ocr        *OCRChain
	llm        *LLMClient
	cities     cities.Repository
	venues     venues.Repository
	registry   *VenueRegistry
	uploadsDir string
	logger     zerolog.Logger
}

func NewExtractor(ocr *OCRChain, llm *LLMClient, cityRepo cities.Repository, venueRepo venues.Repository, registry *VenueRegistry, uploadsDir string, logger zerolog.Logger) *Extractor {
	if registry == nil {
		registry = DefaultVenueRegistry()
	}
	return &Extractor{
		ocr:        ocr,
		llm:        llm,
		cities:     cityRepo,
		venues:     venueRepo,
		registry:   registry,
		uploadsDir: uploadsDir,
		logger:     logger,
	}
}

// WithOCRPreference returns a shallow copy whose OCR chain tries the
// named engine first. "auto" and "" return the receiver unchanged.
func (e *Extractor) WithOCRPreference(preference string) *Extractor {
	if preference == "" || preference == "auto" {
		return e
	}
	clone := *e
	clone.ocr = e.ocr.WithPreference(preference)
	return &clone
}

// ExtractFromImage processes one upload end to end. A model reply that
// cannot be parsed yields an Extraction with an empty-title candidate
// rather than an error, so the admin surface can show the OCR text and
// let a human fill the rest in.
func (e *Extractor) ExtractFromImage(ctx context.Context, imageBytes []byte) (*Extraction, error) {
	processed, err := ProcessImage(imageBytes, e.uploadsDir)
	if err != nil {
		return nil, err
	}

	ocrText, err := e.ocr.ExtractText(ctx, processed.Bytes)
	if err != nil {
		return nil, err
	}

	result := &Extraction{ImagePath: processed.Path, OCRText: ocrText}

	raw, err := e.llm.Extract(ctx, ocrText)
	if err != nil {
		// Empty candidate, no writes. The upload itself is kept.
		e.logger.Warn().Err(err).Msg("llm extraction unusable")
		return result, nil
	}

	c := e.buildCandidate(ctx, raw)
	applyTextHeuristics(&c, ocrText)
	e.attachWellKnownVenue(ctx, &c, raw, result)

	result.Candidate = c
	if raw.SocialMediaPlatform != "" || raw.SocialMediaURL != "" || raw.SocialMediaHandle != "" {
		result.Social = &SocialMedia{
			Platform: raw.SocialMediaPlatform,
			Handle:   raw.SocialMediaHandle,
			PageName: raw.SocialMediaPageName,
			PostedBy: raw.SocialMediaPostedBy,
			URL:      normalize.CleanURL(raw.SocialMediaURL),
		}
	}
	return result, nil
}

// buildCandidate normalizes the model output through the same cleanup
// the scrape pipeline uses.
func (e *Extractor) buildCandidate(ctx context.Context, raw *LLMExtraction) events.Candidate {
	c := events.Candidate{
		Title:         normalize.CleanText(raw.Title),
		EventType:     events.MapEventType(raw.EventType),
		Description:   normalize.CleanText(raw.Description),
		StartLocation: normalize.CleanText(raw.StartLocation),
		EndLocation:   normalize.CleanText(raw.EndLocation),
		SourceName:    "image",
	}

	if start, err := timeparse.ParseDate(raw.StartDate); err == nil {
		c.StartDate = start
	}
	if raw.EndDate != "" {
		if end, err := timeparse.ParseDate(raw.EndDate); err == nil && !end.Before(c.StartDate) {
			c.EndDate = &end
		}
	}
	if raw.StartTime != "" {
		if hm, err := timeparse.ParseTime(raw.StartTime); err == nil {
			c.StartTime = &hm
		}
	}
	if raw.EndTime != "" {
		if hm, err := timeparse.ParseTime(raw.EndTime); err == nil {
			c.EndTime = &hm
		}
	}

	if raw.IsOnline {
		online := true
		c.IsOnline = &online
	}
	if raw.IsRegistrationRequired || raw.RegistrationURL != "" {
		required := true
		c.RegistrationRequired = &required
		c.RegistrationURL = normalize.CleanURL(raw.RegistrationURL)
	}

	e.resolveCity(ctx, &c, raw.City)
	e.resolveVenue(ctx, &c)
	return c
}

// resolveCity maps the model's city name onto a stored city.
func (e *Extractor) resolveCity(ctx context.Context, c *events.Candidate, cityName string) {
	if e.cities == nil {
		return
	}
	cityName = normalize.FormatCityName(cityName)
	if cityName == "" {
		return
	}
	city, err := e.cities.FindByName(ctx, cityName, "", "")
	if err != nil || city == nil {
		return
	}
	c.CityID = &city.ID
}

// resolveVenue fuzzy-matches the start location against stored venues
// in the resolved city.
func (e *Extractor) resolveVenue(ctx context.Context, c *events.Candidate) {
	if e.venues == nil || c.CityID == nil || c.StartLocation == "" {
		return
	}
	venue, err := e.venues.FindByName(ctx, normalize.FormatVenueName(c.StartLocation), *c.CityID)
	if err != nil || venue == nil {
		return
	}
	c.VenueID = &venue.ID
	c.VenueWebsite = venue.Website
}

// applyTextHeuristics layers OCR-text signals over the model output.
func applyTextHeuristics(c *events.Candidate, ocrText string) {
	lower := strings.ToLower(ocrText)

	if strings.Contains(lower, "register now") {
		required := true
		c.RegistrationRequired = &required
	}

	hasVirtual := strings.Contains(lower, "virtual")
	hasInPerson := strings.Contains(lower, "in-person") || strings.Contains(lower, "in person")
	switch {
	case hasInPerson:
		online := false
		c.IsOnline = &online
	case hasVirtual:
		online := true
		c.IsOnline = &online
	}
}

// attachWellKnownVenue consults the registry when the candidate still
// has no venue.
func (e *Extractor) attachWellKnownVenue(ctx context.Context, c *events.Candidate, raw *LLMExtraction, result *Extraction) {
	if c.VenueID != nil {
		return
	}
	match := e.registry.Match(c.Title, c.Description, c.StartLocation, result.OCRText)
	if match == nil {
		return
	}
	result.MatchedVenue = match.VenueName
	if c.StartLocation == "" {
		c.StartLocation = match.VenueName
	}

	if e.venues == nil || e.cities == nil {
		return
	}
	city, err := e.cities.FindByName(ctx, match.City, "", "")
	if err != nil || city == nil {
		return
	}
	if c.CityID == nil {
		c.CityID = &city.ID
	}
	venue, err := e.venues.FindByName(ctx, match.VenueName, city.ID)
	if err != nil || venue == nil {
		return
	}
	c.VenueID = &venue.ID
	c.VenueWebsite = venue.Website
}
