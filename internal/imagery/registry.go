package imagery

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// WellKnownVenue auto-attaches a venue when poster text mentions it.
// Patterns are matched case-insensitively against title, description,
// and location.
type WellKnownVenue struct {
	VenueName string   `yaml:"venue_name"`
	City      string   `yaml:"city"`
	Patterns  []string `yaml:"patterns"`
}

// VenueRegistry holds the configured well-known venues.
type VenueRegistry struct {
	venues []WellKnownVenue
}

// DefaultVenueRegistry covers the institutions that appear on posters
// without a full address.
func DefaultVenueRegistry() *VenueRegistry {
	return &VenueRegistry{venues: []WellKnownVenue{
		{VenueName: "National Gallery of Art", City: "Washington", Patterns: []string{"national gallery of art", "nga.gov"}},
		{VenueName: "Hirshhorn Museum", City: "Washington", Patterns: []string{"hirshhorn"}},
		{VenueName: "Kennedy Center", City: "Washington", Patterns: []string{"kennedy center"}},
		{VenueName: "Smithsonian American Art Museum", City: "Washington", Patterns: []string{"american art museum", "saam"}},
	}}
}

// LoadVenueRegistry reads a YAML registry file. A missing file yields
// the default registry.
func LoadVenueRegistry(path string) (*VenueRegistry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultVenueRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading venue registry %s: %w", path, err)
	}

	var venues []WellKnownVenue
	if err := yaml.Unmarshal(data, &venues); err != nil {
		return nil, fmt.Errorf("parsing venue registry %s: %w", path, err)
	}
	return &VenueRegistry{venues: venues}, nil
}

// Match returns the first well-known venue whose pattern appears in any
// of the given texts.
func (r *VenueRegistry) Match(texts ...string) *WellKnownVenue {
	haystack := strings.ToLower(strings.Join(texts, " "))
	for i := range r.venues {
		for _, pattern := range r.venues[i].Patterns {
			if pattern != "" && strings.Contains(haystack, strings.ToLower(pattern)) {
				return &r.venues[i]
			}
		}
	}
	return nil
}
