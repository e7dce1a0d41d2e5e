package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/citylore/server/internal/domain/sources"
)

// SourceConfig is a curated scrape source loaded from a YAML seed file.
// Sources with selectors are crawled with the selector engine; the rest
// go through the generic strategy chain.
type SourceConfig struct {
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	URL        string         `yaml:"url"`
	City       string         `yaml:"city"`
	EventTypes []string       `yaml:"event_types"`
	Enabled    bool           `yaml:"enabled"`
	MaxPages   int            `yaml:"max_pages"`
	Notes      string         `yaml:"notes,omitempty"`
	Selectors  SelectorConfig `yaml:"selectors"`
}

// SelectorConfig holds the CSS selectors for selector-driven crawling.
type SelectorConfig struct {
	EventList   string `yaml:"event_list"`
	Title       string `yaml:"title"`
	StartDate   string `yaml:"start_date"`
	EndDate     string `yaml:"end_date"`
	StartTime   string `yaml:"start_time"`
	Location    string `yaml:"location"`
	Description string `yaml:"description"`
	URL         string `yaml:"url"`
	Image       string `yaml:"image"`
	Pagination  string `yaml:"pagination"`
}

// HasSelectors reports whether the source is selector-driven.
func (c SourceConfig) HasSelectors() bool {
	return strings.TrimSpace(c.Selectors.EventList) != ""
}

// DefaultSourceConfig returns a SourceConfig with defaults applied.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		Enabled:  true,
		Type:     sources.TypeWebsite,
		MaxPages: 10,
	}
}

// ValidateConfig returns an error describing all problems found, or nil.
func ValidateConfig(cfg SourceConfig) error {
	var errs []string

	if strings.TrimSpace(cfg.Name) == "" {
		errs = append(errs, "name: required")
	}

	if strings.TrimSpace(cfg.URL) == "" {
		errs = append(errs, "url: required")
	} else {
		u, err := url.Parse(cfg.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("url: must be a valid http/https URL, got %q", cfg.URL))
		}
	}

	switch cfg.Type {
	case sources.TypeWebsite, sources.TypeAggregator, sources.TypeNewsletter, sources.TypeSocial:
	default:
		errs = append(errs, fmt.Sprintf("type: unknown source type %q", cfg.Type))
	}

	if cfg.MaxPages < 0 {
		errs = append(errs, fmt.Sprintf("max_pages: must be > 0, got %d", cfg.MaxPages))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// LoadSourceConfigs reads all *.yaml files from dir (skipping files
// starting with "_"), applies defaults, and validates each config. A
// non-existent directory returns an empty slice with no error.
func LoadSourceConfigs(dir string) ([]SourceConfig, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []SourceConfig{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading source config dir %s: %w", dir, err)
	}

	var configs []SourceConfig
	var validationErrors []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "_") {
			continue
		}
		if filepath.Ext(name) != ".yaml" {
			continue
		}

		filePath := filepath.Join(dir, name)
		cfg, err := loadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", filePath, err)
		}

		if err := ValidateConfig(cfg); err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("%s: %s", filePath, err.Error()))
			continue
		}
		configs = append(configs, cfg)
	}

	if len(validationErrors) > 0 {
		return configs, fmt.Errorf("invalid source configs:\n  %s", strings.Join(validationErrors, "\n  "))
	}
	return configs, nil
}

// LoadSourceConfig reads a single YAML seed file, applies defaults, and
// validates it. Used by CLI commands that accept an explicit path.
func LoadSourceConfig(path string) (SourceConfig, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return SourceConfig{}, fmt.Errorf("loading %s: %w", path, err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return SourceConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func loadFile(path string) (SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SourceConfig{}, err
	}

	// Start from defaults so zero-value booleans stay enabled.
	cfg := DefaultSourceConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SourceConfig{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if cfg.Type == "" {
		cfg.Type = sources.TypeWebsite
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 10
	}

	return cfg, nil
}
