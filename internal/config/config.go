// Package config loads process configuration from the environment.
// Provider credentials are optional; a missing credential disables only
// the feature that needs it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Auth           AuthConfig
	AdminBootstrap AdminBootstrapConfig
	Logging        LoggingConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Tracing        TracingConfig
	Scraper        ScraperConfig
	Imagery        ImageryConfig
	Email          EmailConfig
	Environment    string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdle        int
}

type AuthConfig struct {
	JWTSecret string
	JWTExpiry time.Duration
}

type AdminBootstrapConfig struct {
	Username string
	Password string
}

type LoggingConfig struct {
	Level  string
	Format string // json or console
}

type RateLimitConfig struct {
	PublicPerMinute   int
	AdminPerMinute    int
	LoginPer15Minutes int
	// TrustedProxyCIDRs lists proxies whose forwarding headers are
	// believed for client identification.
	TrustedProxyCIDRs []string
}

type CORSConfig struct {
	AllowedOrigins []string
	// AllowAllOrigins is set automatically outside production.
	AllowAllOrigins bool
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string // stdout, otlp, none
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

type ScraperConfig struct {
	// SourcesDir holds the curated source YAML seeds.
	SourcesDir string
	// SnapshotDir receives the advisory scraping_progress.json file.
	// Empty disables snapshot writes.
	SnapshotDir string
	// MaxVenuesPerCity caps how many venues one scrape request may select.
	MaxVenuesPerCity int
	// DisableBrowser turns off the headless challenge fallback.
	DisableBrowser bool
}

type ImageryConfig struct {
	UploadsDir        string
	OCREngine         string // auto or a named engine
	VenueRegistryPath string
	LLMAPIKey         string
	LLMModel          string
	LLMBaseURL        string
}

type EmailConfig struct {
	ResendAPIKey string
	AlertFrom    string
	AlertTo      string
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", 8080),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdle:        getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTExpiry: time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		},
		AdminBootstrap: AdminBootstrapConfig{
			Username: getEnv("ADMIN_USERNAME", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:   getEnvInt("RATE_LIMIT_PUBLIC", 120),
			AdminPerMinute:    getEnvInt("RATE_LIMIT_ADMIN", 0),
			LoginPer15Minutes: getEnvInt("RATE_LIMIT_LOGIN", 5),
			TrustedProxyCIDRs: getEnvList("TRUSTED_PROXY_CIDRS"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "none"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "citylore-server"),
			OTLPEndpoint: getEnv("TRACING_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 0.1),
		},
		Scraper: ScraperConfig{
			SourcesDir:       getEnv("SOURCES_DIR", "configs/sources"),
			SnapshotDir:      getEnv("SNAPSHOT_DIR", "."),
			MaxVenuesPerCity: getEnvInt("MAX_VENUES_PER_CITY", 50),
			DisableBrowser:   getEnvBool("SCRAPER_DISABLE_BROWSER", false),
		},
		Imagery: ImageryConfig{
			UploadsDir:        getEnv("UPLOADS_DIR", "uploads"),
			OCREngine:         getEnv("OCR_ENGINE", "auto"),
			VenueRegistryPath: getEnv("VENUE_REGISTRY_PATH", ""),
			LLMAPIKey:         getEnv("OPENAI_API_KEY", ""),
			LLMModel:          getEnv("OPENAI_MODEL", ""),
			LLMBaseURL:        getEnv("OPENAI_BASE_URL", ""),
		},
		Email: EmailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			AlertFrom:    getEnv("ALERT_EMAIL_FROM", ""),
			AlertTo:      getEnv("ALERT_EMAIL_TO", ""),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.Environment == "production" {
		if len(cfg.CORS.AllowedOrigins) == 0 {
			return Config{}, fmt.Errorf("CORS_ALLOWED_ORIGINS is required in production")
		}
	} else {
		cfg.CORS.AllowAllOrigins = true
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
