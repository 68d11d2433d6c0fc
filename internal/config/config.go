// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/parcelworks/assessor-scraper/internal/geocode"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Site      SiteConfig      `mapstructure:"site"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Geocoding GeocodingConfig `mapstructure:"geocoding"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Media     MediaConfig     `mapstructure:"media"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// SiteConfig points at the assessor deployment being scraped.
type SiteConfig struct {
	// BaseURL is the deployment root; relative links resolve against it.
	BaseURL string `mapstructure:"base_url"`
	// StreetsURL is the street index page. Empty derives it from BaseURL.
	StreetsURL string `mapstructure:"streets_url"`
	City       string `mapstructure:"city"`
	State      string `mapstructure:"state"`
}

// ScraperConfig governs stage behavior.
type ScraperConfig struct {
	// Workers is the number of browser sessions run in parallel for the
	// listing and detail stages.
	Workers int `mapstructure:"workers"`
	// StreetLimit caps the listing stage for smoke runs. Zero is no cap.
	StreetLimit int `mapstructure:"street_limit"`
}

// BrowserConfig tunes the headless sessions.
type BrowserConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	PageDelayMs       int    `mapstructure:"page_delay_ms"`
	SettleDelayMs     int    `mapstructure:"settle_delay_ms"`
	MaxAttempts       int    `mapstructure:"max_attempts"`
}

// GeocodingConfig configures the provider chain.
type GeocodingConfig struct {
	// Providers lists chain order; known names are census, nominatim,
	// google. Empty disables geocoding.
	Providers    []string `mapstructure:"providers"`
	GoogleAPIKey string   `mapstructure:"google_api_key"`
	UserAgent    string   `mapstructure:"user_agent"`
	DelaySeconds int      `mapstructure:"delay_seconds"`
	MinLat       float64  `mapstructure:"min_lat"`
	MaxLat       float64  `mapstructure:"max_lat"`
	MinLng       float64  `mapstructure:"min_lng"`
	MaxLng       float64  `mapstructure:"max_lng"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int    `mapstructure:"max_conns"`
	MinConns           int    `mapstructure:"min_conns"`
	ConnLifetimeMinute int    `mapstructure:"conn_lifetime_minutes"`
}

// StorageConfig selects and configures the media blob backend.
type StorageConfig struct {
	// Backend is local, gcs, or memory.
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// MediaConfig tunes the asset downloader.
type MediaConfig struct {
	Concurrency    int    `mapstructure:"concurrency"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PublishConfig selects the event backend: none, memory, or pubsub.
type PublishConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Site.StreetsURL == "" {
		cfg.Site.StreetsURL = strings.TrimSuffix(cfg.Site.BaseURL, "/") + "/Streets.aspx"
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("site.base_url", "https://gis.vgsi.com/worcesterma/")
	v.SetDefault("site.city", "Worcester")
	v.SetDefault("site.state", "MA")
	v.SetDefault("scraper.workers", 4)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.page_delay_ms", 1000)
	v.SetDefault("browser.settle_delay_ms", 500)
	v.SetDefault("browser.max_attempts", 3)
	v.SetDefault("geocoding.providers", []string{"census", "nominatim"})
	v.SetDefault("geocoding.user_agent", "assessor-scraper/1.0")
	v.SetDefault("geocoding.delay_seconds", 1)
	v.SetDefault("geocoding.min_lat", 42.20)
	v.SetDefault("geocoding.max_lat", 42.35)
	v.SetDefault("geocoding.min_lng", -71.90)
	v.SetDefault("geocoding.max_lng", -71.70)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "data/media")
	v.SetDefault("media.concurrency", 5)
	v.SetDefault("media.timeout_seconds", 30)
	v.SetDefault("publish.backend", "none")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if c.Scraper.Workers <= 0 {
		return fmt.Errorf("scraper.workers must be > 0")
	}
	switch c.Storage.Backend {
	case "local", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.Publish.Backend {
	case "none", "memory":
	case "pubsub":
		if c.Publish.ProjectID == "" {
			return fmt.Errorf("publish.project_id is required for the pubsub backend")
		}
	default:
		return fmt.Errorf("unknown publish.backend %q", c.Publish.Backend)
	}
	for _, name := range c.Geocoding.Providers {
		switch name {
		case "census", "nominatim":
		case "google":
			if c.Geocoding.GoogleAPIKey == "" {
				return fmt.Errorf("geocoding.google_api_key is required when google is in the chain")
			}
		default:
			return fmt.Errorf("unknown geocoding provider %q", name)
		}
	}
	if c.Geocoding.MinLat >= c.Geocoding.MaxLat || c.Geocoding.MinLng >= c.Geocoding.MaxLng {
		return fmt.Errorf("geocoding bounds are inverted")
	}
	return nil
}

// Bounds returns the configured validation box.
func (c GeocodingConfig) Bounds() geocode.Bounds {
	return geocode.Bounds{
		MinLat: c.MinLat,
		MaxLat: c.MaxLat,
		MinLng: c.MinLng,
		MaxLng: c.MaxLng,
	}
}

// ProviderDelay returns the per-provider request spacing.
func (c GeocodingConfig) ProviderDelay() time.Duration {
	if c.DelaySeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.DelaySeconds) * time.Second
}

// NavTimeout converts the browser timeout to a duration.
func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSeconds) * time.Second
}

// PageDelay converts the page spacing to a duration.
func (c BrowserConfig) PageDelay() time.Duration {
	return time.Duration(c.PageDelayMs) * time.Millisecond
}

// SettleDelay converts the postback settle wait to a duration.
func (c BrowserConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}
