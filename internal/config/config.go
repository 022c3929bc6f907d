package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Sync     SyncConfig
	Sources  SourcesConfig
	Places   PlacesConfig
	Geocoder GeocoderConfig
	Store    StoreConfig
	Events   EventsConfig
	FEMA     FEMAConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS int
	CORSOrigins  []string
}

type SyncConfig struct {
	Enabled        bool
	Interval       time.Duration
	FetchLimit     int
	BatchSize      int
	EnrichWorkers  int
	EnrichInterval time.Duration
}

type SourcesConfig struct {
	EONETURL     string
	USGSEnabled  bool
	USGSURL      string
	GDACSEnabled bool
	GDACSURL     string
	Timeout      time.Duration
}

// PlacesConfig radii are meters.
type PlacesConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration // per provider call
	SearchTimeout time.Duration // whole adaptive search
	MaxAttempts   int
	MaxRadius     float64
	MaxResults    int
	ResultCap     int
	MedicalRadius float64
	ShelterRadius float64
	FoodRadius    float64
	TransitRadius float64
	LodgingRadius float64
}

type GeocoderConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	CacheSize int
}

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreAPEX     = "apex"
)

type StoreConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	APEXURL     string
	Timeout     time.Duration
}

type EventsConfig struct {
	Window             time.Duration
	DefaultRadiusMiles float64
}

type FEMAConfig struct {
	Enabled      bool
	FCCURL       string
	FEMAURL      string
	WindowMonths int
	Timeout      time.Duration
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 5),
			CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),
		},
		Sync: SyncConfig{
			Enabled:        getEnvBool("SYNC_ENABLED", true),
			Interval:       getEnvDuration("SYNC_INTERVAL", 15*time.Minute),
			FetchLimit:     getEnvInt("SYNC_FETCH_LIMIT", 50),
			BatchSize:      getEnvInt("SYNC_BATCH_SIZE", 10),
			EnrichWorkers:  getEnvInt("SYNC_ENRICH_WORKERS", 2),
			EnrichInterval: getEnvDuration("SYNC_ENRICH_INTERVAL", time.Second),
		},
		Sources: SourcesConfig{
			EONETURL:     getEnv("EONET_URL", "https://eonet.gsfc.nasa.gov/api/v3/events"),
			USGSEnabled:  getEnvBool("USGS_ENABLED", false),
			USGSURL:      getEnv("USGS_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/significant_week.geojson"),
			GDACSEnabled: getEnvBool("GDACS_ENABLED", false),
			GDACSURL:     getEnv("GDACS_URL", "https://www.gdacs.org/xml/rss.xml"),
			Timeout:      getEnvDuration("SOURCES_TIMEOUT", 15*time.Second),
		},
		Places: PlacesConfig{
			BaseURL:       getEnv("GEOAPIFY_URL", "https://api.geoapify.com"),
			APIKey:        getEnv("GEOAPIFY_API_KEY", ""),
			Timeout:       getEnvDuration("PLACES_TIMEOUT", 10*time.Second),
			SearchTimeout: getEnvDuration("PLACES_SEARCH_TIMEOUT", 30*time.Second),
			MaxAttempts:   getEnvInt("PLACES_MAX_ATTEMPTS", 10),
			MaxRadius:     getEnvFloat("PLACES_MAX_RADIUS", 50000),
			MaxResults:    getEnvInt("PLACES_MAX_RESULTS", 10),
			ResultCap:     getEnvInt("PLACES_RESULT_CAP", 100),
			MedicalRadius: getEnvFloat("PLACES_MEDICAL_RADIUS", 5000),
			ShelterRadius: getEnvFloat("PLACES_SHELTER_RADIUS", 5000),
			FoodRadius:    getEnvFloat("PLACES_FOOD_RADIUS", 5000),
			TransitRadius: getEnvFloat("PLACES_TRANSIT_RADIUS", 1000),
			LodgingRadius: getEnvFloat("PLACES_LODGING_RADIUS", 5000),
		},
		Geocoder: GeocoderConfig{
			BaseURL:   getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
			UserAgent: getEnv("NOMINATIM_USER_AGENT", "go-disaster-nearby/1.0"),
			Timeout:   getEnvDuration("GEOCODER_TIMEOUT", 10*time.Second),
			CacheSize: getEnvInt("GEOCODER_CACHE_SIZE", 1024),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(getEnv("STORE_DRIVER", StoreSQLite)),
			SQLitePath:  getEnv("DB_PATH", "./data/disaster-nearby.db"),
			PostgresDSN: getEnv("DATABASE_URL", ""),
			APEXURL:     getEnv("APEX_URL", ""),
			Timeout:     getEnvDuration("STORE_TIMEOUT", 15*time.Second),
		},
		Events: EventsConfig{
			Window:             getEnvDuration("EVENTS_WINDOW", 180*24*time.Hour),
			DefaultRadiusMiles: getEnvFloat("EVENTS_RADIUS_MILES", 50),
		},
		FEMA: FEMAConfig{
			Enabled:      getEnvBool("FEMA_ENABLED", true),
			FCCURL:       getEnv("FCC_URL", "https://geo.fcc.gov/api/census/block/find"),
			FEMAURL:      getEnv("FEMA_URL", "https://www.fema.gov/api/open/v2/DisasterDeclarationsSummaries"),
			WindowMonths: getEnvInt("FEMA_WINDOW_MONTHS", 6),
			Timeout:      getEnvDuration("FEMA_TIMEOUT", 15*time.Second),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 req/s")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Sync.Enabled && c.Sync.Interval < time.Minute {
		return fmt.Errorf("sync interval must be at least 1 minute")
	}
	if c.Sync.BatchSize < 1 || c.Sync.FetchLimit < c.Sync.BatchSize {
		return fmt.Errorf("sync batch size must be at least 1 and no larger than the fetch limit")
	}
	if c.Sync.EnrichInterval < 0 {
		return fmt.Errorf("sync enrich interval cannot be negative")
	}

	if c.Places.MaxAttempts < 1 {
		return fmt.Errorf("places max attempts must be at least 1")
	}
	if c.Places.MaxResults < 1 || c.Places.ResultCap < c.Places.MaxResults {
		return fmt.Errorf("places max results must be between 1 and the result cap")
	}
	for name, r := range map[string]float64{
		"medical": c.Places.MedicalRadius,
		"shelter": c.Places.ShelterRadius,
		"food":    c.Places.FoodRadius,
		"transit": c.Places.TransitRadius,
		"lodging": c.Places.LodgingRadius,
	} {
		if r <= 0 {
			return fmt.Errorf("invalid %s radius: %v", name, r)
		}
	}
	if c.Places.MaxRadius <= 0 {
		return fmt.Errorf("invalid places max radius: %v", c.Places.MaxRadius)
	}

	if c.Geocoder.CacheSize < 1 {
		return fmt.Errorf("geocoder cache size must be at least 1")
	}

	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreAPEX:
		if c.Store.APEXURL == "" {
			return fmt.Errorf("APEX_URL is required for the apex store")
		}
	default:
		return fmt.Errorf("invalid store driver: %s", c.Store.Driver)
	}

	if c.Events.Window <= 0 || c.Events.DefaultRadiusMiles <= 0 {
		return fmt.Errorf("events window and radius must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
