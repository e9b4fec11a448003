package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Database
	DatabaseURL string

	// Auth0 — JWT issuer/audience the middleware validates bearer tokens
	// against.
	Auth0Domain   string
	Auth0Audience string
	Auth0ClientID string

	// Server
	Port        string
	CORSOrigins []string
	Env         string

	// ProductCatalog is the outbound HTTP collaborator resolving product
	// defaults and approval thresholds.
	ProductCatalog ProductCatalogConfig

	// CalendarService is the outbound HTTP collaborator resolving
	// business-day arithmetic for interest scheduling.
	CalendarService CalendarServiceConfig

	// BalanceCacheTTL bounds how long a computed BalanceCalculation may
	// be served from cache before a fresh read is forced.
	BalanceCacheTTL time.Duration

	// DocumentStore holds the S3-compatible bucket configuration backing
	// workflow supporting_documents.
	DocumentStore DocumentStoreConfig

	// SweepInterval governs how often the background job sweeps expired
	// holds (spec.md §4.2 process_expired_holds) and timed-out workflows
	// (spec.md §4.5 bulk_timeout_expired).
	SweepInterval time.Duration
}

// ProductCatalogConfig configures the outbound client in internal/catalog.
type ProductCatalogConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// CalendarServiceConfig configures the outbound business-day client.
type CalendarServiceConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DocumentStoreConfig holds S3/MinIO configuration for stored workflow
// documents.
type DocumentStoreConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		Auth0Domain:   getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience: getEnv("AUTH0_AUDIENCE", ""),
		Auth0ClientID: getEnv("AUTH0_CLIENT_ID", ""),
		Port:          getEnv("PORT", "8080"),
		CORSOrigins:   strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		Env:           getEnv("ENV", "development"),
		ProductCatalog: ProductCatalogConfig{
			BaseURL:  getEnv("PRODUCT_CATALOG_URL", "http://product-catalog.internal"),
			Timeout:  getDuration("PRODUCT_CATALOG_TIMEOUT", 2*time.Second),
			CacheTTL: getDuration("PRODUCT_CATALOG_CACHE_TTL", 10*time.Minute),
		},
		CalendarService: CalendarServiceConfig{
			BaseURL: getEnv("CALENDAR_SERVICE_URL", "http://calendar-service.internal"),
			Timeout: getDuration("CALENDAR_SERVICE_TIMEOUT", 2*time.Second),
		},
		BalanceCacheTTL: getDuration("BALANCE_CACHE_TTL", 5*time.Second),
		DocumentStore: DocumentStoreConfig{
			Endpoint:        getEnv("DOCUMENT_STORE_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("DOCUMENT_STORE_ACCESS_KEY", ""),
			SecretAccessKey: getEnv("DOCUMENT_STORE_SECRET_KEY", ""),
			BucketName:      getEnv("DOCUMENT_STORE_BUCKET", "meridianledger-workflow-documents"),
			UseSSL:          getEnv("DOCUMENT_STORE_USE_SSL", "false") == "true",
		},
		SweepInterval: getDuration("SWEEP_INTERVAL", 5*time.Minute),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth0Domain == "" {
		return fmt.Errorf("AUTH0_DOMAIN is required")
	}
	if c.Auth0Audience == "" {
		return fmt.Errorf("AUTH0_AUDIENCE is required")
	}
	if c.ProductCatalog.BaseURL == "" {
		return fmt.Errorf("PRODUCT_CATALOG_URL is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return defaultValue
}
